package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/cse-security/phishmon/app"
	"github.com/cse-security/phishmon/dedup"
	"github.com/cse-security/phishmon/store"
)

type config struct {
	Store    store.Config `yaml:"store"`
	Dedup    dedup.Opts   `yaml:"dedup"`
	DryRun   bool         `yaml:"dry-run"`
	Sentry   app.Sentry   `yaml:"sentry"`
	Meta     app.Meta     `yaml:"meta"`
	LogLevel string       `yaml:"log-level"`
}

func readConfig(path string) (config, error) {
	var conf config
	f, err := ioutil.ReadFile(path)
	if err != nil {
		return conf, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(f, &conf); err != nil {
		return conf, errors.Wrap(err, "unmarshal config file")
	}

	if conf.Store.Password == "" {
		conf.Store.Password = app.ReadSecret(app.DBPassEnv)
	}
	if conf.Store.InfluxOpts.AuthToken == "" {
		conf.Store.InfluxOpts.AuthToken = app.ReadSecret(app.InfluxTokenEnv)
	}

	return conf, nil
}
