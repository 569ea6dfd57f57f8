package main

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/cse-security/phishmon/app"
	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/monitor"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
)

type Sweep struct {
	Interval time.Duration `yaml:"interval"`
	Workers  int64         `yaml:"workers"`
	Count    int           `yaml:"count"` // number of sweeps, negative for infinite
}

type config struct {
	Store    store.Config      `yaml:"store"`
	Monitor  monitor.Opts      `yaml:"monitor"`
	Score    score.Thresholds  `yaml:"score"`
	DNS      enrich.ProberOpts `yaml:"dns"`
	Sweep    Sweep             `yaml:"sweep"`
	Sentry   app.Sentry        `yaml:"sentry"`
	Meta     app.Meta          `yaml:"meta"`
	LogLevel string            `yaml:"log-level"`
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
	if conf.Sweep.Interval == 0 {
		conf.Sweep.Interval = time.Hour
	}
	if conf.Sweep.Workers == 0 {
		conf.Sweep.Workers = 5
	}
	if conf.Sweep.Count == 0 {
		conf.Sweep.Count = -1
	}

	return conf, nil
}
