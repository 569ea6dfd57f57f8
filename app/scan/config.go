package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/cse-security/phishmon/app"
	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/monitor"
	"github.com/cse-security/phishmon/pipeline"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
)

type Protected struct {
	Domain       string `yaml:"domain"`
	Organization string `yaml:"organization"`
	Sector       string `yaml:"sector"`
}

type config struct {
	Protected []Protected       `yaml:"protected"`
	Store     store.Config      `yaml:"store"`
	Pipeline  pipeline.Opts     `yaml:"pipeline"`
	Score     score.Thresholds  `yaml:"score"`
	Monitor   monitor.Opts      `yaml:"monitor"`
	DNS       enrich.ProberOpts `yaml:"dns"`
	Sentry    app.Sentry        `yaml:"sentry"`
	Meta      app.Meta          `yaml:"meta"`
	LogLevel  string            `yaml:"log-level"`
}

func (c *config) IsValid() error {
	ce := app.NewConfigErr()
	if len(c.Protected) == 0 {
		ce.Add("at least one protected domain is required")
	}
	for _, p := range c.Protected {
		if p.Domain == "" {
			ce.Add("protected domain cannot be empty")
		}
	}
	if ce.IsError() {
		return &ce
	}
	return nil
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

	return conf, conf.IsValid()
}
