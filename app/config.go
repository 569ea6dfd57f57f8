package app

import (
	"os"
	"strings"
)

// Environment variables holding secrets that must never live in the yaml
// config files. They are scrubbed from the environment once read.
const (
	DBPassEnv      = "PHISHMON_DB_PASS"
	InfluxTokenEnv = "PHISHMON_INFLUX_TOKEN"
	SentryDsnEnv   = "PHISHMON_SENTRY_DSN"
)

type ConfigErr struct {
	errs []string
}

func (ce *ConfigErr) Add(s string) {
	ce.errs = append(ce.errs, s)
}

func (ce *ConfigErr) Error() string {
	return "config err: " + strings.Join(ce.errs, ",")
}

func (ce *ConfigErr) IsError() bool {
	return len(ce.errs) > 0
}

func NewConfigErr() ConfigErr {
	return ConfigErr{
		errs: []string{},
	}
}

type Meta struct {
	Description string `yaml:"description"`
	Host        string `yaml:"host"`
}

// ReadSecret returns the value of an environment variable and clears it, so
// the secret cannot leak to child processes or debug dumps.
func ReadSecret(env string) string {
	v := os.Getenv(env)
	os.Setenv(env, "")
	return v
}
