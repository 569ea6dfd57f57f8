package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cse-security/phishmon/app"
	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/generic"
	"github.com/cse-security/phishmon/monitor"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
)

func main() {
	ctx := context.Background()

	confFile := flag.String("config", "config/monitor.yml", "location of configuration file")
	flag.Parse()

	conf, err := readConfig(*confFile)
	if err != nil {
		log.Fatal().Msgf("error while reading configuration: %s", err)
	}
	zerolog.SetGlobalLevel(app.ParseLogLevel(conf.LogLevel))

	el, err := app.NewErrLogger(conf.Sentry, map[string]string{"app": "monitor", "host": conf.Meta.Host}, zerolog.ErrorLevel)
	if err != nil {
		log.Fatal().Msgf("error while creating error logger: %s", err)
	}

	var s *store.Store
	if err := app.Retry(func() error {
		var err error
		s, err = store.NewStore(conf.Store, store.DefaultOpts)
		return err
	}, 3); err != nil {
		log.Fatal().Msgf("error while connecting to store: %s", err)
	}
	defer s.Close()

	enricher := enrich.NewDNSEnricher(conf.DNS)
	scorer := score.NewScorer(conf.Score)
	mon := monitor.NewMonitor(s, enricher, enricher, scorer, conf.Monitor).WithLocks(s.Locks)

	sweep := func(t time.Time) error {
		expired, err := mon.RunExpirySweep()
		if err != nil {
			el.Log(err, app.LogOptions{Msg: "error while expiring schedules"})
		} else {
			s.Metrics.SweepResult("expiry", expired, 0)
		}

		res, err := mon.RunDueSweep(ctx, conf.Sweep.Workers)
		if err != nil {
			el.Log(err, app.LogOptions{Msg: "error while running due sweep"})
			return nil // retried on the next tick
		}
		s.Metrics.SweepResult("due", res.Checked, res.Failed)

		events, err := s.ChangeEventsSince(t)
		if err != nil {
			el.Log(err, app.LogOptions{Msg: "error while querying change events"})
		}
		for _, ev := range events {
			log.Warn().
				Str("domain", ev.Domain).
				Str("category", ev.Category).
				Float64("change_pct", ev.ChangePct).
				Msg("change event this sweep")
		}

		stats, err := s.MonitoringStats(time.Now())
		if err != nil {
			el.Log(err, app.LogOptions{Msg: "error while collecting monitoring stats"})
			return nil
		}
		log.Info().
			Int("schedules", stats.Schedules).
			Int("active", stats.ActiveSchedules).
			Int("due", stats.DueSchedules).
			Int("changes_24h", stats.RecentChanges).
			Msg("monitoring status")
		return nil
	}

	if err := generic.Repeat(ctx, sweep, time.Now(), conf.Sweep.Interval, conf.Sweep.Count); err != nil {
		log.Fatal().Msgf("monitoring loop stopped: %s", err)
	}
}
