package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/cse-security/phishmon/app"
	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/generate"
	"github.com/cse-security/phishmon/monitor"
	"github.com/cse-security/phishmon/pipeline"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
)

func main() {
	ctx := context.Background()

	confFile := flag.String("config", "config/scan.yml", "location of configuration file")
	flag.Parse()

	conf, err := readConfig(*confFile)
	if err != nil {
		log.Fatal().Msgf("error while reading configuration: %s", err)
	}
	zerolog.SetGlobalLevel(app.ParseLogLevel(conf.LogLevel))

	el, err := app.NewErrLogger(conf.Sentry, map[string]string{"app": "scan", "host": conf.Meta.Host}, zerolog.ErrorLevel)
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
	pool := pipeline.NewPool(s, enricher, scorer, mon, conf.Pipeline)

	p := mpb.New()

	total := pipeline.Stats{}
	for _, protected := range conf.Protected {
		pd, err := s.EnsureProtectedDomain(protected.Domain, protected.Organization, protected.Sector)
		if err != nil {
			el.Log(err, app.LogOptions{
				Msg:  "error while registering protected domain",
				Tags: map[string]string{"domain": protected.Domain},
			})
			continue
		}

		candidates, err := generate.Generate(pd.Domain, conf.Pipeline.MaxVariations)
		if err != nil {
			el.Log(err, app.LogOptions{
				Msg:  "error while generating candidates",
				Tags: map[string]string{"domain": pd.Domain},
			})
			continue
		}

		bar := p.AddBar(int64(len(candidates)),
			mpb.PrependDecorators(
				decor.Name(pd.Domain),
				decor.CountersNoUnit("%d / %d", decor.WCSyncSpace)),
			mpb.AppendDecorators(
				decor.NewPercentage("% .1f"),
				decor.OnComplete(
					decor.EwmaETA(decor.ET_STYLE_GO, 60, decor.WC{W: 4}), "done",
				)))

		stats, err := pool.ScanCandidates(ctx, pd, candidates, func(pipeline.Outcome) {
			bar.Increment()
		})
		bar.Abort(false)
		if err != nil {
			el.Log(err, app.LogOptions{
				Msg:  "error while scanning candidates",
				Tags: map[string]string{"domain": pd.Domain},
			})
			continue
		}

		total.Candidates += stats.Candidates
		total.Persisted += stats.Persisted
		total.Duplicates += stats.Duplicates
		total.BelowBar += stats.BelowBar
		total.Failed += stats.Failed
	}
	p.Wait()

	log.Info().
		Int("candidates", total.Candidates).
		Int("persisted", total.Persisted).
		Int("duplicates", total.Duplicates).
		Int("below_bar", total.BelowBar).
		Int("failed", total.Failed).
		Msg("scan run complete")
}
