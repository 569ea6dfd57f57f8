package main

import (
	"flag"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cse-security/phishmon/app"
	"github.com/cse-security/phishmon/dedup"
	"github.com/cse-security/phishmon/store"
)

// The deduplication run is the single writer of the active flag transitions
// it makes: run it as a periodic batch job, never concurrently with itself.
func main() {
	confFile := flag.String("config", "config/dedup.yml", "location of configuration file")
	flag.Parse()

	conf, err := readConfig(*confFile)
	if err != nil {
		log.Fatal().Msgf("error while reading configuration: %s", err)
	}
	zerolog.SetGlobalLevel(app.ParseLogLevel(conf.LogLevel))

	var s *store.Store
	if err := app.Retry(func() error {
		var err error
		s, err = store.NewStore(conf.Store, store.DefaultOpts)
		return err
	}, 3); err != nil {
		log.Fatal().Msgf("error while connecting to store: %s", err)
	}
	defer s.Close()

	detections, err := s.ActiveDetections()
	if err != nil {
		log.Fatal().Msgf("error while loading active detections: %s", err)
	}

	engine := dedup.NewEngine(conf.Dedup)
	res := engine.Deduplicate(detections)
	stats := res.Stats()

	log.Info().
		Str("run", res.RunID).
		Int("active", len(detections)).
		Int("clusters", stats.Clusters).
		Int("kept", stats.Kept).
		Int("deactivated", stats.Deactivated).
		Msg("deduplication computed")

	if conf.DryRun {
		for _, d := range res.Deactivated {
			log.Info().
				Str("domain", d.Domain).
				Uint("duplicate_of", *d.DuplicateOfID).
				Msg("would deactivate")
		}
		return
	}

	if err := s.ApplyDeduplication(res.Deactivated); err != nil {
		log.Fatal().Msgf("error while applying deduplication: %s", err)
	}
	log.Info().Int("deactivated", stats.Deactivated).Msg("deduplication applied")
}
