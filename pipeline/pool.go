package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/generate"
	"github.com/cse-security/phishmon/monitor"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
	"github.com/cse-security/phishmon/store/models"
)

var DefaultOpts = Opts{
	Workers:       5,
	EnrichTimeout: 15 * time.Second,
	MaxVariations: 10000,
}

type Opts struct {
	Workers       int           `yaml:"workers"`
	EnrichTimeout time.Duration `yaml:"enrich_timeout"`
	MaxVariations int           `yaml:"max_variations"`
}

func (o Opts) withDefaults() Opts {
	d := DefaultOpts
	if o.Workers > 0 {
		d.Workers = o.Workers
	}
	if o.EnrichTimeout > 0 {
		d.EnrichTimeout = o.EnrichTimeout
	}
	if o.MaxVariations > 0 {
		d.MaxVariations = o.MaxVariations
	}
	return d
}

// Outcome classifies the result of one unit of work.
type Outcome int

const (
	OutcomeBelowBar Outcome = iota
	OutcomePersisted
	OutcomeDuplicate
	OutcomeFailed
)

// Storage is the slice of the store the pool writes to.
type Storage interface {
	CreateDetection(d *models.Detection) error
}

// Stats summarizes one scan of a protected domain.
type Stats struct {
	Candidates int
	Persisted  int
	Duplicates int
	BelowBar   int
	Failed     int
}

// Pool fans candidate scans and scheduled rechecks out over a bounded set
// of workers. Work items are independent: the only cross-worker coordination
// is the store's own transactional guarantees.
type Pool struct {
	storage  Storage
	enricher enrich.Enricher
	scorer   *score.Scorer
	monitor  *monitor.Monitor
	opts     Opts
}

func NewPool(storage Storage, enricher enrich.Enricher, scorer *score.Scorer, mon *monitor.Monitor, opts Opts) *Pool {
	return &Pool{
		storage:  storage,
		enricher: enricher,
		scorer:   scorer,
		monitor:  mon,
		opts:     opts.withDefaults(),
	}
}

// ScanProtectedDomain generates look-alike candidates for one protected
// domain and scores each of them concurrently. onDone, when non-nil, is
// invoked once per candidate as it completes.
func (p *Pool) ScanProtectedDomain(ctx context.Context, pd *models.ProtectedDomain, onDone func(Outcome)) (Stats, error) {
	candidates, err := generate.Generate(pd.Domain, p.opts.MaxVariations)
	if err != nil {
		return Stats{}, errors.Wrap(err, "generate candidates")
	}
	return p.ScanCandidates(ctx, pd, candidates, onDone)
}

// ScanCandidates scores a pre-generated candidate list, for callers that
// need the candidate count up front (e.g. to size a progress bar).
func (p *Pool) ScanCandidates(ctx context.Context, pd *models.ProtectedDomain, candidates []generate.Candidate, onDone func(Outcome)) (Stats, error) {
	stats := Stats{Candidates: len(candidates)}
	log.Info().
		Str("protected", pd.Domain).
		Int("candidates", len(candidates)).
		Msg("scanning candidates")

	sem := semaphore.NewWeighted(int64(p.opts.Workers))
	var wg sync.WaitGroup
	var m sync.Mutex

	for _, c := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			return stats, errors.Wrap(err, "acquire worker slot")
		}
		wg.Add(1)
		go func(c generate.Candidate) {
			defer wg.Done()
			defer sem.Release(1)

			outcome := p.processCandidate(ctx, pd, c)

			m.Lock()
			switch outcome {
			case OutcomePersisted:
				stats.Persisted++
			case OutcomeDuplicate:
				stats.Duplicates++
			case OutcomeBelowBar:
				stats.BelowBar++
			case OutcomeFailed:
				stats.Failed++
			}
			m.Unlock()

			if onDone != nil {
				onDone(outcome)
			}
		}(c)
	}
	wg.Wait()

	log.Info().
		Str("protected", pd.Domain).
		Int("persisted", stats.Persisted).
		Int("duplicates", stats.Duplicates).
		Int("below_bar", stats.BelowBar).
		Int("failed", stats.Failed).
		Msg("scan complete")
	return stats, nil
}

// processCandidate enriches and scores one candidate. An enrichment failure
// degrades to an empty fact bundle (neutral sub-scores) instead of
// propagating: a WHOIS timeout must not hide a live look-alike.
func (p *Pool) processCandidate(ctx context.Context, pd *models.ProtectedDomain, c generate.Candidate) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.opts.EnrichTimeout)
	defer cancel()

	facts, err := p.enricher.Enrich(ctx, c.Domain)
	if err != nil {
		log.Debug().Str("domain", c.Domain).Msgf("enrichment failed, scoring with unknowns: %s", err)
		facts = enrich.Facts{}
	}

	result := p.scorer.Score(facts)
	if !p.scorer.IsDetection(result.Total) {
		return OutcomeBelowBar
	}

	d := models.Detection{
		ProtectedDomainID: pd.ID,
		Domain:            c.Domain,
		Technique:         string(c.Technique),
		RiskScore:         result.Total,
		RiskTier:          string(result.Tier),
	}
	d.ApplyFacts(facts)

	if err := p.storage.CreateDetection(&d); err != nil {
		switch err.(type) {
		case store.DuplicateDetectionErr:
			return OutcomeDuplicate
		case store.ConflictErr:
			log.Warn().Str("domain", c.Domain).Msg("conflicting write, candidate will be retried on the next scan")
			return OutcomeFailed
		default:
			log.Error().Str("domain", c.Domain).Msgf("persist detection: %s", err)
			return OutcomeFailed
		}
	}

	if p.monitor != nil {
		if _, err := p.monitor.Schedule(&d, 0); err != nil {
			if _, exists := err.(store.ScheduleExistsErr); !exists {
				log.Error().Str("domain", c.Domain).Msgf("schedule monitoring: %s", err)
			}
		}
	}
	return OutcomePersisted
}

// RunRechecks processes every due schedule through the monitor, using the
// same worker bound as candidate scans.
func (p *Pool) RunRechecks(ctx context.Context) (monitor.SweepResult, error) {
	return p.monitor.RunDueSweep(ctx, int64(p.opts.Workers))
}
