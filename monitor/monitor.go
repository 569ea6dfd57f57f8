package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
	"github.com/cse-security/phishmon/store/models"
)

var DefaultOpts = Opts{
	DurationDays:        90,
	MaxDurationDays:     365,
	HighIntervalHours:   6,
	MediumIntervalHours: 24,
	LowIntervalHours:    168,
	ChangeThreshold:     0.15,
	LookalikeThreshold:  80,
	CheckTimeout:        30 * time.Second,
}

type Opts struct {
	DurationDays        int           `yaml:"duration_days"`
	MaxDurationDays     int           `yaml:"max_duration_days"`
	HighIntervalHours   int           `yaml:"high_interval_hours"`
	MediumIntervalHours int           `yaml:"medium_interval_hours"`
	LowIntervalHours    int           `yaml:"low_interval_hours"`
	ChangeThreshold     float64       `yaml:"change_threshold"`
	LookalikeThreshold  float64       `yaml:"lookalike_threshold"`
	CheckTimeout        time.Duration `yaml:"check_timeout"`
}

func (o Opts) withDefaults() Opts {
	d := DefaultOpts
	if o.DurationDays > 0 {
		d.DurationDays = o.DurationDays
	}
	if o.MaxDurationDays > 0 {
		d.MaxDurationDays = o.MaxDurationDays
	}
	if o.HighIntervalHours > 0 {
		d.HighIntervalHours = o.HighIntervalHours
	}
	if o.MediumIntervalHours > 0 {
		d.MediumIntervalHours = o.MediumIntervalHours
	}
	if o.LowIntervalHours > 0 {
		d.LowIntervalHours = o.LowIntervalHours
	}
	if o.ChangeThreshold > 0 {
		d.ChangeThreshold = o.ChangeThreshold
	}
	if o.LookalikeThreshold > 0 {
		d.LookalikeThreshold = o.LookalikeThreshold
	}
	if o.CheckTimeout > 0 {
		d.CheckTimeout = o.CheckTimeout
	}
	return d
}

// Storage is the slice of the store the monitor needs.
type Storage interface {
	GetActiveDetection(domain string) (*models.Detection, bool, error)
	CreateDetection(d *models.Detection) error
	UpdateDetection(d *models.Detection) error
	CreateSchedule(sch *models.MonitoringSchedule) error
	UpdateSchedule(sch *models.MonitoringSchedule) error
	DueSchedules(now time.Time) ([]*models.MonitoringSchedule, error)
	ExpireSchedules(now time.Time) (int, error)
	AppendChangeEvent(ev *models.ContentChangeEvent) error
}

// Monitor drives the long-term observation of suspect domains: schedule
// creation, the periodic due sweep, per-domain check cycles and the expiry
// sweep.
type Monitor struct {
	storage  Storage
	enricher enrich.Enricher
	reach    enrich.ReachabilityChecker
	fp       enrich.Fingerprinter
	scorer   *score.Scorer
	locks    *store.CheckLock
	opts     Opts
	now      func() time.Time
}

func NewMonitor(storage Storage, enricher enrich.Enricher, reach enrich.ReachabilityChecker, scorer *score.Scorer, opts Opts) *Monitor {
	return &Monitor{
		storage:  storage,
		enricher: enricher,
		reach:    reach,
		scorer:   scorer,
		locks:    store.NewCheckLock(),
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// WithFingerprinter replaces the fact-derived content fingerprint with an
// external capture (e.g. a rendered-page hash).
func (m *Monitor) WithFingerprinter(fp enrich.Fingerprinter) *Monitor {
	m.fp = fp
	return m
}

// WithLocks shares an existing per-domain lock set, so two consumers of the
// same store in one process cannot check a domain concurrently.
func (m *Monitor) WithLocks(locks *store.CheckLock) *Monitor {
	m.locks = locks
	return m
}

func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Schedule escalates a detection to the long-term watch. The duration is
// capped at the configured maximum and the re-check interval derives from
// the detection's risk tier.
func (m *Monitor) Schedule(d *models.Detection, durationDays int) (*models.MonitoringSchedule, error) {
	if durationDays <= 0 {
		durationDays = m.opts.DurationDays
	}
	if durationDays > m.opts.MaxDurationDays {
		durationDays = m.opts.MaxDurationDays
	}

	interval := m.interval(d.RiskTier)
	now := m.now()

	sch := models.MonitoringSchedule{
		ProtectedDomainID: d.ProtectedDomainID,
		Domain:            d.Domain,
		RiskTier:          d.RiskTier,
		IntervalHours:     interval,
		DurationDays:      durationDays,
		NextDueAt:         now.Add(time.Duration(interval) * time.Hour),
		EndAt:             now.AddDate(0, 0, durationDays),
		Active:            true,
		State:             models.ScheduleStateActive,
	}

	if err := m.storage.CreateSchedule(&sch); err != nil {
		return nil, err
	}
	log.Info().
		Str("domain", sch.Domain).
		Str("tier", sch.RiskTier).
		Int("interval_hours", interval).
		Int("duration_days", durationDays).
		Msg("monitoring schedule created")
	return &sch, nil
}

func (m *Monitor) interval(tier string) int {
	switch score.Tier(tier) {
	case score.TierHigh:
		return m.opts.HighIntervalHours
	case score.TierLow:
		return m.opts.LowIntervalHours
	default:
		return m.opts.MediumIntervalHours
	}
}

type SweepResult struct {
	Due     int
	Checked int
	Skipped int
	Failed  int
	Changes int
}

// RunDueSweep checks every due schedule, fanning out over at most workers
// goroutines. A failing domain is logged and retried on the next sweep; it
// never aborts the sweep for the others.
func (m *Monitor) RunDueSweep(ctx context.Context, workers int64) (SweepResult, error) {
	now := m.now()
	due, err := m.storage.DueSchedules(now)
	if err != nil {
		return SweepResult{}, errors.Wrap(err, "select due schedules")
	}

	res := SweepResult{Due: len(due)}
	if len(due) == 0 {
		return res, nil
	}
	log.Info().Int("due", len(due)).Msg("starting due sweep")

	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)

	type outcome struct {
		checked, skipped, failed bool
		changes                  int
	}
	outcomes := make(chan outcome, len(due))

	for _, sch := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes <- outcome{skipped: true}
			continue
		}
		go func(sch *models.MonitoringSchedule) {
			defer sem.Release(1)

			changes, err := m.Check(ctx, sch)
			if err == ErrCheckInProgress {
				outcomes <- outcome{skipped: true}
				return
			}
			if err != nil {
				log.Error().Str("domain", sch.Domain).Msgf("check failed: %s", err)
				outcomes <- outcome{failed: true}
				return
			}
			outcomes <- outcome{checked: true, changes: changes}
		}(sch)
	}

	for range due {
		o := <-outcomes
		switch {
		case o.checked:
			res.Checked++
			res.Changes += o.changes
		case o.skipped:
			res.Skipped++
		case o.failed:
			res.Failed++
		}
	}

	log.Info().
		Int("checked", res.Checked).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("changes", res.Changes).
		Msg("due sweep complete")
	return res, nil
}

// ErrCheckInProgress is returned when another worker already holds the
// per-domain check lock.
var ErrCheckInProgress = errors.New("a check for this domain is already running")

// Check runs a single check cycle under the per-domain lock, guaranteeing
// one concurrent check per domain.
func (m *Monitor) Check(ctx context.Context, sch *models.MonitoringSchedule) (int, error) {
	if !m.locks.Acquire(sch.Domain) {
		return 0, ErrCheckInProgress
	}
	defer m.locks.Release(sch.Domain)

	return m.checkDomain(ctx, sch)
}

// checkDomain runs a single check cycle. On failure the schedule is left
// unadvanced so the domain is retried on the next sweep.
func (m *Monitor) checkDomain(ctx context.Context, sch *models.MonitoringSchedule) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.CheckTimeout)
	defer cancel()

	now := m.now()

	if !m.reach.IsReachable(ctx, sch.Domain) {
		sch.Active = false
		sch.State = models.ScheduleStateInaccessible
		if err := m.storage.UpdateSchedule(sch); err != nil {
			return 0, errors.Wrap(err, "deactivate unreachable schedule")
		}
		log.Warn().Str("domain", sch.Domain).Msg("domain no longer accessible, monitoring stopped")
		return 0, nil
	}

	facts, err := m.enricher.Enrich(ctx, sch.Domain)
	if err != nil {
		return 0, errors.Wrap(err, "enrich domain")
	}

	prev, found, err := m.storage.GetActiveDetection(sch.Domain)
	if err != nil {
		return 0, errors.Wrap(err, "load detection")
	}

	changes := 0
	if found {
		// the diff below needs the pre-mutation row, so snapshot before
		// the facts are applied
		snapshot := deepcopy.Copy(prev).(*models.Detection)

		result := m.scorer.Score(facts)
		prev.ApplyFacts(facts)
		prev.RiskScore = result.Total
		prev.RiskTier = string(result.Tier)
		prev.LastCheckedAt = now

		// an external capture overrides the fact-derived hash; the hash
		// compared here is also the one persisted
		if m.fp != nil {
			captured, err := m.fp.CaptureFingerprint(ctx, sch.Domain)
			if err != nil {
				return 0, errors.Wrap(err, "capture fingerprint")
			}
			prev.ContentHash = captured
		}

		n, err := m.emitChangeEvents(sch, snapshot, prev, facts)
		if err != nil {
			return 0, err
		}
		changes = n

		if err := m.storage.UpdateDetection(prev); err != nil {
			return 0, errors.Wrap(err, "refresh detection")
		}
	} else {
		result := m.scorer.Score(facts)
		d := models.Detection{
			ProtectedDomainID: sch.ProtectedDomainID,
			Domain:            sch.Domain,
			Technique:         "monitored_domain",
			RiskScore:         result.Total,
			RiskTier:          string(result.Tier),
		}
		d.ApplyFacts(facts)
		if err := m.storage.CreateDetection(&d); err != nil {
			if _, dup := err.(store.DuplicateDetectionErr); !dup {
				return 0, errors.Wrap(err, "create detection")
			}
		}
	}

	sch.LastCheckedAt = now
	sch.NextDueAt = now.Add(time.Duration(sch.IntervalHours) * time.Hour)
	if err := m.storage.UpdateSchedule(sch); err != nil {
		return 0, errors.Wrap(err, "advance schedule")
	}
	return changes, nil
}

// emitChangeEvents diffs the pre-check snapshot against the refreshed row.
// The after row already carries the hash the caller will persist.
func (m *Monitor) emitChangeEvents(sch *models.MonitoringSchedule, before, after *models.Detection, facts enrich.Facts) (int, error) {
	changes := 0
	beforeFacts := before.Facts()
	beforeTuple := beforeFacts.CanonicalTuple()
	afterTuple := facts.CanonicalTuple()

	if before.ContentHash != "" && before.ContentHash != after.ContentHash {
		magnitude := changeMagnitude(beforeTuple, afterTuple)
		if magnitude >= m.opts.ChangeThreshold {
			if err := m.appendEvent(sch, before, models.ChangeCategoryContent, before.ContentHash, after.ContentHash, magnitude, beforeTuple, afterTuple); err != nil {
				return changes, err
			}
			changes++
			log.Warn().
				Str("domain", sch.Domain).
				Float64("magnitude", magnitude).
				Msg("content change detected")
		}
	}

	if !before.HasBinaryHosting && facts.HasBinaryHosting {
		if err := m.appendEvent(sch, before, models.ChangeCategoryBinary, before.ContentHash, after.ContentHash, 0, beforeTuple, afterTuple); err != nil {
			return changes, err
		}
		changes++
		log.Warn().Str("domain", sch.Domain).Msg("binary hosting detected")
	}

	if facts.VisualSimilarity != nil && *facts.VisualSimilarity > m.opts.LookalikeThreshold {
		if err := m.appendEvent(sch, before, models.ChangeCategoryLookalike, before.ContentHash, after.ContentHash, 0, beforeTuple, afterTuple); err != nil {
			return changes, err
		}
		changes++
		log.Warn().
			Str("domain", sch.Domain).
			Float64("similarity", *facts.VisualSimilarity).
			Msg("lookalike content detected")
	}

	return changes, nil
}

func (m *Monitor) appendEvent(sch *models.MonitoringSchedule, prev *models.Detection, category, beforeHash, afterHash string, magnitude float64, beforeTuple, afterTuple []string) error {
	details, err := json.Marshal(struct {
		Before []string `json:"before"`
		After  []string `json:"after"`
	}{beforeTuple, afterTuple})
	if err != nil {
		return errors.Wrap(err, "marshal event details")
	}

	detID := prev.ID
	ev := models.ContentChangeEvent{
		Uuid:        uuid.New().String(),
		Domain:      sch.Domain,
		DetectionID: &detID,
		Category:    category,
		BeforeHash:  beforeHash,
		AfterHash:   afterHash,
		ChangePct:   magnitude,
		Details:     string(details),
		DetectedAt:  m.now(),
	}
	return errors.Wrap(m.storage.AppendChangeEvent(&ev), "append change event")
}

// RunExpirySweep deactivates schedules whose observation window has passed.
func (m *Monitor) RunExpirySweep() (int, error) {
	n, err := m.storage.ExpireSchedules(m.now())
	if err != nil {
		return 0, errors.Wrap(err, "expire schedules")
	}
	if n > 0 {
		log.Info().Int("expired", n).Msg("expiry sweep complete")
	}
	return n, nil
}
