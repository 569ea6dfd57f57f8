package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/generate"
	"github.com/cse-security/phishmon/monitor"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
	"github.com/cse-security/phishmon/store/models"
)

// fakeStore implements both the pool's and the monitor's storage interfaces.
type fakeStore struct {
	m          sync.Mutex
	detections map[string]*models.Detection
	schedules  map[string]*models.MonitoringSchedule
	nextID     uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		detections: map[string]*models.Detection{},
		schedules:  map[string]*models.MonitoringSchedule{},
		nextID:     1,
	}
}

func (f *fakeStore) CreateDetection(d *models.Detection) error {
	f.m.Lock()
	defer f.m.Unlock()
	if _, ok := f.detections[d.Domain]; ok {
		return store.DuplicateDetectionErr{Domain: d.Domain}
	}
	d.ID = f.nextID
	f.nextID++
	d.Active = true
	f.detections[d.Domain] = d
	return nil
}

func (f *fakeStore) GetActiveDetection(domain string) (*models.Detection, bool, error) {
	f.m.Lock()
	defer f.m.Unlock()
	d, ok := f.detections[domain]
	return d, ok, nil
}

func (f *fakeStore) UpdateDetection(d *models.Detection) error { return nil }

func (f *fakeStore) CreateSchedule(sch *models.MonitoringSchedule) error {
	f.m.Lock()
	defer f.m.Unlock()
	if _, ok := f.schedules[sch.Domain]; ok {
		return store.ScheduleExistsErr{Domain: sch.Domain}
	}
	f.schedules[sch.Domain] = sch
	return nil
}

func (f *fakeStore) UpdateSchedule(sch *models.MonitoringSchedule) error { return nil }

func (f *fakeStore) DueSchedules(now time.Time) ([]*models.MonitoringSchedule, error) {
	return nil, nil
}

func (f *fakeStore) ExpireSchedules(now time.Time) (int, error) { return 0, nil }

func (f *fakeStore) AppendChangeEvent(ev *models.ContentChangeEvent) error { return nil }

type fakeEnricher struct {
	facts enrich.Facts
	err   error
}

func (f *fakeEnricher) Enrich(ctx context.Context, domain string) (enrich.Facts, error) {
	return f.facts, f.err
}

type alwaysReachable struct{}

func (alwaysReachable) IsReachable(ctx context.Context, domain string) bool { return true }

func testPool(s *fakeStore, enricher *fakeEnricher) *Pool {
	scorer := score.NewScorer(score.DefaultThresholds)
	mon := monitor.NewMonitor(s, enricher, alwaysReachable{}, scorer, monitor.Opts{})
	return NewPool(s, enricher, scorer, mon, Opts{Workers: 3})
}

func TestScanCandidatesPersistsAboveBar(t *testing.T) {
	s := newFakeStore()
	// blacklist hit pushes the composite score over the detection bar
	enricher := &fakeEnricher{facts: enrich.Facts{
		IP:            "1.2.3.4",
		BlacklistHits: map[string]bool{"openphish": true},
	}}
	pool := testPool(s, enricher)

	pd := &models.ProtectedDomain{ID: 1, Domain: "examplebank.com"}
	candidates := []generate.Candidate{
		{Domain: "examp1ebank.com", Technique: generate.TechniqueSubstitution},
		{Domain: "examplebank.net", Technique: generate.TechniqueTLDSwap},
	}

	stats, err := pool.ScanCandidates(context.Background(), pd, candidates, nil)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if stats.Persisted != 2 {
		t.Fatalf("expected 2 persisted detections, but got %+v", stats)
	}
	if len(s.detections) != 2 {
		t.Fatalf("expected 2 detections in the store, but got %d", len(s.detections))
	}
	if len(s.schedules) != 2 {
		t.Fatalf("expected each detection escalated to monitoring, but got %d schedules", len(s.schedules))
	}

	d := s.detections["examp1ebank.com"]
	if d.Technique != string(generate.TechniqueSubstitution) {
		t.Fatalf("expected the generation technique recorded, but got '%s'", d.Technique)
	}
	if d.RiskScore < 50 {
		t.Fatalf("expected the persisted risk score above the bar, but got %f", d.RiskScore)
	}
}

func TestScanCandidatesBelowBar(t *testing.T) {
	s := newFakeStore()
	// an address record alone scores below the detection bar
	pool := testPool(s, &fakeEnricher{facts: enrich.Facts{IP: "1.2.3.4"}})

	pd := &models.ProtectedDomain{ID: 1, Domain: "examplebank.com"}
	candidates := []generate.Candidate{
		{Domain: "examplebank.net", Technique: generate.TechniqueTLDSwap},
	}

	stats, err := pool.ScanCandidates(context.Background(), pd, candidates, nil)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if stats.BelowBar != 1 || stats.Persisted != 0 {
		t.Fatalf("expected the candidate dropped below the bar, but got %+v", stats)
	}
	if len(s.detections) != 0 {
		t.Fatalf("expected no detections persisted")
	}
}

func TestScanCandidatesEnrichFailureIsNotFatal(t *testing.T) {
	s := newFakeStore()
	// a WHOIS timeout degrades to unknown facts instead of failing the scan
	pool := testPool(s, &fakeEnricher{err: errors.New("whois timed out")})

	pd := &models.ProtectedDomain{ID: 1, Domain: "examplebank.com"}
	candidates := []generate.Candidate{
		{Domain: "examplebank.net", Technique: generate.TechniqueTLDSwap},
	}

	stats, err := pool.ScanCandidates(context.Background(), pd, candidates, nil)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if stats.Failed != 0 {
		t.Fatalf("expected no failures, but got %+v", stats)
	}
	if stats.BelowBar != 1 {
		t.Fatalf("expected the unknown bundle to score below the bar, but got %+v", stats)
	}
}

func TestScanCandidatesDuplicate(t *testing.T) {
	s := newFakeStore()
	enricher := &fakeEnricher{facts: enrich.Facts{
		IP:            "1.2.3.4",
		BlacklistHits: map[string]bool{"openphish": true},
	}}
	pool := testPool(s, enricher)

	pd := &models.ProtectedDomain{ID: 1, Domain: "examplebank.com"}
	candidates := []generate.Candidate{
		{Domain: "examplebank.net", Technique: generate.TechniqueTLDSwap},
	}

	if _, err := pool.ScanCandidates(context.Background(), pd, candidates, nil); err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	stats, err := pool.ScanCandidates(context.Background(), pd, candidates, nil)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if stats.Duplicates != 1 || stats.Persisted != 0 {
		t.Fatalf("expected the second scan to report a duplicate, but got %+v", stats)
	}
}

func TestScanCandidatesReportsProgress(t *testing.T) {
	s := newFakeStore()
	pool := testPool(s, &fakeEnricher{facts: enrich.Facts{IP: "1.2.3.4"}})

	pd := &models.ProtectedDomain{ID: 1, Domain: "examplebank.com"}
	candidates := []generate.Candidate{
		{Domain: "examplebank.net", Technique: generate.TechniqueTLDSwap},
		{Domain: "examp1ebank.com", Technique: generate.TechniqueSubstitution},
	}

	var m sync.Mutex
	calls := 0
	_, err := pool.ScanCandidates(context.Background(), pd, candidates, func(Outcome) {
		m.Lock()
		calls++
		m.Unlock()
	})
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if calls != 2 {
		t.Fatalf("expected the callback invoked once per candidate, but got %d", calls)
	}
}
