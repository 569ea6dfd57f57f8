package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/cse-security/phishmon/enrich"
	"github.com/cse-security/phishmon/score"
	"github.com/cse-security/phishmon/store"
	"github.com/cse-security/phishmon/store/models"
)

type fakeStorage struct {
	detections map[string]*models.Detection
	schedules  []*models.MonitoringSchedule
	events     []*models.ContentChangeEvent
	nextID     uint
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		detections: map[string]*models.Detection{},
		nextID:     1,
	}
}

func (f *fakeStorage) GetActiveDetection(domain string) (*models.Detection, bool, error) {
	d, ok := f.detections[domain]
	return d, ok, nil
}

func (f *fakeStorage) CreateDetection(d *models.Detection) error {
	d.ID = f.nextID
	f.nextID++
	d.Active = true
	f.detections[d.Domain] = d
	return nil
}

func (f *fakeStorage) UpdateDetection(d *models.Detection) error {
	f.detections[d.Domain] = d
	return nil
}

func (f *fakeStorage) CreateSchedule(sch *models.MonitoringSchedule) error {
	sch.ID = f.nextID
	f.nextID++
	f.schedules = append(f.schedules, sch)
	return nil
}

func (f *fakeStorage) UpdateSchedule(sch *models.MonitoringSchedule) error {
	return nil
}

func (f *fakeStorage) DueSchedules(now time.Time) ([]*models.MonitoringSchedule, error) {
	var due []*models.MonitoringSchedule
	for _, sch := range f.schedules {
		if sch.Active && !sch.NextDueAt.After(now) && sch.EndAt.After(now) {
			due = append(due, sch)
		}
	}
	return due, nil
}

func (f *fakeStorage) ExpireSchedules(now time.Time) (int, error) {
	n := 0
	for _, sch := range f.schedules {
		if sch.Active && !sch.EndAt.After(now) {
			sch.Active = false
			sch.State = models.ScheduleStateExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStorage) AppendChangeEvent(ev *models.ContentChangeEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeEnricher struct {
	facts enrich.Facts
	err   error
}

func (f *fakeEnricher) Enrich(ctx context.Context, domain string) (enrich.Facts, error) {
	return f.facts, f.err
}

type fakeFingerprinter struct {
	hash string
}

func (f *fakeFingerprinter) CaptureFingerprint(ctx context.Context, domain string) (string, error) {
	return f.hash, nil
}

type fakeReach struct {
	reachable bool
}

func (f *fakeReach) IsReachable(ctx context.Context, domain string) bool {
	return f.reachable
}

func testMonitor(storage *fakeStorage, enricher *fakeEnricher, reach *fakeReach, now time.Time) *Monitor {
	m := NewMonitor(storage, enricher, reach, score.NewScorer(score.DefaultThresholds), Opts{})
	m.WithClock(func() time.Time { return now })
	return m
}

func TestScheduleTierIntervals(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		tier     string
		expected int
	}{
		{string(score.TierHigh), 6},
		{string(score.TierMedium), 24},
		{string(score.TierLow), 168},
	}
	for _, tc := range cases {
		storage := newFakeStorage()
		m := testMonitor(storage, &fakeEnricher{}, &fakeReach{true}, now)

		d := &models.Detection{Domain: "examplebank.net", RiskTier: tc.tier}
		sch, err := m.Schedule(d, 0)
		if err != nil {
			t.Fatalf("expected no error, but got %s", err)
		}
		if sch.IntervalHours != tc.expected {
			t.Fatalf("expected a %dh interval for tier %s, but got %dh", tc.expected, tc.tier, sch.IntervalHours)
		}
		if expected := now.Add(time.Duration(tc.expected) * time.Hour); !sch.NextDueAt.Equal(expected) {
			t.Fatalf("expected next due at %s, but got %s", expected, sch.NextDueAt)
		}
		if expected := now.AddDate(0, 0, 90); !sch.EndAt.Equal(expected) {
			t.Fatalf("expected the default 90 day window, but got %s", sch.EndAt)
		}
		if !sch.Active || sch.State != models.ScheduleStateActive {
			t.Fatalf("expected a new schedule to be active")
		}
	}
}

func TestScheduleDurationCap(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	m := testMonitor(storage, &fakeEnricher{}, &fakeReach{true}, now)

	d := &models.Detection{Domain: "examplebank.net", RiskTier: string(score.TierHigh)}
	sch, err := m.Schedule(d, 1000)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if sch.DurationDays != 365 {
		t.Fatalf("expected the duration capped at 365 days, but got %d", sch.DurationDays)
	}
}

func TestDueSweepSelection(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()

	storage.schedules = []*models.MonitoringSchedule{
		{Domain: "due.net", Active: true, NextDueAt: now.Add(-time.Hour), EndAt: now.AddDate(0, 0, 30)},
		{Domain: "future.net", Active: true, NextDueAt: now.Add(time.Hour), EndAt: now.AddDate(0, 0, 30)},
		{Domain: "ended.net", Active: true, NextDueAt: now.Add(-time.Hour), EndAt: now.Add(-time.Minute)},
		{Domain: "inactive.net", Active: false, NextDueAt: now.Add(-time.Hour), EndAt: now.AddDate(0, 0, 30)},
	}

	due, err := storage.DueSchedules(now)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if len(due) != 1 || due[0].Domain != "due.net" {
		t.Fatalf("expected only 'due.net' to be selected, but got %d schedules", len(due))
	}
}

func TestCheckUnreachableDeactivates(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	m := testMonitor(storage, &fakeEnricher{}, &fakeReach{reachable: false}, now)

	sch := &models.MonitoringSchedule{
		Domain:        "gone.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	changes, err := m.Check(context.Background(), sch)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if changes != 0 {
		t.Fatalf("expected no change events, but got %d", changes)
	}
	if sch.Active || sch.State != models.ScheduleStateInaccessible {
		t.Fatalf("expected the schedule deactivated as inaccessible, but got active=%t state=%s", sch.Active, sch.State)
	}
}

func TestCheckEnrichFailureLeavesScheduleUnadvanced(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	enricher := &fakeEnricher{err: errors.New("whois timed out")}
	m := testMonitor(storage, enricher, &fakeReach{reachable: true}, now)

	due := now.Add(-time.Hour)
	sch := &models.MonitoringSchedule{
		Domain:        "flaky.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     due,
		EndAt:         now.AddDate(0, 0, 30),
	}

	if _, err := m.Check(context.Background(), sch); err == nil {
		t.Fatalf("expected an error, but got none")
	}
	if !sch.NextDueAt.Equal(due) {
		t.Fatalf("expected the schedule to stay unadvanced, but next due moved to %s", sch.NextDueAt)
	}
}

func TestCheckContentChangeEvent(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()

	before := enrich.Facts{IP: "1.2.3.4", Registrar: "namecheap"}
	prev := &models.Detection{Domain: "drift.net", RiskTier: string(score.TierMedium)}
	prev.ApplyFacts(before)
	storage.CreateDetection(prev)

	after := enrich.Facts{IP: "98.76.54.32", Registrar: "porkbun", Registrant: "John Doe", HasLoginForm: true}
	m := testMonitor(storage, &fakeEnricher{facts: after}, &fakeReach{reachable: true}, now)

	sch := &models.MonitoringSchedule{
		Domain:        "drift.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	changes, err := m.Check(context.Background(), sch)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if changes < 1 {
		t.Fatalf("expected at least one change event, but got %d", changes)
	}

	found := false
	for _, ev := range storage.events {
		if ev.Category == models.ChangeCategoryContent {
			found = true
			if ev.BeforeHash == ev.AfterHash {
				t.Fatalf("expected distinct before/after hashes")
			}
			if ev.ChangePct < 0.15 {
				t.Fatalf("expected the change magnitude to clear the threshold, but got %f", ev.ChangePct)
			}
		}
	}
	if !found {
		t.Fatalf("expected a %s event", models.ChangeCategoryContent)
	}

	if expected := now.Add(24 * time.Hour); !sch.NextDueAt.Equal(expected) {
		t.Fatalf("expected the schedule advanced to %s, but got %s", expected, sch.NextDueAt)
	}
}

func TestCheckExternalFingerprintPersisted(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()

	prev := &models.Detection{Domain: "drift.net", RiskTier: string(score.TierMedium)}
	prev.ApplyFacts(enrich.Facts{IP: "1.2.3.4", Registrar: "namecheap"})
	storage.CreateDetection(prev)

	after := enrich.Facts{IP: "98.76.54.32", Registrar: "porkbun", Registrant: "John Doe", HasLoginForm: true}
	m := testMonitor(storage, &fakeEnricher{facts: after}, &fakeReach{reachable: true}, now)
	m.WithFingerprinter(&fakeFingerprinter{hash: "a1b2c3"})

	sch := &models.MonitoringSchedule{
		Domain:        "drift.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	changes, err := m.Check(context.Background(), sch)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if changes != 1 {
		t.Fatalf("expected one content change event, but got %d", changes)
	}
	if hash := storage.detections["drift.net"].ContentHash; hash != "a1b2c3" {
		t.Fatalf("expected the captured fingerprint to be persisted, but got '%s'", hash)
	}

	// an unchanged capture must stay quiet on the next check
	changes, err = m.Check(context.Background(), sch)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if changes != 0 {
		t.Fatalf("expected no further change events, but got %d", changes)
	}
	if len(storage.events) != 1 {
		t.Fatalf("expected a single stored event, but got %d", len(storage.events))
	}
}

func TestCheckBinaryHostingEvent(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()

	prev := &models.Detection{Domain: "payload.net", RiskTier: string(score.TierMedium)}
	prev.ApplyFacts(enrich.Facts{IP: "1.2.3.4"})
	storage.CreateDetection(prev)

	after := enrich.Facts{IP: "1.2.3.4", HasBinaryHosting: true}
	m := testMonitor(storage, &fakeEnricher{facts: after}, &fakeReach{reachable: true}, now)

	sch := &models.MonitoringSchedule{
		Domain:        "payload.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	if _, err := m.Check(context.Background(), sch); err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}

	found := false
	for _, ev := range storage.events {
		if ev.Category == models.ChangeCategoryBinary {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a %s event", models.ChangeCategoryBinary)
	}
}

func TestCheckLookalikeEvent(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()

	prev := &models.Detection{Domain: "clone.net", RiskTier: string(score.TierMedium)}
	prev.ApplyFacts(enrich.Facts{IP: "1.2.3.4"})
	storage.CreateDetection(prev)

	similarity := 92.0
	after := enrich.Facts{IP: "1.2.3.4", VisualSimilarity: &similarity}
	m := testMonitor(storage, &fakeEnricher{facts: after}, &fakeReach{reachable: true}, now)

	sch := &models.MonitoringSchedule{
		Domain:        "clone.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	if _, err := m.Check(context.Background(), sch); err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}

	found := false
	for _, ev := range storage.events {
		if ev.Category == models.ChangeCategoryLookalike {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a %s event", models.ChangeCategoryLookalike)
	}
}

func TestCheckSharedLockSkips(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	locks := store.NewCheckLock()
	m := testMonitor(storage, &fakeEnricher{facts: enrich.Facts{IP: "1.2.3.4"}}, &fakeReach{reachable: true}, now).WithLocks(locks)

	sch := &models.MonitoringSchedule{
		Domain:        "busy.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	// another consumer of the same lock set is mid-check on this domain
	if !locks.Acquire("busy.net") {
		t.Fatalf("expected to acquire the lock for the test setup")
	}
	if _, err := m.Check(context.Background(), sch); err != ErrCheckInProgress {
		t.Fatalf("expected %s, but got %v", ErrCheckInProgress, err)
	}

	locks.Release("busy.net")
	if _, err := m.Check(context.Background(), sch); err != nil {
		t.Fatalf("expected no error once the lock is free, but got %s", err)
	}
}

func TestCheckCreatesDetectionForUnknownDomain(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	m := testMonitor(storage, &fakeEnricher{facts: enrich.Facts{IP: "1.2.3.4"}}, &fakeReach{reachable: true}, now)

	sch := &models.MonitoringSchedule{
		Domain:        "orphan.net",
		Active:        true,
		State:         models.ScheduleStateActive,
		IntervalHours: 24,
		NextDueAt:     now.Add(-time.Hour),
		EndAt:         now.AddDate(0, 0, 30),
	}

	if _, err := m.Check(context.Background(), sch); err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	d, ok := storage.detections["orphan.net"]
	if !ok {
		t.Fatalf("expected a detection to be created for the monitored domain")
	}
	if d.Technique != "monitored_domain" {
		t.Fatalf("expected technique 'monitored_domain', but got '%s'", d.Technique)
	}
}

func TestRunDueSweep(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	m := testMonitor(storage, &fakeEnricher{facts: enrich.Facts{IP: "1.2.3.4"}}, &fakeReach{reachable: true}, now)

	for _, domain := range []string{"a.net", "b.net", "c.net"} {
		storage.schedules = append(storage.schedules, &models.MonitoringSchedule{
			Domain:        domain,
			Active:        true,
			State:         models.ScheduleStateActive,
			IntervalHours: 24,
			NextDueAt:     now.Add(-time.Hour),
			EndAt:         now.AddDate(0, 0, 30),
		})
	}

	res, err := m.RunDueSweep(context.Background(), 2)
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if res.Due != 3 || res.Checked != 3 || res.Failed != 0 {
		t.Fatalf("expected 3 due and 3 checked, but got %+v", res)
	}
}

func TestRunExpirySweep(t *testing.T) {
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	m := testMonitor(storage, &fakeEnricher{}, &fakeReach{reachable: true}, now)

	storage.schedules = []*models.MonitoringSchedule{
		{Domain: "over.net", Active: true, EndAt: now.Add(-time.Hour)},
		{Domain: "ongoing.net", Active: true, EndAt: now.AddDate(0, 0, 30)},
	}

	n, err := m.RunExpirySweep()
	if err != nil {
		t.Fatalf("expected no error, but got %s", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired schedule, but got %d", n)
	}
	if storage.schedules[0].State != models.ScheduleStateExpired {
		t.Fatalf("expected state %s, but got %s", models.ScheduleStateExpired, storage.schedules[0].State)
	}
}
