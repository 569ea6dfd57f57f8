package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pg/pg"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"
	errs "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/cse-security/phishmon/store/models"
)

var (
	DefaultCacheOpts = CacheOpts{
		DetectionSize: 20000,
		ScheduleSize:  10000,
	}
	DefaultOpts = Opts{
		CacheOpts: DefaultCacheOpts,
	}
)

// ConflictErr signals a concurrent modification of the same row. Callers
// should re-read and retry.
type ConflictErr struct {
	Domain string
}

func (err ConflictErr) Error() string {
	return fmt.Sprintf("conflicting concurrent modification of detection for '%s'", err.Domain)
}

type DuplicateDetectionErr struct {
	Domain string
}

func (err DuplicateDetectionErr) Error() string {
	return fmt.Sprintf("an active detection for '%s' already exists", err.Domain)
}

type ScheduleExistsErr struct {
	Domain string
}

func (err ScheduleExistsErr) Error() string {
	return fmt.Sprintf("an active monitoring schedule for '%s' already exists", err.Domain)
}

type Config struct {
	User       string     `yaml:"user"`
	Password   string     `yaml:"password"`
	Host       string     `yaml:"host"`
	Port       int        `yaml:"port"`
	DBName     string     `yaml:"dbname"`
	Debug      bool       `yaml:"debug"`
	InfluxOpts InfluxOpts `yaml:"influxdb"`

	d *gorm.DB
}

func (c *Config) Open() (*gorm.DB, error) {
	var err error
	if c.d == nil {
		c.d, err = gorm.Open("postgres", c.DSN())
	}
	return c.d, err
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

type CacheOpts struct {
	DetectionSize int `yaml:"detection_size"`
	ScheduleSize  int `yaml:"schedule_size"`
}

type Opts struct {
	CacheOpts CacheOpts
}

type cache struct {
	detectionByDomain *lru.Cache
	scheduleByDomain  *lru.Cache
}

func newLRUCache(cacheSize int) *lru.Cache {
	c, err := lru.New(cacheSize)
	if err != nil {
		log.Error().Msgf("error creating LRU cache: %s", err)
		return &lru.Cache{}
	}
	return c
}

func newCache(opts CacheOpts) cache {
	return cache{
		detectionByDomain: newLRUCache(opts.DetectionSize),
		scheduleByDomain:  newLRUCache(opts.ScheduleSize),
	}
}

type debugHook struct{}

func (hook *debugHook) BeforeQuery(qe *pg.QueryEvent) {
	fq, err := qe.FormattedQuery()
	if err != nil {
		return
	}
	log.Debug().Msgf("%s", fq)
}

func (hook *debugHook) AfterQuery(qe *pg.QueryEvent) {}

// Store persists detections, monitoring schedules and change events. All
// mutations of detections go through optimistic version checks, so the
// active-domain uniqueness invariant survives concurrent workers.
type Store struct {
	conf      Config
	db        *pg.DB
	cache     cache
	cacheOpts CacheOpts
	m         *sync.Mutex

	Metrics MetricsService
	Locks   *CheckLock
}

func NewStore(conf Config, opts Opts) (*Store, error) {
	pgOpts := pg.Options{
		User:     conf.User,
		Password: conf.Password,
		Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Database: conf.DBName,
	}

	db := pg.Connect(&pgOpts)
	if conf.Debug {
		db.AddQueryHook(&debugHook{})
	}

	s := Store{
		conf:      conf,
		db:        db,
		cache:     newCache(opts.CacheOpts),
		cacheOpts: opts.CacheOpts,
		m:         &sync.Mutex{},
		Metrics:   NewMetricsService(conf.InfluxOpts),
		Locks:     NewCheckLock(),
	}

	if err := s.migrate(); err != nil {
		return nil, errs.Wrap(err, "migrate models")
	}

	return &s, nil
}

// use Gorm's auto migrate functionality
func (s *Store) migrate() error {
	g, err := s.conf.Open()
	if err != nil {
		return err
	}

	migrateExamples := []interface{}{
		&models.ProtectedDomain{},
		&models.Detection{},
		&models.MonitoringSchedule{},
		&models.ContentChangeEvent{},
	}
	for _, ex := range migrateExamples {
		if err := g.AutoMigrate(ex).Error; err != nil {
			return err
		}
	}

	// uniqueness holds among active rows only; deactivated duplicates keep
	// their domain string
	idx := "CREATE UNIQUE INDEX IF NOT EXISTS detections_active_domain_key ON detections (domain) WHERE active"
	if _, err := s.db.Exec(idx); err != nil {
		return errs.Wrap(err, "create active-domain index")
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.Metrics.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *Store) describeCaches() {
	s.Metrics.CacheSize("detection", s.cache.detectionByDomain, s.cacheOpts.DetectionSize)
	s.Metrics.CacheSize("schedule", s.cache.scheduleByDomain, s.cacheOpts.ScheduleSize)
}

func isNoRows(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no rows in result set")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value")
}

// ----- protected domains -----

func (s *Store) EnsureProtectedDomain(domain, organization, sector string) (*models.ProtectedDomain, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))

	var existing models.ProtectedDomain
	err := s.db.Model(&existing).Where("domain = ?", domain).First()
	if err == nil {
		return &existing, nil
	}
	if !isNoRows(err) {
		return nil, errs.Wrap(err, "query protected domain")
	}

	pd := models.ProtectedDomain{
		Domain:       domain,
		Organization: organization,
		Sector:       sector,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := s.db.Insert(&pd); err != nil {
		return nil, errs.Wrap(err, "insert protected domain")
	}
	s.Metrics.StoreHit("db-insert", "protected-domain", 1)
	return &pd, nil
}

func (s *Store) ProtectedDomains() ([]*models.ProtectedDomain, error) {
	var pds []*models.ProtectedDomain
	if err := s.db.Model(&pds).Where("active = ?", true).Order("id ASC").Select(); err != nil {
		return nil, errs.Wrap(err, "query protected domains")
	}
	return pds, nil
}

// ----- detections -----

func (s *Store) CreateDetection(d *models.Detection) error {
	s.m.Lock()
	defer s.m.Unlock()

	d.Domain = strings.ToLower(strings.TrimSpace(d.Domain))

	if _, ok := s.cache.detectionByDomain.Get(d.Domain); ok {
		s.Metrics.StoreHit("cache-hit", "detection", 1)
		return DuplicateDetectionErr{Domain: d.Domain}
	}

	var existing models.Detection
	err := s.db.Model(&existing).
		Where("domain = ?", d.Domain).
		Where("active = ?", true).
		First()
	if err == nil {
		s.cache.detectionByDomain.Add(d.Domain, &existing)
		return DuplicateDetectionErr{Domain: d.Domain}
	}
	if !isNoRows(err) {
		return errs.Wrap(err, "query detection")
	}

	now := time.Now()
	if d.DetectedAt.IsZero() {
		d.DetectedAt = now
	}
	d.LastCheckedAt = now
	d.UpdatedAt = now
	d.Active = true
	d.Version = 1

	if err := s.db.Insert(d); err != nil {
		if isUniqueViolation(err) {
			return DuplicateDetectionErr{Domain: d.Domain}
		}
		return errs.Wrap(err, "insert detection")
	}

	s.cache.detectionByDomain.Add(d.Domain, d)
	s.Metrics.StoreHit("db-insert", "detection", 1)
	s.describeCaches()
	return nil
}

func (s *Store) GetActiveDetection(domain string) (*models.Detection, bool, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))

	if v, ok := s.cache.detectionByDomain.Get(domain); ok {
		s.Metrics.StoreHit("cache-hit", "detection", 1)
		return v.(*models.Detection), true, nil
	}
	s.Metrics.StoreHit("cache-miss", "detection", 1)

	var d models.Detection
	err := s.db.Model(&d).
		Where("domain = ?", domain).
		Where("active = ?", true).
		First()
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(err, "query detection")
	}

	s.cache.detectionByDomain.Add(domain, &d)
	return &d, true, nil
}

// ActiveDetections returns a consistent snapshot for the single-writer
// deduplication batch.
func (s *Store) ActiveDetections() ([]*models.Detection, error) {
	var dets []*models.Detection
	if err := s.db.Model(&dets).Where("active = ?", true).Order("id ASC").Select(); err != nil {
		return nil, errs.Wrap(err, "query active detections")
	}
	return dets, nil
}

// UpdateDetection writes the row back and bumps its version. A stale version
// yields ConflictErr and leaves the row untouched.
func (s *Store) UpdateDetection(d *models.Detection) error {
	prevVersion := d.Version
	d.Version++
	d.UpdatedAt = time.Now()

	res, err := s.db.Model(d).
		Where("id = ?", d.ID).
		Where("version = ?", prevVersion).
		Update()
	if err != nil {
		d.Version = prevVersion
		return errs.Wrap(err, "update detection")
	}
	if res.RowsAffected() == 0 {
		d.Version = prevVersion
		return ConflictErr{Domain: d.Domain}
	}

	if d.Active {
		s.cache.detectionByDomain.Add(d.Domain, d)
	} else {
		s.cache.detectionByDomain.Remove(d.Domain)
	}
	s.Metrics.StoreHit("db-update", "detection", 1)
	return nil
}

// ApplyDeduplication persists the deactivations of one deduplication run in
// a single transaction.
func (s *Store) ApplyDeduplication(deactivated []*models.Detection) error {
	if len(deactivated) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	for _, d := range deactivated {
		prevVersion := d.Version
		d.Version++

		res, err := tx.Model(d).
			Where("id = ?", d.ID).
			Where("version = ?", prevVersion).
			Update()
		if err != nil {
			return errs.Wrap(err, "deactivate detection")
		}
		if res.RowsAffected() == 0 {
			return ConflictErr{Domain: d.Domain}
		}
		s.cache.detectionByDomain.Remove(d.Domain)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(err, "commit transaction")
	}
	s.Metrics.StoreHit("db-update", "deduplicated", len(deactivated))
	return nil
}

// ----- monitoring schedules -----

func (s *Store) CreateSchedule(sch *models.MonitoringSchedule) error {
	s.m.Lock()
	defer s.m.Unlock()

	sch.Domain = strings.ToLower(strings.TrimSpace(sch.Domain))

	var existing models.MonitoringSchedule
	err := s.db.Model(&existing).
		Where("domain = ?", sch.Domain).
		Where("active = ?", true).
		First()
	if err == nil {
		return ScheduleExistsErr{Domain: sch.Domain}
	}
	if !isNoRows(err) {
		return errs.Wrap(err, "query schedule")
	}

	now := time.Now()
	sch.CreatedAt = now
	sch.UpdatedAt = now

	if err := s.db.Insert(sch); err != nil {
		return errs.Wrap(err, "insert schedule")
	}
	s.cache.scheduleByDomain.Add(sch.Domain, sch)
	s.Metrics.StoreHit("db-insert", "schedule", 1)
	s.describeCaches()
	return nil
}

func (s *Store) ActiveSchedule(domain string) (*models.MonitoringSchedule, bool, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))

	if v, ok := s.cache.scheduleByDomain.Get(domain); ok {
		sch := v.(*models.MonitoringSchedule)
		if sch.Active {
			s.Metrics.StoreHit("cache-hit", "schedule", 1)
			return sch, true, nil
		}
		s.cache.scheduleByDomain.Remove(domain)
	}

	var sch models.MonitoringSchedule
	err := s.db.Model(&sch).
		Where("domain = ?", domain).
		Where("active = ?", true).
		First()
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(err, "query schedule")
	}
	s.cache.scheduleByDomain.Add(domain, &sch)
	return &sch, true, nil
}

// DueSchedules selects schedules eligible for a check: active, past their
// next-due time and not yet expired.
func (s *Store) DueSchedules(now time.Time) ([]*models.MonitoringSchedule, error) {
	var schedules []*models.MonitoringSchedule
	err := s.db.Model(&schedules).
		Where("active = ?", true).
		Where("next_due_at <= ?", now).
		Where("end_at > ?", now).
		Order("next_due_at ASC").
		Select()
	if err != nil {
		return nil, errs.Wrap(err, "query due schedules")
	}
	return schedules, nil
}

func (s *Store) UpdateSchedule(sch *models.MonitoringSchedule) error {
	sch.UpdatedAt = time.Now()

	res, err := s.db.Model(sch).
		Where("id = ?", sch.ID).
		Update()
	if err != nil {
		return errs.Wrap(err, "update schedule")
	}
	if res.RowsAffected() == 0 {
		return ConflictErr{Domain: sch.Domain}
	}

	if sch.Active {
		s.cache.scheduleByDomain.Add(sch.Domain, sch)
	} else {
		s.cache.scheduleByDomain.Remove(sch.Domain)
	}
	s.Metrics.StoreHit("db-update", "schedule", 1)
	return nil
}

// ExpireSchedules deactivates every schedule whose end date has passed and
// returns the number of rows affected.
func (s *Store) ExpireSchedules(now time.Time) (int, error) {
	res, err := s.db.Model(&models.MonitoringSchedule{}).
		Set("active = ?", false).
		Set("state = ?", models.ScheduleStateExpired).
		Set("updated_at = ?", now).
		Where("active = ?", true).
		Where("end_at <= ?", now).
		Update()
	if err != nil {
		return 0, errs.Wrap(err, "expire schedules")
	}

	// expired rows may still sit in the cache; drop them lazily
	s.cache.scheduleByDomain.Purge()
	s.Metrics.StoreHit("db-update", "schedule-expired", res.RowsAffected())
	return res.RowsAffected(), nil
}

// ----- change events -----

func (s *Store) AppendChangeEvent(ev *models.ContentChangeEvent) error {
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now()
	}
	if err := s.db.Insert(ev); err != nil {
		return errs.Wrap(err, "insert change event")
	}
	s.Metrics.StoreHit("db-insert", "change-event", 1)
	return nil
}

func (s *Store) ChangeEventsSince(since time.Time) ([]*models.ContentChangeEvent, error) {
	var events []*models.ContentChangeEvent
	err := s.db.Model(&events).
		Where("detected_at >= ?", since).
		Order("detected_at ASC").
		Select()
	if err != nil {
		return nil, errs.Wrap(err, "query change events")
	}
	return events, nil
}

// MonitoringStats summarizes the state of the long-term watch, for the
// monitor binary's periodic status line.
type MonitoringStats struct {
	Schedules       int
	ActiveSchedules int
	DueSchedules    int
	RecentChanges   int
}

func (s *Store) MonitoringStats(now time.Time) (MonitoringStats, error) {
	var stats MonitoringStats
	var err error

	if stats.Schedules, err = s.db.Model(&models.MonitoringSchedule{}).Count(); err != nil {
		return stats, errs.Wrap(err, "count schedules")
	}
	if stats.ActiveSchedules, err = s.db.Model(&models.MonitoringSchedule{}).
		Where("active = ?", true).
		Count(); err != nil {
		return stats, errs.Wrap(err, "count active schedules")
	}
	if stats.DueSchedules, err = s.db.Model(&models.MonitoringSchedule{}).
		Where("active = ?", true).
		Where("next_due_at <= ?", now).
		Where("end_at > ?", now).
		Count(); err != nil {
		return stats, errs.Wrap(err, "count due schedules")
	}
	if stats.RecentChanges, err = s.db.Model(&models.ContentChangeEvent{}).
		Where("detected_at > ?", now.Add(-24*time.Hour)).
		Count(); err != nil {
		return stats, errs.Wrap(err, "count recent change events")
	}
	return stats, nil
}
