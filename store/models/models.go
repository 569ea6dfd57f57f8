package models

import (
	"time"
)

// ----- BEGIN PROTECTED DOMAINS -----

type ProtectedDomain struct {
	ID           uint   `gorm:"primary_key" pg:",pk"`
	Domain       string `gorm:"index"`
	Organization string
	Sector       string
	Active       bool
	CreatedAt    time.Time
}

// ----- END PROTECTED DOMAINS -----

// ----- BEGIN DETECTIONS -----

// Detection is one observed suspicious domain for a protected domain.
// Rows are never hard-deleted; superseded rows are deactivated and point
// to the canonical row via DuplicateOfID.
type Detection struct {
	ID                uint   `gorm:"primary_key" pg:",pk"`
	ProtectedDomainID uint   `gorm:"index"`
	Domain            string `gorm:"index"`
	Technique         string

	RegistrationAgeDays *int
	IP                  string
	ASN                 string
	CountryCode         string
	ISP                 string
	Registrar           string
	Registrant          string

	SSLIssuer    string
	SSLNotBefore *time.Time
	SSLNotAfter  *time.Time

	BlacklistFeeds string // comma-separated feed names with a confirmed hit
	BlacklistHit   bool

	VisualSimilarity  *float64
	ContentSimilarity *float64
	HasLoginForm      bool
	HasPaymentForm    bool
	HasBinaryHosting  bool

	ScreenshotPath string
	EvidencePath   string

	RiskScore float64
	RiskTier  string

	ContentHash string

	Active         bool `gorm:"index"`
	DuplicateOfID  *uint
	DeduplicatedAt *time.Time

	DetectedAt    time.Time
	LastCheckedAt time.Time
	UpdatedAt     time.Time
	Version       int
}

// ----- END DETECTIONS -----

// ----- BEGIN MONITORING -----

const (
	ScheduleStateActive       = "active"
	ScheduleStateExpired      = "expired"
	ScheduleStateInaccessible = "inaccessible"
)

type MonitoringSchedule struct {
	ID                uint   `gorm:"primary_key" pg:",pk"`
	ProtectedDomainID uint   `gorm:"index"`
	Domain            string `gorm:"index"`
	RiskTier          string
	IntervalHours     int
	DurationDays      int
	NextDueAt         time.Time
	EndAt             time.Time
	LastCheckedAt     time.Time
	Active            bool `gorm:"index"`
	State             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const (
	ChangeCategoryContent   = "content_change"
	ChangeCategoryBinary    = "binary_hosting"
	ChangeCategoryLookalike = "lookalike_content"
)

// ContentChangeEvent is an append-only audit record of observed drift on a
// monitored domain.
type ContentChangeEvent struct {
	ID          uint   `gorm:"primary_key" pg:",pk"`
	Uuid        string `gorm:"index"`
	Domain      string `gorm:"index"`
	DetectionID *uint
	Category    string
	BeforeHash  string
	AfterHash   string
	ChangePct   float64
	Details     string `gorm:"type:text"`
	DetectedAt  time.Time
}

// ----- END MONITORING -----
