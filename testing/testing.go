package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/jinzhu/gorm"

	"github.com/cse-security/phishmon/store/models"
)

func SkipCI(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping testing in CI environment")
	}
}

// ResetDb drops and re-creates all pipeline tables, giving each test a clean
// database.
func ResetDb(g *gorm.DB) error {
	tables := []string{
		"content_change_events",
		"monitoring_schedules",
		"detections",
		"protected_domains",
	}

	for _, table := range tables {
		qry := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if err := g.Exec(qry).Error; err != nil {
			return err
		}
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
	if err := g.Exec("CREATE UNIQUE INDEX IF NOT EXISTS detections_active_domain_key ON detections (domain) WHERE active").Error; err != nil {
		return err
	}
	return nil
}
