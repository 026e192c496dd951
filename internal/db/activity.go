package db

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var activeInstallsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "appstats",
		Name:      "active_installs",
		Help:      "Installs per app seen within the trailing active window.",
	},
	[]string{"app"},
)

// refreshActiveInstalls recomputes the per-app active-install counts and
// publishes them as prometheus gauges.
func refreshActiveInstalls(db *gorm.DB, now time.Time) error {
	type row struct {
		Name  string
		Total int64
	}
	var rows []row
	if err := db.Model(&Install{}).
		Joins("JOIN apps ON apps.id = installs.app_id").
		Where("installs.date_updated > ?", now.Add(-ActiveWindow)).
		Select("apps.name AS name, count(*) AS total").
		Group("apps.name").
		Scan(&rows).Error; err != nil {
		return err
	}

	activeInstallsGauge.Reset()
	for _, r := range rows {
		activeInstallsGauge.WithLabelValues(r.Name).Set(float64(r.Total))
	}
	return nil
}

// StartActivityWorker launches a background goroutine that refreshes the
// active-install gauges once at startup and then every ten minutes.
func StartActivityWorker(db *gorm.DB) {
	prometheus.MustRegister(activeInstallsGauge)

	go func() {
		if err := refreshActiveInstalls(db, time.Now()); err != nil {
			log.Printf("active-install refresh error (startup): %v", err)
		}

		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for t := range ticker.C {
			if err := refreshActiveInstalls(db, t); err != nil {
				log.Printf("active-install refresh error: %v", err)
			}
		}
	}()
}
