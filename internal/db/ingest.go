package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegisterCounter applies one reported counter sample. The sample's device is
// registered first (refreshing the install and its latest version), then the
// count is merged into the running total for the (counter, install, version)
// triple: a single upsert adds the reported count and advances date_updated
// only when the reported value is strictly newer. First sight of a triple
// seeds date_created and date_updated from the report.
func RegisterCounter(tx *gorm.DB, app *App, name string, count int64, dateCreated, dateUpdated time.Time, dev Device) (*CounterInstance, error) {
	install, version, err := RegisterInstance(tx, app, dev)
	if err != nil {
		return nil, err
	}
	counter, err := resolveCounter(tx, app, name)
	if err != nil {
		return nil, err
	}

	ci := CounterInstance{
		CounterID:   counter.ID,
		InstallID:   install.ID,
		VersionID:   version.ID,
		Count:       count,
		DateCreated: dateCreated,
		DateUpdated: dateUpdated,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "counter_id"}, {Name: "install_id"}, {Name: "version_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("counter_instances.count + excluded.count"),
			// Monotonic max: a stale report never moves date_updated backward.
			"date_updated": gorm.Expr(
				"CASE WHEN excluded.date_updated > counter_instances.date_updated THEN excluded.date_updated ELSE counter_instances.date_updated END"),
		}),
	}).Create(&ci).Error; err != nil {
		return nil, err
	}

	var merged CounterInstance
	if err := tx.Where("counter_id = ? AND install_id = ? AND version_id = ?",
		counter.ID, install.ID, version.ID).First(&merged).Error; err != nil {
		return nil, err
	}
	return &merged, nil
}

// RegisterGauge stores one reported gauge value. Gauges are append-only:
// every report creates a new row, repeats included.
func RegisterGauge(tx *gorm.DB, app *App, name string, value float64, dateCreated time.Time, dev Device) (*GaugeInstance, error) {
	install, version, err := RegisterInstance(tx, app, dev)
	if err != nil {
		return nil, err
	}
	gauge, err := resolveGauge(tx, app, name)
	if err != nil {
		return nil, err
	}

	gi := GaugeInstance{
		GaugeID:     gauge.ID,
		InstallID:   install.ID,
		VersionID:   version.ID,
		Value:       value,
		DateCreated: dateCreated,
	}
	if err := tx.Create(&gi).Error; err != nil {
		return nil, err
	}
	return &gi, nil
}

// RegisterEvent stores one reported event occurrence. Events are append-only;
// attributes may be nil, which is stored as NULL.
func RegisterEvent(tx *gorm.DB, app *App, name string, attributes datatypes.JSONMap, dateCreated time.Time, dev Device) (*EventInstance, error) {
	install, version, err := RegisterInstance(tx, app, dev)
	if err != nil {
		return nil, err
	}
	event, err := resolveEvent(tx, app, name)
	if err != nil {
		return nil, err
	}

	ei := EventInstance{
		EventID:     event.ID,
		InstallID:   install.ID,
		VersionID:   version.ID,
		Attributes:  attributes,
		DateCreated: dateCreated,
	}
	if err := tx.Create(&ei).Error; err != nil {
		return nil, err
	}
	return &ei, nil
}
