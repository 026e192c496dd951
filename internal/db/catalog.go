package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Metric definitions are resolved lazily: the first report of a name creates
// the definition, later reports reuse it. The three kinds keep independent
// name namespaces within an app, so a counter and a gauge may share a name.

func resolveCounter(tx *gorm.DB, app *App, name string) (*Counter, error) {
	c := Counter{AppID: app.ID, Name: name}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		if err := tx.Where("app_id = ? AND name = ?", app.ID, name).First(&c).Error; err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func resolveGauge(tx *gorm.DB, app *App, name string) (*Gauge, error) {
	g := Gauge{AppID: app.ID, Name: name}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&g).Error; err != nil {
		return nil, err
	}
	if g.ID == 0 {
		if err := tx.Where("app_id = ? AND name = ?", app.ID, name).First(&g).Error; err != nil {
			return nil, err
		}
	}
	return &g, nil
}

func resolveEvent(tx *gorm.DB, app *App, name string) (*Event, error) {
	e := Event{AppID: app.ID, Name: name}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&e).Error; err != nil {
		return nil, err
	}
	if e.ID == 0 {
		if err := tx.Where("app_id = ? AND name = ?", app.ID, name).First(&e).Error; err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// Read-side lookups. All return gorm.ErrRecordNotFound for unknown names.

func CounterByName(db *gorm.DB, appID uint, name string) (*Counter, error) {
	var c Counter
	if err := db.Where("app_id = ? AND name = ?", appID, name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func GaugeByName(db *gorm.DB, appID uint, name string) (*Gauge, error) {
	var g Gauge
	if err := db.Where("app_id = ? AND name = ?", appID, name).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func EventByName(db *gorm.DB, appID uint, name string) (*Event, error) {
	var e Event
	if err := db.Where("app_id = ? AND name = ?", appID, name).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}
