package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Device is the descriptor every ingestion request carries alongside its
// metric batch. All fields are reported by the client as strings.
type Device struct {
	DeviceID        string
	Model           string
	AppVersion      string
	BuildNumber     string
	OSName          string
	OSVersion       string
	OSVersionString string
}

// RegisterInstance resolves the install for (app, device_id) and the
// installed version matching all six reported attributes, creating either on
// first sight. The resolved version becomes the install's latest and every
// sibling loses the flag in the same UPDATE, so running inside a transaction
// keeps the exactly-one-latest invariant under concurrent reports for the
// same device. The install's date_updated is refreshed as part of the call.
func RegisterInstance(tx *gorm.DB, app *App, dev Device) (*Install, *InstalledVersion, error) {
	now := time.Now()

	install := Install{
		AppID:       app.ID,
		DeviceID:    dev.DeviceID,
		DateCreated: now,
		DateUpdated: now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_id"}, {Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"date_updated": now}),
	}).Create(&install).Error; err != nil {
		return nil, nil, err
	}
	// On conflict the insert does not report the surviving row; read it back.
	if err := tx.Where("app_id = ? AND device_id = ?", app.ID, dev.DeviceID).First(&install).Error; err != nil {
		return nil, nil, err
	}

	version := InstalledVersion{
		InstallID:       install.ID,
		Model:           dev.Model,
		AppVersion:      dev.AppVersion,
		BuildNumber:     dev.BuildNumber,
		OSName:          dev.OSName,
		OSVersion:       dev.OSVersion,
		OSVersionString: dev.OSVersionString,
		DateCreated:     now,
		Latest:          true,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&version).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Where(
		"install_id = ? AND model = ? AND app_version = ? AND build_number = ? AND os_name = ? AND os_version = ? AND os_version_string = ?",
		install.ID, dev.Model, dev.AppVersion, dev.BuildNumber, dev.OSName, dev.OSVersion, dev.OSVersionString,
	).First(&version).Error; err != nil {
		return nil, nil, err
	}

	// One statement flips the flag for the whole sibling set: the resolved
	// version gets true, everything else false.
	if err := tx.Model(&InstalledVersion{}).
		Where("install_id = ?", install.ID).
		Update("latest", gorm.Expr("(id = ?)", version.ID)).Error; err != nil {
		return nil, nil, err
	}
	version.Latest = true

	return &install, &version, nil
}
