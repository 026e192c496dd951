package db

import (
	"time"

	"gorm.io/datatypes"
)

// App is a tenant: one client application reporting telemetry. The key is
// the static shared secret presented with every ingestion request.
type App struct {
	ID uint `gorm:"primaryKey"`

	Name string `gorm:"uniqueIndex;size:255;not null"`
	Slug string `gorm:"uniqueIndex;size:255;not null"`
	Key  string `gorm:"size:255;not null"`
}

// Install is a single device's registration under one app. The device_id is
// unique per app, so the same physical device reporting to two apps yields
// two independent installs.
type Install struct {
	ID uint `gorm:"primaryKey"`

	AppID    uint   `gorm:"uniqueIndex:idx_installs_app_device,priority:1;not null"`
	DeviceID string `gorm:"uniqueIndex:idx_installs_app_device,priority:2;size:255;not null"`

	// DateCreated is set on first registration and never changes.
	// DateUpdated is refreshed on every registration for this device and
	// drives the active-install window.
	DateCreated time.Time `gorm:"not null"`
	DateUpdated time.Time `gorm:"index;not null"`

	App App `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE"`
}

// InstalledVersion is one observed (model, app version, OS) tuple reported by
// an install. The composite unique index makes re-reports of an identical
// tuple resolve to the existing row; any single differing attribute creates a
// new row. Exactly one version per install carries latest = true.
type InstalledVersion struct {
	ID uint `gorm:"primaryKey"`

	InstallID       uint   `gorm:"uniqueIndex:idx_versions_tuple,priority:1;not null"`
	Model           string `gorm:"uniqueIndex:idx_versions_tuple,priority:2;size:255;not null"`
	AppVersion      string `gorm:"uniqueIndex:idx_versions_tuple,priority:3;size:255;not null"`
	BuildNumber     string `gorm:"uniqueIndex:idx_versions_tuple,priority:4;size:255;not null"`
	OSName          string `gorm:"uniqueIndex:idx_versions_tuple,priority:5;size:255;not null"`
	OSVersion       string `gorm:"uniqueIndex:idx_versions_tuple,priority:6;size:255;not null"`
	OSVersionString string `gorm:"uniqueIndex:idx_versions_tuple,priority:7;size:255;not null"`

	DateCreated time.Time `gorm:"not null"`
	Latest      bool      `gorm:"index;not null;default:true"`

	Install Install `gorm:"foreignKey:InstallID;constraint:OnDelete:CASCADE"`
}

// Counter is a named cumulative metric definition scoped to an app. Counter,
// gauge and event names are independent namespaces within the same app.
type Counter struct {
	ID uint `gorm:"primaryKey"`

	AppID uint   `gorm:"uniqueIndex:idx_counters_app_name,priority:1;not null"`
	Name  string `gorm:"uniqueIndex:idx_counters_app_name,priority:2;size:255;not null"`

	App App `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE"`
}

// Gauge is a named point-in-time metric definition scoped to an app.
type Gauge struct {
	ID uint `gorm:"primaryKey"`

	AppID uint   `gorm:"uniqueIndex:idx_gauges_app_name,priority:1;not null"`
	Name  string `gorm:"uniqueIndex:idx_gauges_app_name,priority:2;size:255;not null"`

	App App `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE"`
}

// Event is a named discrete-occurrence metric definition scoped to an app.
type Event struct {
	ID uint `gorm:"primaryKey"`

	AppID uint   `gorm:"uniqueIndex:idx_events_app_name,priority:1;not null"`
	Name  string `gorm:"uniqueIndex:idx_events_app_name,priority:2;size:255;not null"`

	App App `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE"`
}

// CounterInstance holds the running total for one (counter, install, version)
// triple. Repeat reports add to Count; DateUpdated only ever moves forward.
type CounterInstance struct {
	ID uint `gorm:"primaryKey"`

	CounterID uint `gorm:"uniqueIndex:idx_counter_instances_key,priority:1;not null"`
	InstallID uint `gorm:"uniqueIndex:idx_counter_instances_key,priority:2;not null"`
	VersionID uint `gorm:"uniqueIndex:idx_counter_instances_key,priority:3;not null"`

	Count int64 `gorm:"not null;default:0"`

	DateCreated time.Time `gorm:"not null"`
	DateUpdated time.Time `gorm:"not null"`

	Counter Counter          `gorm:"foreignKey:CounterID;constraint:OnDelete:CASCADE"`
	Install Install          `gorm:"foreignKey:InstallID;constraint:OnDelete:CASCADE"`
	Version InstalledVersion `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE"`
}

// GaugeInstance is one reported gauge value. Rows are append-only and never
// merged.
type GaugeInstance struct {
	ID uint `gorm:"primaryKey"`

	GaugeID   uint `gorm:"index;not null"`
	InstallID uint `gorm:"index;not null"`
	VersionID uint `gorm:"not null"`

	Value float64 `gorm:"not null"`

	DateCreated time.Time `gorm:"not null"`

	Gauge   Gauge            `gorm:"foreignKey:GaugeID;constraint:OnDelete:CASCADE"`
	Install Install          `gorm:"foreignKey:InstallID;constraint:OnDelete:CASCADE"`
	Version InstalledVersion `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE"`
}

// EventInstance is one reported event occurrence. Attributes is an arbitrary
// key/value payload supplied by the client; it may be null.
type EventInstance struct {
	ID uint `gorm:"primaryKey"`

	EventID   uint `gorm:"index;not null"`
	InstallID uint `gorm:"index;not null"`
	VersionID uint `gorm:"not null"`

	Attributes datatypes.JSONMap `gorm:"type:json"`

	DateCreated time.Time `gorm:"not null"`

	Event   Event            `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	Install Install          `gorm:"foreignKey:InstallID;constraint:OnDelete:CASCADE"`
	Version InstalledVersion `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE"`
}
