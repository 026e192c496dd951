package db

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// ActiveWindow is the trailing window an install must have reported within
// to count toward any aggregate.
const ActiveWindow = 60 * 24 * time.Hour

// Dimension is the closed set of grouping keys supported by breakdowns.
// OS version and app version are pairs; the rest are single columns.
type Dimension int

const (
	ByModel Dimension = iota
	ByOSName
	ByOSVersion  // (os_name, os_version)
	ByAppVersion // (app_version, build_number)
)

func (d Dimension) columns() []string {
	switch d {
	case ByOSName:
		return []string{"os_name"}
	case ByOSVersion:
		return []string{"os_name", "os_version"}
	case ByAppVersion:
		return []string{"app_version", "build_number"}
	default:
		return []string{"model"}
	}
}

// qualified prefixes the dimension columns with the versions table name for
// use in joined queries.
func (d Dimension) qualified() []string {
	cols := d.columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = "installed_versions." + c
	}
	return out
}

// BreakdownRow is one group in a dimension breakdown. Only the columns named
// by the requested dimension are populated; pointers keep an empty-string
// group value distinguishable from a column the dimension never selected.
// Total is the install count or the metric reduction for that group.
type BreakdownRow struct {
	Model       *string `json:"model,omitempty"`
	OSName      *string `json:"os_name,omitempty"`
	OSVersion   *string `json:"os_version,omitempty"`
	AppVersion  *string `json:"app_version,omitempty"`
	BuildNumber *string `json:"build_number,omitempty"`
	Total       int64   `json:"total"`
}

// activeInstalls is the subquery every aggregate is scoped by: installs of
// the app whose date_updated falls strictly inside the trailing window. An
// install touched exactly ActiveWindow ago is excluded.
func activeInstalls(db *gorm.DB, appID uint, now time.Time) *gorm.DB {
	return db.Model(&Install{}).
		Select("id").
		Where("app_id = ? AND date_updated > ?", appID, now.Add(-ActiveWindow))
}

// ActiveInstallsBy groups the latest versions of the app's active installs by
// the given dimension and counts installs per group, descending by count.
func ActiveInstallsBy(db *gorm.DB, app *App, dim Dimension, now time.Time) ([]BreakdownRow, error) {
	cols := strings.Join(dim.columns(), ", ")

	var rows []BreakdownRow
	err := db.Model(&InstalledVersion{}).
		Select(cols+", count(*) AS total").
		Where("latest = ?", true).
		Where("install_id IN (?)", activeInstalls(db, app.ID, now)).
		Group(cols).
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}

// metricBreakdown is the shared aggregation path for all three metric kinds:
// restrict instances to active installs, join the reporting version, group by
// the dimension, and collapse each group with the kind's reduce expression
// (sum of count for counters, row count for gauges and events).
func metricBreakdown(db *gorm.DB, table, fkCol string, metricID, appID uint, reduceExpr string, dim Dimension, now time.Time) ([]BreakdownRow, error) {
	cols := strings.Join(dim.qualified(), ", ")

	var rows []BreakdownRow
	err := db.Table(table).
		Joins("JOIN installed_versions ON installed_versions.id = "+table+".version_id").
		Where(table+"."+fkCol+" = ?", metricID).
		Where(table+".install_id IN (?)", activeInstalls(db, appID, now)).
		Select(cols+", "+reduceExpr+" AS total").
		Group(cols).
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}

func metricTotal(db *gorm.DB, table, fkCol string, metricID, appID uint, reduceExpr string, now time.Time) (int64, error) {
	var total int64
	err := db.Table(table).
		Where(fkCol+" = ?", metricID).
		Where("install_id IN (?)", activeInstalls(db, appID, now)).
		Select("COALESCE(" + reduceExpr + ", 0)").
		Scan(&total).Error
	return total, err
}

// Metric is implemented by the three definition kinds so the read side can
// share one breakdown path regardless of how a kind reduces its instances.
type Metric interface {
	MetricName() string
	ActiveCountPer(db *gorm.DB, dim Dimension, now time.Time) ([]BreakdownRow, error)
	Total(db *gorm.DB, now time.Time) (int64, error)
}

func (c *Counter) MetricName() string { return c.Name }

func (c *Counter) ActiveCountPer(db *gorm.DB, dim Dimension, now time.Time) ([]BreakdownRow, error) {
	return metricBreakdown(db, "counter_instances", "counter_id", c.ID, c.AppID, "SUM(counter_instances.count)", dim, now)
}

// Total sums the running counts across all active instances. Returns 0 when
// no active instance exists.
func (c *Counter) Total(db *gorm.DB, now time.Time) (int64, error) {
	return metricTotal(db, "counter_instances", "counter_id", c.ID, c.AppID, "SUM(count)", now)
}

func (g *Gauge) MetricName() string { return g.Name }

func (g *Gauge) ActiveCountPer(db *gorm.DB, dim Dimension, now time.Time) ([]BreakdownRow, error) {
	return metricBreakdown(db, "gauge_instances", "gauge_id", g.ID, g.AppID, "COUNT(*)", dim, now)
}

func (g *Gauge) Total(db *gorm.DB, now time.Time) (int64, error) {
	return metricTotal(db, "gauge_instances", "gauge_id", g.ID, g.AppID, "COUNT(*)", now)
}

func (e *Event) MetricName() string { return e.Name }

func (e *Event) ActiveCountPer(db *gorm.DB, dim Dimension, now time.Time) ([]BreakdownRow, error) {
	return metricBreakdown(db, "event_instances", "event_id", e.ID, e.AppID, "COUNT(*)", dim, now)
}

func (e *Event) Total(db *gorm.DB, now time.Time) (int64, error) {
	return metricTotal(db, "event_instances", "event_id", e.ID, e.AppID, "COUNT(*)", now)
}
