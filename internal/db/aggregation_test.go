package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// backdate moves an install's last-seen time so it falls outside (or on the
// edge of) the active window.
func backdate(t *testing.T, gdb *gorm.DB, installID uint, to time.Time) {
	t.Helper()
	require.NoError(t, gdb.Model(&Install{}).Where("id = ?", installID).
		Update("date_updated", to).Error)
}

func TestActiveWindowBoundary(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	now := time.Now()

	onEdge, _, err := RegisterInstance(gdb, app, testDevice("dev-edge"))
	require.NoError(t, err)
	inside, _, err := RegisterInstance(gdb, app, testDevice("dev-inside"))
	require.NoError(t, err)

	// Exactly 60 days old is excluded; one second newer is included.
	backdate(t, gdb, onEdge.ID, now.Add(-ActiveWindow))
	backdate(t, gdb, inside.ID, now.Add(-ActiveWindow+time.Second))

	rows, err := ActiveInstallsBy(gdb, app, ByModel, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0].Total)
}

func TestActiveInstallsByDimensions(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	now := time.Now()

	devA := testDevice("dev-a")
	devB := testDevice("dev-b")
	devC := testDevice("dev-c")
	devC.Model = "iPhone 15"
	devC.OSName = "iOS"
	devC.OSVersion = "17.1"
	devC.AppVersion = "2.0"
	devC.BuildNumber = "200"

	for _, dev := range []Device{devA, devB, devC} {
		_, _, err := RegisterInstance(gdb, app, dev)
		require.NoError(t, err)
	}

	rows, err := ActiveInstallsBy(gdb, app, ByModel, now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Descending by count: the two-install group first.
	assert.Equal(t, "Pixel 8", deref(rows[0].Model))
	assert.EqualValues(t, 2, rows[0].Total)
	assert.Equal(t, "iPhone 15", deref(rows[1].Model))
	assert.EqualValues(t, 1, rows[1].Total)

	rows, err = ActiveInstallsBy(gdb, app, ByOSVersion, now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Android", deref(rows[0].OSName))
	assert.Equal(t, "14", deref(rows[0].OSVersion))

	rows, err = ActiveInstallsBy(gdb, app, ByAppVersion, now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1.0", deref(rows[0].AppVersion))
	assert.Equal(t, "100", deref(rows[0].BuildNumber))
}

func TestActiveInstallsCountLatestVersionOnly(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	now := time.Now()

	dev := testDevice("dev-a")
	_, _, err := RegisterInstance(gdb, app, dev)
	require.NoError(t, err)
	dev.AppVersion = "2.0"
	_, _, err = RegisterInstance(gdb, app, dev)
	require.NoError(t, err)

	// Two version rows exist but only the latest one represents the install.
	rows, err := ActiveInstallsBy(gdb, app, ByAppVersion, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2.0", deref(rows[0].AppVersion))
	assert.EqualValues(t, 1, rows[0].Total)
}

func TestBreakdownKeepsEmptyDimensionValue(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	now := time.Now()

	dev := testDevice("dev-a")
	dev.Model = ""
	_, _, err := RegisterInstance(gdb, app, dev)
	require.NoError(t, err)

	rows, err := ActiveInstallsBy(gdb, app, ByModel, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Model)
	assert.Equal(t, "", *rows[0].Model)

	body, err := json.Marshal(rows)
	require.NoError(t, err)
	// The empty-string group keeps its key; columns the dimension never
	// selected stay absent.
	assert.Contains(t, string(body), `"model":""`)
	assert.NotContains(t, string(body), "os_name")
}

func TestCounterActiveCountPerModel(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	ts := time.Unix(1_700_000_000, 0)
	now := time.Now()

	devA := testDevice("dev-a") // model X, active
	devA.Model = "X"
	devB := testDevice("dev-b") // model X, inactive
	devB.Model = "X"
	devC := testDevice("dev-c") // model Y, active
	devC.Model = "Y"

	_, err := RegisterCounter(gdb, app, "sessions", 3, ts, ts, devA)
	require.NoError(t, err)
	ciB, err := RegisterCounter(gdb, app, "sessions", 5, ts, ts, devB)
	require.NoError(t, err)
	_, err = RegisterCounter(gdb, app, "sessions", 7, ts, ts, devC)
	require.NoError(t, err)

	backdate(t, gdb, ciB.InstallID, now.Add(-ActiveWindow-time.Hour))

	counter, err := CounterByName(gdb, app.ID, "sessions")
	require.NoError(t, err)

	rows, err := counter.ActiveCountPer(gdb, ByModel, now)
	require.NoError(t, err)

	byModel := make(map[string]int64, len(rows))
	for _, r := range rows {
		byModel[deref(r.Model)] = r.Total
	}
	// B never contributes.
	assert.Equal(t, map[string]int64{"X": 3, "Y": 7}, byModel)

	total, err := counter.Total(gdb, now)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
}

func TestGaugeAndEventCountRows(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	ts := time.Unix(1_700_000_000, 0)
	now := time.Now()

	dev := testDevice("dev-a")
	for i := 0; i < 3; i++ {
		_, err := RegisterGauge(gdb, app, "battery", float64(i), ts, dev)
		require.NoError(t, err)
	}
	_, err := RegisterEvent(gdb, app, "crash", nil, ts, dev)
	require.NoError(t, err)

	gauge, err := GaugeByName(gdb, app.ID, "battery")
	require.NoError(t, err)
	total, err := gauge.Total(gdb, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	rows, err := gauge.ActiveCountPer(gdb, ByModel, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0].Total)

	event, err := EventByName(gdb, app.ID, "crash")
	require.NoError(t, err)
	total, err = event.Total(gdb, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestTotalZeroWhenNoActiveInstances(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	ts := time.Unix(1_700_000_000, 0)
	now := time.Now()

	ci, err := RegisterCounter(gdb, app, "sessions", 4, ts, ts, testDevice("dev-a"))
	require.NoError(t, err)
	backdate(t, gdb, ci.InstallID, now.Add(-ActiveWindow-time.Hour))

	counter, err := CounterByName(gdb, app.ID, "sessions")
	require.NoError(t, err)
	total, err := counter.Total(gdb, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	rows, err := counter.ActiveCountPer(gdb, ByModel, now)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRefreshActiveInstalls(t *testing.T) {
	gdb := testDB(t)
	app := testApp(t, gdb, "metricsapp")
	now := time.Now()

	_, _, err := RegisterInstance(gdb, app, testDevice("dev-a"))
	require.NoError(t, err)
	stale, _, err := RegisterInstance(gdb, app, testDevice("dev-b"))
	require.NoError(t, err)
	backdate(t, gdb, stale.ID, now.Add(-ActiveWindow-time.Hour))

	require.NoError(t, refreshActiveInstalls(gdb, now))
	assert.Equal(t, float64(1), testutil.ToFloat64(activeInstallsGauge.WithLabelValues(app.Name)))
}
