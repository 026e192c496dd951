package handlers

import (
	"encoding/json"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbpkg "appstats/internal/db"
	appmw "appstats/internal/http/middleware"
)

func TestMain(m *testing.M) {
	InitPrometheusMetrics()
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, dbpkg.Migrate(gdb))
	return gdb
}

func seedApp(t *testing.T, gdb *gorm.DB, name, key string) *dbpkg.App {
	t.Helper()
	app := &dbpkg.App{Name: name, Slug: name, Key: key}
	require.NoError(t, gdb.Create(app).Error)
	return app
}

// post runs the handler against a synthetic request the way the router would:
// the {app} route value set, body and query string in place.
func post(handler fasthttp.RequestHandler, uri, appName, body string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetRequestURI(uri)
	req.SetBodyString(body)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	ctx.SetUserValue("app", appName)
	handler(ctx)
	return ctx
}

const deviceBody = `{
	"device_id": "dev-1",
	"model": "Pixel 8",
	"app_version": "1.0",
	"build_number": "100",
	"os_name": "Android",
	"os_version": "14",
	"os_version_string": "Android 14 (UP1A)"
}`

func TestIngestRejectsMalformedJSON(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterCounters(gdb))

	ctx := post(h, "/api/counters/myapp?key=secret", "myapp", `{"not json`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "invalid JSON body")
}

func TestIngestRejectsMissingDateUpdated(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterCounters(gdb))

	body := `{"device": ` + deviceBody + `,
		"counters": [
			{"name": "sessions", "count": 3, "dateCreated": 1700000000, "dateUpdated": 1700000000},
			{"name": "crashes", "count": 1, "dateCreated": 1700000000}
		]}`
	ctx := post(h, "/api/counters/myapp?key=secret", "myapp", body)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "schema")

	// Rejected wholesale: nothing was written, not even the first item.
	var counters, installs int64
	require.NoError(t, gdb.Model(&dbpkg.CounterInstance{}).Count(&counters).Error)
	require.NoError(t, gdb.Model(&dbpkg.Install{}).Count(&installs).Error)
	assert.EqualValues(t, 0, counters)
	assert.EqualValues(t, 0, installs)
}

func TestIngestRejectsWrongKey(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterCounters(gdb))

	body := `{"device": ` + deviceBody + `,
		"counters": [{"name": "sessions", "count": 3, "dateCreated": 1700000000, "dateUpdated": 1700000000}]}`
	ctx := post(h, "/api/counters/myapp?key=wrong", "myapp", body)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "invalid app and key")

	var installs int64
	require.NoError(t, gdb.Model(&dbpkg.Install{}).Count(&installs).Error)
	assert.EqualValues(t, 0, installs)
}

func TestIngestCountersMergeAcrossRequests(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterCounters(gdb))

	body := func(count int) string {
		return `{"device": ` + deviceBody + `,
			"counters": [{"name": "sessions", "count": ` + strconv.Itoa(count) + `, "dateCreated": 1700000000, "dateUpdated": 1700000000}]}`
	}

	ctx := post(h, "/api/counters/myapp?key=secret", "myapp", body(3))
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = post(h, "/api/counters/myapp?key=secret", "myapp", body(5))
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var resp struct {
		Results map[string]float64 `json:"results"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, float64(8), resp.Results["sessions"])
}

func TestIngestGauges(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterGauges(gdb))

	body := `{"device": ` + deviceBody + `,
		"gauges": [{"name": "battery", "value": 0.92, "dateCreated": 1700000000}]}`

	ctx := post(h, "/api/gauges/myapp?key=secret", "myapp", body)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = post(h, "/api/gauges/myapp?key=secret", "myapp", body)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var resp struct {
		Results map[string]float64 `json:"results"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, 0.92, resp.Results["battery"])

	// Append-only: two requests, two rows.
	var rows int64
	require.NoError(t, gdb.Model(&dbpkg.GaugeInstance{}).Count(&rows).Error)
	assert.EqualValues(t, 2, rows)
}

func TestIngestEventsAttributeHandling(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterEvents(gdb))

	body := `{"device": ` + deviceBody + `,
		"events": [
			{"name": "purchase", "attributes": {"sku": "pro"}, "dateCreated": 1700000000},
			{"name": "crash", "dateCreated": 1700000000},
			{"name": "launch", "attributes": null, "dateCreated": 1700000000}
		]}`

	ctx := post(h, "/api/events/myapp?key=secret", "myapp", body)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var rows []dbpkg.EventInstance
	require.NoError(t, gdb.Order("id").Find(&rows).Error)
	require.Len(t, rows, 3)
	assert.Equal(t, "pro", rows[0].Attributes["sku"])
	// Absent attributes become an empty object, explicit null stays NULL.
	assert.NotNil(t, rows[1].Attributes)
	assert.Empty(t, rows[1].Attributes)
	assert.Nil(t, rows[2].Attributes)
}

func TestIngestEventsRejectsNonObjectAttributes(t *testing.T) {
	gdb := newTestDB(t)
	seedApp(t, gdb, "myapp", "secret")
	h := appmw.AppKeyAuth(gdb)(RegisterEvents(gdb))

	body := `{"device": ` + deviceBody + `,
		"events": [{"name": "crash", "attributes": "oops", "dateCreated": 1700000000}]}`

	ctx := post(h, "/api/events/myapp?key=secret", "myapp", body)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	var rows int64
	require.NoError(t, gdb.Model(&dbpkg.EventInstance{}).Count(&rows).Error)
	assert.EqualValues(t, 0, rows)
}
