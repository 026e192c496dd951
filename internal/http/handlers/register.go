package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "appstats/internal/db"
)

var (
	reportsTotal    *prometheus.CounterVec
	reportBatchSize *prometheus.HistogramVec
)

func InitPrometheusMetrics() {
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appstats",
			Name:      "reports_total",
			Help:      "Total number of ingested metric reports.",
		},
		[]string{"app", "kind"},
	)
	reportBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appstats",
			Name:      "report_batch_size",
			Help:      "Histogram of metric counts per ingestion request.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"app", "kind"},
	)
	prometheus.MustRegister(reportsTotal, reportBatchSize)
}

var validate = validator.New()

// Required fields are pointers so "missing" and "zero" stay distinguishable;
// the validator rejects any absent field before per-item processing begins.

type deviceJSON struct {
	DeviceID        *string `json:"device_id" validate:"required"`
	Model           *string `json:"model" validate:"required"`
	AppVersion      *string `json:"app_version" validate:"required"`
	BuildNumber     *string `json:"build_number" validate:"required"`
	OSName          *string `json:"os_name" validate:"required"`
	OSVersion       *string `json:"os_version" validate:"required"`
	OSVersionString *string `json:"os_version_string" validate:"required"`
}

func (d *deviceJSON) device() dbpkg.Device {
	return dbpkg.Device{
		DeviceID:        *d.DeviceID,
		Model:           *d.Model,
		AppVersion:      *d.AppVersion,
		BuildNumber:     *d.BuildNumber,
		OSName:          *d.OSName,
		OSVersion:       *d.OSVersion,
		OSVersionString: *d.OSVersionString,
	}
}

type counterJSON struct {
	Name        *string `json:"name" validate:"required"`
	Count       *int64  `json:"count" validate:"required"`
	DateCreated *int64  `json:"dateCreated" validate:"required"`
	DateUpdated *int64  `json:"dateUpdated" validate:"required"`
}

type gaugeJSON struct {
	Name        *string  `json:"name" validate:"required"`
	Value       *float64 `json:"value" validate:"required"`
	DateCreated *int64   `json:"dateCreated" validate:"required"`
}

type eventJSON struct {
	Name        *string         `json:"name" validate:"required"`
	Attributes  json.RawMessage `json:"attributes"`
	DateCreated *int64          `json:"dateCreated" validate:"required"`
}

type countersRequest struct {
	Device   *deviceJSON   `json:"device" validate:"required"`
	Counters []counterJSON `json:"counters" validate:"required,dive"`
}

type gaugesRequest struct {
	Device *deviceJSON `json:"device" validate:"required"`
	Gauges []gaugeJSON `json:"gauges" validate:"required,dive"`
}

type eventsRequest struct {
	Device *deviceJSON `json:"device" validate:"required"`
	Events []eventJSON `json:"events" validate:"required,dive"`
}

// decodeBody parses and validates an ingestion payload. A body that is not
// JSON at all gets the malformed-input error; a JSON body with missing or
// mistyped fields gets a schema error naming the violated constraint.
// Returns false after writing the error response.
func decodeBody(ctx *fasthttp.RequestCtx, dst any) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			errResponse(ctx, fasthttp.StatusBadRequest,
				fmt.Sprintf("JSON does not match schema: invalid type for field %q", typeErr.Field))
		} else {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		}
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			errResponse(ctx, fasthttp.StatusBadRequest,
				fmt.Sprintf("JSON does not match schema: %s is %s", ve[0].Namespace(), ve[0].Tag()))
		} else {
			errResponse(ctx, fasthttp.StatusBadRequest, "JSON does not match schema")
		}
		return false
	}
	return true
}

// epochTime converts a reported epoch-seconds timestamp to an absolute
// instant in the server's timezone.
func epochTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// RegisterCounters ingests a batch of counter reports for the authenticated
// app. The whole batch is one transaction: any failure rolls everything back.
func RegisterCounters(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload countersRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		app, ok := MustApp(ctx)
		if !ok {
			return
		}

		dev := payload.Device.device()
		results := make(map[string]any, len(payload.Counters))
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, c := range payload.Counters {
				ci, err := dbpkg.RegisterCounter(tx, app, *c.Name, *c.Count,
					epochTime(*c.DateCreated), epochTime(*c.DateUpdated), dev)
				if err != nil {
					return err
				}
				results[*c.Name] = ci.Count
			}
			return nil
		})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to register counters")
			return
		}

		observeBatch(app.Name, "counter", len(payload.Counters))
		jsonResponse(ctx, map[string]any{"success": "Counters updated.", "results": results})
	}
}

// RegisterGauges ingests a batch of gauge reports. Every item creates a new
// instance row; nothing is merged.
func RegisterGauges(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload gaugesRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		app, ok := MustApp(ctx)
		if !ok {
			return
		}

		dev := payload.Device.device()
		results := make(map[string]any, len(payload.Gauges))
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, g := range payload.Gauges {
				gi, err := dbpkg.RegisterGauge(tx, app, *g.Name, *g.Value, epochTime(*g.DateCreated), dev)
				if err != nil {
					return err
				}
				results[*g.Name] = gi.Value
			}
			return nil
		})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to register gauges")
			return
		}

		observeBatch(app.Name, "gauge", len(payload.Gauges))
		jsonResponse(ctx, map[string]any{"success": "Gauges saved.", "results": results})
	}
}

// RegisterEvents ingests a batch of event reports. An absent attributes field
// is stored as an empty object, an explicit null as NULL.
func RegisterEvents(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload eventsRequest
		if !decodeBody(ctx, &payload) {
			return
		}
		app, ok := MustApp(ctx)
		if !ok {
			return
		}

		attrs := make([]datatypes.JSONMap, len(payload.Events))
		for i, ev := range payload.Events {
			m, err := parseAttributes(ev.Attributes)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest,
					fmt.Sprintf("JSON does not match schema: events[%d].attributes must be an object or null", i))
				return
			}
			attrs[i] = m
		}

		dev := payload.Device.device()
		results := make(map[string]any, len(payload.Events))
		err := db.Transaction(func(tx *gorm.DB) error {
			for i, ev := range payload.Events {
				ei, err := dbpkg.RegisterEvent(tx, app, *ev.Name, attrs[i], epochTime(*ev.DateCreated), dev)
				if err != nil {
					return err
				}
				results[*ev.Name] = ei.Attributes
			}
			return nil
		})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to register events")
			return
		}

		observeBatch(app.Name, "event", len(payload.Events))
		jsonResponse(ctx, map[string]any{"success": "Events saved.", "results": results})
	}
}

func parseAttributes(raw json.RawMessage) (datatypes.JSONMap, error) {
	if len(raw) == 0 {
		return datatypes.JSONMap{}, nil
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return datatypes.JSONMap(m), nil
}

func observeBatch(app, kind string, n int) {
	reportsTotal.WithLabelValues(app, kind).Add(float64(n))
	reportBatchSize.WithLabelValues(app, kind).Observe(float64(n))
}
