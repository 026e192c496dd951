package handlers

import (
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "appstats/internal/db"
)

// AppDashboard returns the active-install breakdowns for one app: installs
// counted by model, OS name, OS version and app version, each descending.
func AppDashboard(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := MustUser(ctx); !ok {
			return
		}
		slug, _ := ctx.UserValue("slug").(string)
		app, err := dbpkg.AppBySlug(db, slug)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "app not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		now := time.Now()
		sections := map[string]any{"app": app.Name, "slug": app.Slug}
		for label, dim := range map[string]dbpkg.Dimension{
			"by_model":       dbpkg.ByModel,
			"by_os_name":     dbpkg.ByOSName,
			"by_os_version":  dbpkg.ByOSVersion,
			"by_app_version": dbpkg.ByAppVersion,
		} {
			rows, err := dbpkg.ActiveInstallsBy(db, app, dim, now)
			if err != nil {
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query installs")
				return
			}
			sections[label] = rows
		}

		jsonResponse(ctx, sections)
	}
}

// metricResolver looks up one metric definition kind by (app, name).
type metricResolver func(db *gorm.DB, appID uint, name string) (dbpkg.Metric, error)

// metricStats is the shared read path for the three metric kinds: resolve the
// app and the definition, then emit the per-dimension breakdowns and total.
func metricStats(db *gorm.DB, kind string, resolve metricResolver) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := MustUser(ctx); !ok {
			return
		}
		slug, _ := ctx.UserValue("slug").(string)
		name, _ := ctx.UserValue("name").(string)

		app, err := dbpkg.AppBySlug(db, slug)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "app not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		metric, err := resolve(db, app.ID, name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, kind+" not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		now := time.Now()
		out := map[string]any{"app": app.Name, "name": metric.MetricName(), "kind": kind}
		for label, dim := range map[string]dbpkg.Dimension{
			"by_model":       dbpkg.ByModel,
			"by_os_name":     dbpkg.ByOSName,
			"by_os_version":  dbpkg.ByOSVersion,
			"by_app_version": dbpkg.ByAppVersion,
		} {
			rows, err := metric.ActiveCountPer(db, dim, now)
			if err != nil {
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query instances")
				return
			}
			out[label] = rows
		}

		total, err := metric.Total(db, now)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query total")
			return
		}
		out["total"] = total

		jsonResponse(ctx, out)
	}
}

func CounterStats(db *gorm.DB) fasthttp.RequestHandler {
	return metricStats(db, "counter", func(db *gorm.DB, appID uint, name string) (dbpkg.Metric, error) {
		return dbpkg.CounterByName(db, appID, name)
	})
}

func GaugeStats(db *gorm.DB) fasthttp.RequestHandler {
	return metricStats(db, "gauge", func(db *gorm.DB, appID uint, name string) (dbpkg.Metric, error) {
		return dbpkg.GaugeByName(db, appID, name)
	})
}

func EventStats(db *gorm.DB) fasthttp.RequestHandler {
	return metricStats(db, "event", func(db *gorm.DB, appID uint, name string) (dbpkg.Metric, error) {
		return dbpkg.EventByName(db, appID, name)
	})
}
