package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"appstats/internal/config"
	"appstats/internal/db"
	"appstats/internal/http/handlers"
	appmw "appstats/internal/http/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	handlers.InitPrometheusMetrics()
	db.StartActivityWorker(sqlDB)

	r := router.New()

	internalURL := "http://localhost" + cfg.ListenAddr + "/api/events/" + cfg.InternalApp + "?key=" + cfg.InternalKey
	if cfg.ListenAddr != "" && cfg.ListenAddr[0] != ':' {
		internalURL = "http://" + cfg.ListenAddr + "/api/events/" + cfg.InternalApp + "?key=" + cfg.InternalKey
	}

	// Global middleware chain: request logger, then internal reporting, then router
	handler := handlers.RequestLogger(appmw.InternalReporting(cfg, internalURL)(r.Handler))

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/login", handlers.LoginSubmit(sqlDB))
	r.POST("/logout", handlers.Logout(sqlDB))

	r.POST("/api/counters/{app}", appmw.AppKeyAuth(sqlDB)(handlers.RegisterCounters(sqlDB)))
	r.POST("/api/gauges/{app}", appmw.AppKeyAuth(sqlDB)(handlers.RegisterGauges(sqlDB)))
	r.POST("/api/events/{app}", appmw.AppKeyAuth(sqlDB)(handlers.RegisterEvents(sqlDB)))

	r.GET("/v1/metrics", handlers.AppMetricsHandler(sqlDB))

	r.GET("/app/{slug}", appmw.AdminAuth(sqlDB, cfg)(handlers.AppDashboard(sqlDB)))
	r.GET("/app/{slug}/counter/{name}", appmw.AdminAuth(sqlDB, cfg)(handlers.CounterStats(sqlDB)))
	r.GET("/app/{slug}/gauge/{name}", appmw.AdminAuth(sqlDB, cfg)(handlers.GaugeStats(sqlDB)))
	r.GET("/app/{slug}/event/{name}", appmw.AdminAuth(sqlDB, cfg)(handlers.EventStats(sqlDB)))

	r.GET("/admin/apps", appmw.AdminAuth(sqlDB, cfg)(handlers.ListApps(sqlDB)))
	r.POST("/admin/apps/create", appmw.AdminAuth(sqlDB, cfg)(handlers.CreateApp(sqlDB)))
	r.POST("/admin/apps/{id}/delete", appmw.AdminAuth(sqlDB, cfg)(handlers.DeleteApp(sqlDB)))

	log.Printf("appstats listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
