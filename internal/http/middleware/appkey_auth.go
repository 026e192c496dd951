package middleware

import (
	"errors"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "appstats/internal/db"
	httpctx "appstats/internal/http/ctx"
)

// AppKeyAuth authenticates ingestion requests: the app name from the route
// plus the shared key from the query string must match a known app. The
// response never distinguishes an unknown app from a wrong key.
func AppKeyAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			name, _ := ctx.UserValue("app").(string)
			key := string(ctx.QueryArgs().Peek("key"))
			if name == "" || key == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid app and key")
				return
			}

			app, err := dbpkg.AppForIngest(db, name, key)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.SetStatusCode(fasthttp.StatusUnauthorized)
					ctx.SetBodyString("invalid app and key")
					return
				}
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("database error")
				return
			}

			httpctx.SetApp(ctx, app)
			next(ctx)
		}
	}
}
