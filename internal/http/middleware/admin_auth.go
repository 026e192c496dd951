package middleware

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"appstats/internal/config"
	dbpkg "appstats/internal/db"
	httpctx "appstats/internal/http/ctx"
)

// AdminAuth returns middleware that resolves the session-token cookie to a
// user and sets it on the context. The cookie holds an opaque token issued at
// login, not the username, so a forged cookie cannot name a user into a
// session.
func AdminAuth(db *gorm.DB, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			token := string(ctx.Request.Header.Cookie("session_token"))
			if token == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}

			var user dbpkg.User
			if err := db.Where("session_token = ?", token).First(&user).Error; err != nil {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}

			if user.Username == cfg.AdminUser {
				user.IsAdmin = true
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}
