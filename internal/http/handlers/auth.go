package handlers

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dbpkg "appstats/internal/db"
)

// generateSessionToken returns an unguessable value to back the session
// cookie; the cookie never carries the username itself.
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func LoginSubmit(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		username := string(ctx.PostArgs().Peek("username"))
		password := string(ctx.PostArgs().Peek("password"))

		var user dbpkg.User
		if err := db.Where("username = ?", username).First(&user).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				errResponse(ctx, fasthttp.StatusUnauthorized, "invalid username or password")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			errResponse(ctx, fasthttp.StatusUnauthorized, "invalid username or password")
			return
		}

		token, err := generateSessionToken()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create session")
			return
		}
		if err := db.Model(&dbpkg.User{}).Where("id = ?", user.ID).
			Update("session_token", token).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create session")
			return
		}

		var c fasthttp.Cookie
		c.SetKey("session_token")
		c.SetValue(token)
		c.SetPath("/")
		c.SetHTTPOnly(true)
		ctx.Response.Header.SetCookie(&c)

		jsonResponse(ctx, map[string]any{"success": "Logged in."})
	}
}

func Logout(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if token := string(ctx.Request.Header.Cookie("session_token")); token != "" {
			_ = db.Model(&dbpkg.User{}).Where("session_token = ?", token).
				Update("session_token", "").Error
		}

		var c fasthttp.Cookie
		c.SetKey("session_token")
		c.SetValue("")
		c.SetPath("/")
		c.SetMaxAge(-1)
		ctx.Response.Header.SetCookie(&c)
		jsonResponse(ctx, map[string]any{"success": "Logged out."})
	}
}
