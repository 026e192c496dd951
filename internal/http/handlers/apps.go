package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "appstats/internal/db"
)

func generateAppKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "as_" + base64.URLEncoding.EncodeToString(b), nil
}

// slugify lowercases the name and collapses everything that is not a letter
// or digit into single hyphens.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ListApps returns all registered apps, shared keys included; the caller is
// an authenticated admin.
func ListApps(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			errResponse(ctx, fasthttp.StatusForbidden, "forbidden")
			return
		}

		var apps []dbpkg.App
		if err := db.Order("name").Find(&apps).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list apps")
			return
		}
		jsonResponse(ctx, map[string]any{"apps": apps})
	}
}

// CreateApp registers a new tenant app with a generated shared key.
func CreateApp(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			errResponse(ctx, fasthttp.StatusForbidden, "forbidden")
			return
		}

		name := strings.TrimSpace(string(ctx.PostArgs().Peek("name")))
		if name == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "name required")
			return
		}
		slug := strings.TrimSpace(string(ctx.PostArgs().Peek("slug")))
		if slug == "" {
			slug = slugify(name)
		}
		if slug == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "name does not produce a valid slug")
			return
		}

		key, err := generateAppKey()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to generate app key")
			return
		}

		app := &dbpkg.App{Name: name, Slug: slug, Key: key}
		if err := db.Create(app).Error; err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "failed to create app (name or slug may already exist)")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"id": app.ID, "name": app.Name, "slug": app.Slug, "key": app.Key})
	}
}

// DeleteApp removes an app; the cascade constraints take its installs,
// versions, definitions and instances with it.
func DeleteApp(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			errResponse(ctx, fasthttp.StatusForbidden, "forbidden")
			return
		}

		idStr, _ := ctx.UserValue("id").(string)
		id, err := strconv.Atoi(idStr)
		if err != nil || id <= 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid id")
			return
		}

		var app dbpkg.App
		if err := db.First(&app, id).Error; err != nil {
			errResponse(ctx, fasthttp.StatusNotFound, "app not found")
			return
		}

		if err := db.Delete(&app).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to delete app")
			return
		}

		jsonResponse(ctx, map[string]any{"success": "App deleted.", "id": app.ID})
	}
}
