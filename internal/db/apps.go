package db

import (
	"gorm.io/gorm"
)

// AppBySlug loads an app by its URL slug. Returns gorm.ErrRecordNotFound
// when no such app exists.
func AppBySlug(db *gorm.DB, slug string) (*App, error) {
	var app App
	if err := db.Where("slug = ?", slug).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// AppForIngest authenticates an ingestion request: the app name and shared
// key must both match. An unknown name and a wrong key are indistinguishable
// to the caller, both surface as gorm.ErrRecordNotFound.
func AppForIngest(db *gorm.DB, name, key string) (*App, error) {
	var app App
	if err := db.Where("name = ? AND key = ?", name, key).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}
