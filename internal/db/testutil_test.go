package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(gdb))
	return gdb
}

func testApp(t *testing.T, gdb *gorm.DB, name string) *App {
	t.Helper()
	app := &App{Name: name, Slug: name, Key: name + "-key"}
	require.NoError(t, gdb.Create(app).Error)
	return app
}

func testDevice(id string) Device {
	return Device{
		DeviceID:        id,
		Model:           "Pixel 8",
		AppVersion:      "1.0",
		BuildNumber:     "100",
		OSName:          "Android",
		OSVersion:       "14",
		OSVersionString: "Android 14 (UP1A)",
	}
}
