package main

import (
	"github.com/cockroachdb/errors"
	"github.com/dataplane/orm/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openDB connects using config.App.Database, the way database/postgres
// and database/sqlite each build their own gorm.Open call, dispatched
// here on a single Driver field instead of one package per driver.
func openDB() (*gorm.DB, error) {
	cfg := config.App.Database
	gcfg := &gorm.Config{}

	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.URI), gcfg)
	case "sqlite", "":
		uri := cfg.URI
		if uri == "" {
			uri = "file::memory:?cache=shared"
		}
		return gorm.Open(sqlite.Open(uri), gcfg)
	default:
		return nil, errors.Newf("unsupported database driver: %s", cfg.Driver)
	}
}
