package storage

import (
	"errors"
	"strings"

	logx "igrelay/pkg/logx"
)

const (
	DefaultFilePath   = "./users.json"
	DefaultSQLitePath = "./igrelay.db"
)

// Open initializes the configured store. An empty driver selects "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = DefaultFilePath
		}
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = DefaultSQLitePath
		}
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
