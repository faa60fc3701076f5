package app

import (
	"fmt"

	"github.com/kilianp07/roaming/config"
	"github.com/kilianp07/roaming/core/journal"
)

// OpenJournal opens the operation journal selected by cfg.
func OpenJournal(cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Backend {
	case "", "jsonl":
		return journal.NewJSONLStore(cfg.Path)
	case "rotating":
		return journal.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return journal.NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown journal backend %s", cfg.Backend)
	}
}
