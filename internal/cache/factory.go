package cache

import (
	"log/slog"

	"despensa/internal/config"
)

// MakeCache picks remote blob storage when an account is configured and
// falls back to files under cfg.Storage.Dir.
func MakeCache(cfg *config.Config) (Cache, error) {
	if cfg.Storage.AccountName != "" {
		slog.Info("using Azure Blob Storage for state", "container", cfg.Storage.Container)
		bc, err := NewBlobCache(cfg.Storage.AccountName, cfg.Storage.AccountKey, cfg.Storage.Container)
		if err != nil {
			return nil, err
		}
		return bc, nil
	}
	slog.Info("using local files for state", "dir", cfg.Storage.Dir)
	return NewFileCache(cfg.Storage.Dir), nil
}
