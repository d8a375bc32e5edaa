package pipeline

import (
	"context"
	"errors"
	"time"

	"shortmaker/config"
	"shortmaker/retry"
	"shortmaker/storage"
)

// OpenStore opens the configured results ledger, retrying while another
// process holds its lock.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	rc := retry.DefaultConfig()
	rc.MaxRetries = 3
	rc.BaseDelay = 250 * time.Millisecond
	return openStore(ctx, cfg, rc)
}

func openStore(ctx context.Context, cfg *config.Config, rc retry.Config) (storage.Store, error) {
	var store storage.Store
	err := retry.Do(ctx, rc, retry.IsRetryable, func(ctx context.Context) error {
		s, err := storage.Open(cfg.StoreBackend, cfg.StorePath)
		if err != nil {
			if isLockTimeout(err) {
				return err
			}
			return retry.Permanent(err)
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func isLockTimeout(err error) bool {
	return errors.Is(err, storage.ErrLockTimeout)
}
