package gate

import (
	"context"
	"time"

	"github.com/atinyakov/gvagate/internal/models"
	"go.uber.org/zap"
)

// DefaultRefreshInterval is used when StartAutoRefresh gets no usable interval.
const DefaultRefreshInterval = time.Minute

// GroupFetcher is the part of Client used to refresh a GroupDB.
type GroupFetcher interface {
	Groups(ctx context.Context) ([]models.GroupRecord, error)
}

// Refresh fetches the group list and persists it to db.
func Refresh(ctx context.Context, f GroupFetcher, db *GroupDB) error {
	groups, err := f.Groups(ctx)
	if err != nil {
		return err
	}
	db.Replace(groups)
	return db.Save()
}

// StartAutoRefresh refreshes db right away and then every interval until
// ctx is cancelled. Failures are logged and retried on the next tick.
// A non-positive interval falls back to DefaultRefreshInterval.
func StartAutoRefresh(
	ctx context.Context,
	f GroupFetcher,
	db *GroupDB,
	interval time.Duration,
	log *zap.Logger,
) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			if err := Refresh(ctx, f, db); err != nil {
				log.Error("failed to refresh groups", zap.String("db", db.Path()), zap.Error(err))
			} else {
				log.Debug("refreshed groups", zap.Int("count", len(db.Enumerate())))
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
