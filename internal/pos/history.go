package pos

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

// HistorySweeper periodically purges sales, expenses and analytics events
// past each profile's retention window for accounts that opted into
// auto-clear.
type HistorySweeper struct {
	db               *sql.DB
	logger           utils.Logger
	defaultRetention time.Duration
	stopCh           chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
}

func NewHistorySweeper(db *sql.DB, logger utils.Logger, defaultRetention time.Duration) *HistorySweeper {
	return &HistorySweeper{
		db:               db,
		logger:           logger,
		defaultRetention: defaultRetention,
		stopCh:           make(chan struct{}),
	}
}

func (s *HistorySweeper) Start(ctx context.Context, interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *HistorySweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *HistorySweeper) sweep() {
	profiles, err := storage.ListProfiles(s.db)
	if err != nil {
		s.logger.Error("history sweep failed to list profiles", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, profile := range profiles {
		if !profile.AutoClearEnabled || !profile.IsActive {
			continue
		}

		retention := time.Duration(profile.AutoClearDays) * 24 * time.Hour
		if retention <= 0 {
			retention = s.defaultRetention
		}
		cutoff := now.Add(-retention)

		sales, expenses, events, err := storage.PurgeHistoryBefore(s.db, profile.ID, cutoff)
		if err != nil {
			s.logger.Error("history sweep failed", "profile_id", profile.ID, "error", err)
			continue
		}

		if sales > 0 || expenses > 0 || events > 0 {
			s.logger.Info("history swept",
				"profile_id", profile.ID,
				"sales_deleted", sales,
				"expenses_deleted", expenses,
				"events_deleted", events,
				"cutoff", cutoff.Format(time.RFC3339))
		}
	}
}
