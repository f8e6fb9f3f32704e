package service

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/model"
	"github.com/trailframes/server/internal/repository"
	"github.com/trailframes/server/internal/strava"
)

// defaultPageSize is how many activities are requested per upstream page.
const defaultPageSize = 200

// AccessTokenProvider yields a live external access token for an account.
type AccessTokenProvider interface {
	GetValidAccessToken(ctx context.Context, accountID uuid.UUID) (string, error)
}

// ActivityFeed is the paginated external activities read API.
type ActivityFeed interface {
	Activities(ctx context.Context, accessToken string, page, perPage int) ([]strava.SummaryActivity, error)
}

// SyncResult reports what one sync run did.
type SyncResult struct {
	Fetched  int
	Inserted int64
}

// IngestionEngine imports the external platform's activity history with
// idempotent bulk insertion.
type IngestionEngine struct {
	tokens     AccessTokenProvider
	feed       ActivityFeed
	activities repository.ActivityRepository
	pageSize   int
	logger     *zap.Logger
}

// NewIngestionEngine constructs an IngestionEngine.
func NewIngestionEngine(tokens AccessTokenProvider, feed ActivityFeed, activities repository.ActivityRepository, logger *zap.Logger) *IngestionEngine {
	return &IngestionEngine{
		tokens:     tokens,
		feed:       feed,
		activities: activities,
		pageSize:   defaultPageSize,
		logger:     logger,
	}
}

// SyncAll fetches the account's entire upstream activity history and
// persists the records not yet stored. All pages are fetched before
// anything is written, so a mid-pagination failure aborts the run with
// previously committed data untouched. Repeated runs against unchanged
// upstream data leave the store identical.
func (e *IngestionEngine) SyncAll(ctx context.Context, accountID uuid.UUID) (SyncResult, error) {
	accessToken, err := e.tokens.GetValidAccessToken(ctx, accountID)
	if err != nil {
		return SyncResult{}, err
	}

	items, err := e.fetchAll(ctx, accessToken)
	if err != nil {
		return SyncResult{}, err
	}
	if len(items) == 0 {
		// Nothing upstream is a successful, empty sync.
		return SyncResult{}, nil
	}

	inserted, err := e.persist(ctx, accountID, items)
	if err != nil {
		return SyncResult{}, err
	}

	e.logger.Info("activity sync finished",
		zap.String("account_id", accountID.String()),
		zap.Int("fetched", len(items)),
		zap.Int64("inserted", inserted),
	)
	return SyncResult{Fetched: len(items), Inserted: inserted}, nil
}

// fetchAll pages through the feed. A page returning zero items, or fewer
// items than the page size, signals the final page.
func (e *IngestionEngine) fetchAll(ctx context.Context, accessToken string) ([]strava.SummaryActivity, error) {
	var all []strava.SummaryActivity
	for page := 1; ; page++ {
		items, err := e.feed.Activities(ctx, accessToken, page, e.pageSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		e.logger.Debug("fetched activities page",
			zap.Int("page", page),
			zap.Int("count", len(items)),
		)
		if len(items) < e.pageSize {
			break
		}
	}
	return all, nil
}

// persist computes the set of genuinely new items with one batched
// existence query and inserts only those. The unique constraint on the
// external activity ID remains the backstop against a racing sync, since
// check-then-insert is not itself exclusive.
func (e *IngestionEngine) persist(ctx context.Context, accountID uuid.UUID, items []strava.SummaryActivity) (int64, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	existing, err := e.activities.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	records := make([]model.ActivityRecord, 0, len(items)-len(existing))
	for _, it := range items {
		if _, ok := existing[it.ID]; ok {
			continue
		}
		id, err := uuid.NewV4()
		if err != nil {
			return 0, err
		}
		records = append(records, model.ActivityRecord{
			ID:                 id,
			ExternalActivityID: it.ID,
			AccountID:          accountID,
			AthleteID:          it.Athlete.ID,
			Name:               it.Name,
			SportType:          it.SportType,
			Distance:           it.Distance,
			MovingTime:         it.MovingTime,
			ElapsedTime:        it.ElapsedTime,
			TotalElevationGain: it.TotalElevationGain,
			ElevHigh:           it.ElevHigh,
			ElevLow:            it.ElevLow,
			StartDate:          it.StartDate,
			StartDateLocal:     it.StartDateLocal,
			Timezone:           it.Timezone,
			StartLatLng:        it.StartLatLng,
			EndLatLng:          it.EndLatLng,
			AverageSpeed:       it.AverageSpeed,
			MaxSpeed:           it.MaxSpeed,
			AverageWatts:       it.AverageWatts,
			MaxWatts:           it.MaxWatts,
			Kilojoules:         it.Kilojoules,
			AchievementCount:   it.AchievementCount,
			KudosCount:         it.KudosCount,
			CommentCount:       it.CommentCount,
			AthleteCount:       it.AthleteCount,
			PhotoCount:         it.TotalPhotoCount,
			SummaryPolyline:    it.Map.SummaryPolyline,
			Trainer:            it.Trainer,
			Commute:            it.Commute,
			Manual:             it.Manual,
			Private:            it.Private,
		})
	}

	if len(records) == 0 {
		return 0, nil
	}
	return e.activities.InsertBatch(ctx, records)
}
