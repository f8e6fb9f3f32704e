package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/trailframes/server/internal/model"
)

// ActivityRepository stores imported activity records.
type ActivityRepository interface {
	// ExistingExternalIDs returns which of the supplied external activity
	// IDs are already stored, as a set.
	ExistingExternalIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
	// InsertBatch inserts records in one batched statement. Rows whose
	// external activity ID already exists are skipped by the storage
	// layer, so racing syncs cannot produce duplicates. Returns the
	// number of rows actually inserted.
	InsertBatch(ctx context.Context, records []model.ActivityRecord) (int64, error)
	// CountByAccount returns the number of stored records for an account.
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}
