package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/trailframes/server/internal/model"
)

// ActivityRepo implements ActivityRepository using PostgreSQL.
type ActivityRepo struct{ db *DB }

// NewActivityRepo constructs an activity repository.
func NewActivityRepo(db *DB) *ActivityRepo { return &ActivityRepo{db: db} }

// ExistingExternalIDs returns which of the supplied external activity IDs
// are already stored.
func (r *ActivityRepo) ExistingExternalIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	const q = `SELECT external_activity_id FROM activities WHERE external_activity_id = ANY($1)`
	rows, err := r.db.Pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertBatch inserts records inside one transaction. The unique index on
// external_activity_id plus ON CONFLICT DO NOTHING makes the insert safe
// against a sync racing this one, so a duplicate row is skipped rather
// than failing the batch. Returns the number of rows actually inserted.
func (r *ActivityRepo) InsertBatch(ctx context.Context, records []model.ActivityRecord) (inserted int64, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO activities (
	id, external_activity_id, account_id, athlete_id,
	name, sport_type, distance, moving_time, elapsed_time,
	total_elevation_gain, elev_high, elev_low,
	start_date, start_date_local, timezone, start_latlng, end_latlng,
	average_speed, max_speed, average_watts, max_watts, kilojoules,
	achievement_count, kudos_count, comment_count, athlete_count, photo_count,
	summary_polyline, trainer, commute, manual, private
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
	$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32
) ON CONFLICT (external_activity_id) DO NOTHING`

	for _, rec := range records {
		tag, execErr := tx.Exec(ctx, ins,
			rec.ID, rec.ExternalActivityID, rec.AccountID, rec.AthleteID,
			rec.Name, rec.SportType, rec.Distance, rec.MovingTime, rec.ElapsedTime,
			rec.TotalElevationGain, rec.ElevHigh, rec.ElevLow,
			rec.StartDate, rec.StartDateLocal, rec.Timezone, rec.StartLatLng, rec.EndLatLng,
			rec.AverageSpeed, rec.MaxSpeed, rec.AverageWatts, rec.MaxWatts, rec.Kilojoules,
			rec.AchievementCount, rec.KudosCount, rec.CommentCount, rec.AthleteCount, rec.PhotoCount,
			rec.SummaryPolyline, rec.Trainer, rec.Commute, rec.Manual, rec.Private,
		)
		if execErr != nil {
			err = execErr
			return 0, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// CountByAccount returns the number of stored records for an account.
func (r *ActivityRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM activities WHERE account_id=$1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, accountID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
