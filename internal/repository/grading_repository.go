package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/solargrade/solargrade-server/internal/repository/models"
)

const (
	driverPostgres = "postgres"

	defaultSnapshotRetention = 48
	minSnapshotRetention     = 2
)

type GradingRepository struct {
	db            *sql.DB
	driver        string
	keepSnapshots int
}

type Option func(*GradingRepository)

// WithSnapshotRetention keeps the newest n snapshots; older ones are
// deleted when a new snapshot is saved. Values below 2 are raised to 2
// so the previous ranking is always available for deltas.
func WithSnapshotRetention(n int) Option {
	return func(s *GradingRepository) { s.keepSnapshots = max(n, minSnapshotRetention) }
}

// NewGradingRepository wraps db. driver selects the placeholder style:
// "postgres" uses $n, anything else uses ?.
func NewGradingRepository(db *sql.DB, driver string, opts ...Option) *GradingRepository {
	s := &GradingRepository{db: db, driver: driver, keepSnapshots: defaultSnapshotRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GradingRepository) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		vendor_type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		average_score DOUBLE PRECISION NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_vendor_id ON reviews (vendor_id)`,
	`CREATE TABLE IF NOT EXISTS review_ratings (
		review_id TEXT NOT NULL REFERENCES reviews(id),
		question_id TEXT NOT NULL,
		category TEXT NOT NULL,
		rating INTEGER NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (review_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS vendor_aggregates (
		vendor_id TEXT PRIMARY KEY REFERENCES vendors(id),
		verified_review_count INTEGER NOT NULL,
		mean_score DOUBLE PRECISION,
		solargrade_score DOUBLE PRECISION,
		letter_grade TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ranking_snapshots (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ranking_entries (
		snapshot_id TEXT NOT NULL REFERENCES ranking_snapshots(id),
		vendor_id TEXT NOT NULL,
		vendor_type TEXT NOT NULL,
		vendor_rank INTEGER NOT NULL,
		solargrade_score DOUBLE PRECISION NOT NULL,
		letter_grade TEXT NOT NULL,
		review_count INTEGER NOT NULL,
		rank_change INTEGER,
		is_new BOOLEAN NOT NULL,
		PRIMARY KEY (snapshot_id, vendor_id)
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (s *GradingRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertVendor creates or renames a vendor.
func (s *GradingRepository) UpsertVendor(ctx context.Context, v models.Vendor) error {
	const query = `
		INSERT INTO vendors (id, name, vendor_type) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, vendor_type = excluded.vendor_type
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), v.ID, v.Name, v.VendorType); err != nil {
		return fmt.Errorf("exec UpsertVendor: %w", err)
	}
	return nil
}

func (s *GradingRepository) VendorExists(ctx context.Context, vendorID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM vendors WHERE id = ?`), vendorID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query VendorExists: %w", err)
	}
	return true, nil
}

// InsertReview stores a review and its rating entries in one transaction.
func (s *GradingRepository) InsertReview(ctx context.Context, review models.Review) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin InsertReview: %w", err)
	}
	defer tx.Rollback()

	const insertReview = `
		INSERT INTO reviews (id, vendor_id, average_score, verified, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, s.rebind(insertReview),
		review.ID, review.VendorID, review.AverageScore, review.Verified, review.CreatedAt); err != nil {
		return fmt.Errorf("exec InsertReview: %w", err)
	}

	const insertRating = `
		INSERT INTO review_ratings (review_id, question_id, category, rating, weight)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, r := range review.Ratings {
		if _, err := tx.ExecContext(ctx, s.rebind(insertRating),
			review.ID, r.QuestionID, r.Category, r.Rating, r.Weight); err != nil {
			return fmt.Errorf("exec InsertReview rating %q: %w", r.QuestionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit InsertReview: %w", err)
	}
	return nil
}

// SetReviewVerified reports false when no review has the given id.
func (s *GradingRepository) SetReviewVerified(ctx context.Context, reviewID string, verified bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE reviews SET verified = ? WHERE id = ?`), verified, reviewID)
	if err != nil {
		return false, fmt.Errorf("exec SetReviewVerified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows SetReviewVerified: %w", err)
	}
	return n > 0, nil
}

// ListVendorsWithReviews returns every vendor, including those without reviews.
func (s *GradingRepository) ListVendorsWithReviews(ctx context.Context) ([]models.VendorReviews, error) {
	const query = `
		SELECT v.id, v.vendor_type, r.id, r.average_score, r.verified
		FROM vendors AS v
		LEFT JOIN reviews AS r ON r.vendor_id = v.id
		ORDER BY v.id, r.id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ListVendorsWithReviews: %w", err)
	}
	defer rows.Close()

	var results []models.VendorReviews
	for rows.Next() {
		var (
			vendorID, vendorType string
			reviewID             sql.NullString
			score                sql.NullFloat64
			verified             sql.NullBool
		)
		if err := rows.Scan(&vendorID, &vendorType, &reviewID, &score, &verified); err != nil {
			return nil, fmt.Errorf("scan ListVendorsWithReviews row: %w", err)
		}

		if n := len(results); n == 0 || results[n-1].VendorID != vendorID {
			results = append(results, models.VendorReviews{VendorID: vendorID, VendorType: vendorType})
		}
		if !reviewID.Valid {
			continue
		}
		if !score.Valid {
			return nil, fmt.Errorf("review %q has no average score", reviewID.String)
		}
		last := &results[len(results)-1]
		last.Reviews = append(last.Reviews, models.ReviewSummary{
			ID:           reviewID.String,
			AverageScore: score.Float64,
			Verified:     verified.Valid && verified.Bool,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListVendorsWithReviews: %w", err)
	}
	return results, nil
}

func (s *GradingRepository) UpsertVendorAggregate(ctx context.Context, agg models.VendorAggregate) error {
	const query = `
		INSERT INTO vendor_aggregates
			(vendor_id, verified_review_count, mean_score, solargrade_score, letter_grade, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (vendor_id) DO UPDATE SET
			verified_review_count = excluded.verified_review_count,
			mean_score = excluded.mean_score,
			solargrade_score = excluded.solargrade_score,
			letter_grade = excluded.letter_grade,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		agg.VendorID,
		agg.VerifiedReviewCount,
		nullFloat(agg.MeanScore),
		nullFloat(agg.SolarGradeScore),
		agg.LetterGrade,
		agg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("exec UpsertVendorAggregate %q: %w", agg.VendorID, err)
	}
	return nil
}

func (s *GradingRepository) ListVendorAggregates(ctx context.Context) ([]models.VendorAggregate, error) {
	const query = `
		SELECT a.vendor_id, v.vendor_type, a.verified_review_count, a.mean_score,
			a.solargrade_score, a.letter_grade, a.updated_at
		FROM vendor_aggregates AS a
		JOIN vendors AS v ON v.id = a.vendor_id
		ORDER BY a.vendor_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ListVendorAggregates: %w", err)
	}
	defer rows.Close()

	var results []models.VendorAggregate
	for rows.Next() {
		var (
			agg         models.VendorAggregate
			mean, score sql.NullFloat64
		)
		if err := rows.Scan(&agg.VendorID, &agg.VendorType, &agg.VerifiedReviewCount,
			&mean, &score, &agg.LetterGrade, &agg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ListVendorAggregates row: %w", err)
		}
		agg.MeanScore = floatPtr(mean)
		agg.SolarGradeScore = floatPtr(score)
		results = append(results, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListVendorAggregates: %w", err)
	}
	return results, nil
}

// GetVendorAggregate returns models.ErrNotFound for unknown vendors and an
// empty aggregate for vendors that were never refreshed.
func (s *GradingRepository) GetVendorAggregate(ctx context.Context, vendorID string) (models.VendorAggregate, error) {
	const query = `
		SELECT v.id, v.vendor_type, a.verified_review_count, a.mean_score,
			a.solargrade_score, a.letter_grade, a.updated_at
		FROM vendors AS v
		LEFT JOIN vendor_aggregates AS a ON a.vendor_id = v.id
		WHERE v.id = ?
	`

	var (
		agg         models.VendorAggregate
		count       sql.NullInt64
		mean, score sql.NullFloat64
		letter      sql.NullString
		updatedAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(query), vendorID).
		Scan(&agg.VendorID, &agg.VendorType, &count, &mean, &score, &letter, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VendorAggregate{}, models.ErrNotFound
	}
	if err != nil {
		return models.VendorAggregate{}, fmt.Errorf("query GetVendorAggregate: %w", err)
	}

	agg.VerifiedReviewCount = int(count.Int64)
	agg.MeanScore = floatPtr(mean)
	agg.SolarGradeScore = floatPtr(score)
	agg.LetterGrade = letter.String
	agg.UpdatedAt = updatedAt.Time
	return agg, nil
}

// SaveSnapshot stores a snapshot and its entries atomically, then drops
// snapshots beyond the retention count in the same transaction.
func (s *GradingRepository) SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin SaveSnapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO ranking_snapshots (id, created_at) VALUES (?, ?)`),
		snapshot.ID, snapshot.CreatedAt); err != nil {
		return fmt.Errorf("exec SaveSnapshot: %w", err)
	}

	const insertEntry = `
		INSERT INTO ranking_entries
			(snapshot_id, vendor_id, vendor_type, vendor_rank, solargrade_score,
			 letter_grade, review_count, rank_change, is_new)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, s.rebind(insertEntry))
	if err != nil {
		return fmt.Errorf("prepare SaveSnapshot entry: %w", err)
	}
	defer stmt.Close()

	for _, e := range snapshot.Entries {
		if _, err := stmt.ExecContext(ctx,
			snapshot.ID, e.VendorID, e.VendorType, e.Rank, e.SolarGradeScore,
			e.LetterGrade, e.ReviewCount, nullInt(e.RankChange), e.IsNew); err != nil {
			return fmt.Errorf("exec SaveSnapshot entry %q: %w", e.VendorID, err)
		}
	}

	if err := s.pruneSnapshots(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit SaveSnapshot: %w", err)
	}
	return nil
}

func (s *GradingRepository) pruneSnapshots(ctx context.Context, tx *sql.Tx) error {
	const retained = `
		SELECT id FROM ranking_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	entries := `DELETE FROM ranking_entries WHERE snapshot_id NOT IN (` + retained + `)`
	snapshots := `DELETE FROM ranking_snapshots WHERE id NOT IN (` + retained + `)`

	if _, err := tx.ExecContext(ctx, s.rebind(entries), s.keepSnapshots); err != nil {
		return fmt.Errorf("prune ranking entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(snapshots), s.keepSnapshots); err != nil {
		return fmt.Errorf("prune ranking snapshots: %w", err)
	}
	return nil
}

// LatestSnapshots returns up to limit snapshots, newest first.
func (s *GradingRepository) LatestSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	const query = `
		SELECT id, created_at FROM ranking_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("query LatestSnapshots: %w", err)
	}

	var snapshots []models.Snapshot
	for rows.Next() {
		var snap models.Snapshot
		if err := rows.Scan(&snap.ID, &snap.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan LatestSnapshots row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate LatestSnapshots: %w", err)
	}
	rows.Close()

	for i := range snapshots {
		entries, err := s.snapshotEntries(ctx, snapshots[i].ID)
		if err != nil {
			return nil, err
		}
		snapshots[i].Entries = entries
	}
	return snapshots, nil
}

func (s *GradingRepository) snapshotEntries(ctx context.Context, snapshotID string) ([]models.SnapshotEntry, error) {
	const query = `
		SELECT vendor_id, vendor_type, vendor_rank, solargrade_score, letter_grade,
			review_count, rank_change, is_new
		FROM ranking_entries
		WHERE snapshot_id = ?
		ORDER BY vendor_rank
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot entries: %w", err)
	}
	defer rows.Close()

	var entries []models.SnapshotEntry
	for rows.Next() {
		var (
			e      models.SnapshotEntry
			change sql.NullInt64
		)
		if err := rows.Scan(&e.VendorID, &e.VendorType, &e.Rank, &e.SolarGradeScore,
			&e.LetterGrade, &e.ReviewCount, &change, &e.IsNew); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		if change.Valid {
			c := int(change.Int64)
			e.RankChange = &c
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot entries: %w", err)
	}
	return entries, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
