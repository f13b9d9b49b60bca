package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/solargrade/solargrade-server/internal/grade"
	"github.com/solargrade/solargrade-server/internal/repository/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 1 * time.Second
	defaultWorkers      = 8
)

var (
	ErrStorageFailure     = errors.New("storage failure")
	ErrInvalidSubmission  = errors.New("invalid review submission")
	ErrVendorNotFound     = errors.New("vendor not found")
	ErrReviewNotFound     = errors.New("review not found")
	ErrNoSnapshot         = errors.New("no ranking snapshot published")
	ErrInvalidGradeFilter = errors.New("invalid grade filter")
)

// ScoringService scores reviews, refreshes vendor aggregates and publishes
// ranking snapshots.
type ScoringService struct {
	storage      GradingRepository
	logger       *zap.Logger
	transform    Transform
	workers      int
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

type Option func(*ScoringService)

// WithTransform sets the mean-to-SolarGrade transform. It must preserve order.
func WithTransform(t Transform) Option {
	return func(s *ScoringService) {
		if t != nil {
			s.transform = t
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *ScoringService) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *ScoringService) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ScoringService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *ScoringService) { s.newID = newID }
}

// NewScoringService creates a new ScoringService instance.
func NewScoringService(storage GradingRepository, logger *zap.Logger, opts ...Option) *ScoringService {
	if storage == nil {
		panic("storage must not be nil")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	s := &ScoringService{
		storage:      storage,
		logger:       logger,
		transform:    IdentityTransform,
		workers:      defaultWorkers,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitReview validates a submission, computes its average score once and
// persists it unrounded.
func (s *ScoringService) SubmitReview(ctx context.Context, sub ReviewSubmission) (ReviewScore, error) {
	if sub.VendorID == "" {
		return ReviewScore{}, fmt.Errorf("%w: vendor id is required", ErrInvalidSubmission)
	}

	ratings := sub.Ratings
	switch {
	case sub.Legacy != nil && len(sub.Ratings) > 0:
		return ReviewScore{}, fmt.Errorf("%w: weighted and legacy ratings are mutually exclusive", ErrInvalidSubmission)
	case sub.Legacy != nil:
		ratings = sub.Legacy.Entries()
	}

	if err := ValidateRatings(ratings); err != nil {
		return ReviewScore{}, err
	}
	if scorableCount(ratings) == 0 {
		return ReviewScore{}, ErrNoScorableRatings
	}

	dbCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	exists, err := s.storage.VendorExists(dbCtx, sub.VendorID)
	if err != nil {
		return ReviewScore{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !exists {
		return ReviewScore{}, ErrVendorNotFound
	}

	score := ReviewScore{
		ReviewID:     s.newID(),
		AverageScore: AverageScore(ratings),
	}

	rows := make([]models.RatingRow, len(ratings))
	for i, r := range ratings {
		rows[i] = models.RatingRow{
			QuestionID: r.QuestionID,
			Category:   r.Category,
			Rating:     r.Rating,
			Weight:     r.weight(),
		}
	}

	err = s.storage.InsertReview(dbCtx, models.Review{
		ID:           score.ReviewID,
		VendorID:     sub.VendorID,
		AverageScore: score.AverageScore,
		Verified:     sub.Verified,
		CreatedAt:    s.now(),
		Ratings:      rows,
	})
	if err != nil {
		return ReviewScore{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	s.logger.Info("review scored",
		zap.String("review_id", score.ReviewID),
		zap.String("vendor_id", sub.VendorID),
		zap.Float64("average_score", score.AverageScore),
		zap.Bool("verified", sub.Verified))

	return score, nil
}

// VerifyReview marks a review as verified so later refreshes include it.
func (s *ScoringService) VerifyReview(ctx context.Context, reviewID string) error {
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", ErrInvalidSubmission)
	}

	dbCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	found, err := s.storage.SetReviewVerified(dbCtx, reviewID, true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !found {
		return ErrReviewNotFound
	}
	s.logger.Info("review verified", zap.String("review_id", reviewID))
	return nil
}

// RefreshVendorAggregates recomputes every vendor aggregate. A read failure
// aborts before anything is written; write failures are isolated per vendor
// and reported in the result.
func (s *ScoringService) RefreshVendorAggregates(ctx context.Context) (RefreshResult, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	rows, err := s.storage.ListVendorsWithReviews(readCtx)
	cancel()
	if err != nil {
		return RefreshResult{Message: "failed to read vendor reviews"}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	vendors, err := toVendorsWithReviews(rows)
	if err != nil {
		return RefreshResult{Message: "rejected malformed review data"}, err
	}

	var updated, failed atomic.Int64
	now := s.now()

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, v := range vendors {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}

			agg := ComputeVendorAggregate(v, s.transform)
			agg.UpdatedAt = now

			writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			defer cancel()

			if err := s.storage.UpsertVendorAggregate(writeCtx, toModelAggregate(agg)); err != nil {
				failed.Add(1)
				s.logger.Warn("vendor aggregate write failed",
					zap.String("vendor_id", v.VendorID),
					zap.Error(err))
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := RefreshResult{
		Success:      failed.Load() == 0,
		UpdatedCount: int(updated.Load()),
		FailedCount:  int(failed.Load()),
	}
	result.Message = fmt.Sprintf("updated %d of %d vendors", result.UpdatedCount, len(vendors))
	if result.FailedCount > 0 {
		result.Message += fmt.Sprintf(", %d failed", result.FailedCount)
	}

	s.logger.Info("vendor aggregates refreshed",
		zap.Int("vendors", len(vendors)),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("refresh interrupted: %w", err)
	}
	return result, nil
}

// PublishRankings ranks the stored aggregates against the previous snapshot
// and persists the result. Nothing is published if any read fails.
func (s *ScoringService) PublishRankings(ctx context.Context) (RankingSnapshot, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	rows, err := s.storage.ListVendorAggregates(readCtx)
	if err != nil {
		return RankingSnapshot{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	prev, err := s.storage.LatestSnapshots(readCtx, 1)
	if err != nil {
		return RankingSnapshot{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	aggregates := make([]VendorAggregate, len(rows))
	for i, r := range rows {
		aggregates[i] = fromModelAggregate(r)
	}

	var previous []RankEntry
	if len(prev) > 0 {
		previous = fromModelEntries(prev[0].Entries)
	}

	snapshot := RankingSnapshot{
		ID:          s.newID(),
		GeneratedAt: s.now(),
		Entries:     RankVendors(aggregates, RankFilter{}, previous),
	}

	writeCtx, cancelWrite := context.WithTimeout(ctx, s.writeTimeout)
	defer cancelWrite()

	if err := s.storage.SaveSnapshot(writeCtx, toModelSnapshot(snapshot)); err != nil {
		return RankingSnapshot{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	s.logger.Info("ranking snapshot published",
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("ranked", len(snapshot.Entries)),
		zap.Int("vendors", len(aggregates)))

	return snapshot, nil
}

// RefreshAndPublish runs a full pass: aggregates first, then rankings.
// Partial aggregate write failures still publish; read failures do not.
func (s *ScoringService) RefreshAndPublish(ctx context.Context) (RefreshOutcome, error) {
	result, err := s.RefreshVendorAggregates(ctx)
	if err != nil {
		return RefreshOutcome{Refresh: result}, fmt.Errorf("refresh aggregates: %w", err)
	}

	snapshot, err := s.PublishRankings(ctx)
	if err != nil {
		return RefreshOutcome{Refresh: result}, fmt.Errorf("publish rankings: %w", err)
	}

	return RefreshOutcome{Refresh: result, Snapshot: snapshot}, nil
}

// GetRankings serves the latest published snapshot under filter. Deltas are
// computed against the previous snapshot ranked under the same filter.
func (s *ScoringService) GetRankings(ctx context.Context, filter RankFilter) (RankingSnapshot, error) {
	if filter.MinGrade != "" && !filter.MinGrade.Rated() {
		return RankingSnapshot{}, fmt.Errorf("%w: %q", ErrInvalidGradeFilter, filter.MinGrade)
	}

	dbCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	snapshots, err := s.storage.LatestSnapshots(dbCtx, 2)
	if err != nil {
		return RankingSnapshot{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if len(snapshots) == 0 {
		return RankingSnapshot{}, ErrNoSnapshot
	}

	latest := fromModelEntries(snapshots[0].Entries)

	var previous []RankEntry
	if len(snapshots) > 1 {
		previous = RankVendors(aggregatesFromEntries(fromModelEntries(snapshots[1].Entries)), filter, nil)
	}

	return RankingSnapshot{
		ID:          snapshots[0].ID,
		GeneratedAt: snapshots[0].CreatedAt,
		Entries:     RankVendors(aggregatesFromEntries(latest), filter, previous),
	}, nil
}

// GetVendorGrade returns a vendor's stored aggregate; vendors never
// refreshed come back ungraded.
func (s *ScoringService) GetVendorGrade(ctx context.Context, vendorID string) (VendorAggregate, error) {
	dbCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	row, err := s.storage.GetVendorAggregate(dbCtx, vendorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return VendorAggregate{}, ErrVendorNotFound
		}
		return VendorAggregate{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return fromModelAggregate(row), nil
}

func toVendorsWithReviews(rows []models.VendorReviews) ([]VendorWithReviews, error) {
	out := make([]VendorWithReviews, len(rows))
	for i, r := range rows {
		if r.VendorID == "" {
			return nil, fmt.Errorf("%w: vendor row %d has no id", ErrInvalidReviewScore, i)
		}
		reviews := make([]ReviewRecord, len(r.Reviews))
		for j, rv := range r.Reviews {
			if !validReviewScore(rv.AverageScore) {
				return nil, fmt.Errorf("%w: review %q of vendor %q has score %v", ErrInvalidReviewScore, rv.ID, r.VendorID, rv.AverageScore)
			}
			reviews[j] = ReviewRecord{
				ReviewID:     rv.ID,
				AverageScore: rv.AverageScore,
				Verified:     rv.Verified,
			}
		}
		out[i] = VendorWithReviews{
			VendorID:   r.VendorID,
			VendorType: r.VendorType,
			Reviews:    reviews,
		}
	}
	return out, nil
}

func toModelAggregate(a VendorAggregate) models.VendorAggregate {
	return models.VendorAggregate{
		VendorID:            a.VendorID,
		VendorType:          a.VendorType,
		VerifiedReviewCount: a.VerifiedReviewCount,
		MeanScore:           a.MeanScore,
		SolarGradeScore:     a.SolarGradeScore,
		LetterGrade:         a.LetterGrade.String(),
		UpdatedAt:           a.UpdatedAt,
	}
}

func fromModelAggregate(m models.VendorAggregate) VendorAggregate {
	a := VendorAggregate{
		VendorID:            m.VendorID,
		VendorType:          m.VendorType,
		VerifiedReviewCount: m.VerifiedReviewCount,
		MeanScore:           m.MeanScore,
		SolarGradeScore:     m.SolarGradeScore,
		UpdatedAt:           m.UpdatedAt,
	}
	// Graded rows carry both scores; anything else is treated as ungraded.
	if a.MeanScore == nil || a.SolarGradeScore == nil {
		a.MeanScore, a.SolarGradeScore = nil, nil
	}
	a.LetterGrade = grade.FromNullable(a.MeanScore)
	return a
}

func toModelSnapshot(s RankingSnapshot) models.Snapshot {
	entries := make([]models.SnapshotEntry, len(s.Entries))
	for i, e := range s.Entries {
		entries[i] = models.SnapshotEntry{
			VendorID:        e.VendorID,
			VendorType:      e.VendorType,
			Rank:            e.Rank,
			SolarGradeScore: e.SolarGradeScore,
			LetterGrade:     e.LetterGrade.String(),
			ReviewCount:     e.ReviewCount,
			RankChange:      e.RankChange,
			IsNew:           e.IsNew,
		}
	}
	return models.Snapshot{ID: s.ID, CreatedAt: s.GeneratedAt, Entries: entries}
}

func fromModelEntries(rows []models.SnapshotEntry) []RankEntry {
	out := make([]RankEntry, len(rows))
	for i, r := range rows {
		g, err := grade.Parse(r.LetterGrade)
		if err != nil || !g.Rated() {
			g = grade.FromScore(r.SolarGradeScore)
		}
		out[i] = RankEntry{
			VendorID:        r.VendorID,
			VendorType:      r.VendorType,
			Rank:            r.Rank,
			SolarGradeScore: r.SolarGradeScore,
			LetterGrade:     g,
			ReviewCount:     r.ReviewCount,
			RankChange:      r.RankChange,
			IsNew:           r.IsNew,
		}
	}
	return out
}
