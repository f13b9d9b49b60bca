package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	pb "github.com/solargrade/solargrade-server/api/v1"
	"github.com/solargrade/solargrade-server/internal/grade"
	"github.com/solargrade/solargrade-server/internal/grpc/mocks"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func ptr[T any](v T) *T { return &v }

func newHandlers(scoring *mocks.MockScoringService, refresher *mocks.MockRefresher, c *mocks.MockCacher) *GRPCHandlers {
	if refresher == nil {
		refresher = &mocks.MockRefresher{}
	}
	if c == nil {
		c = &mocks.MockCacher{}
	}
	return NewGRPCHandlers(scoring, refresher, c, zap.NewNop(), time.Minute)
}

func sampleSnapshot() service.RankingSnapshot {
	return service.RankingSnapshot{
		ID:          "snap-1",
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Entries: []service.RankEntry{
			{VendorID: "sunco", VendorType: "installer", Rank: 1, SolarGradeScore: 4.66666, LetterGrade: grade.APlus, ReviewCount: 3, RankChange: ptr(3)},
			{VendorID: "quiet", VendorType: "installer", Rank: 2, SolarGradeScore: 3.2, LetterGrade: grade.B, ReviewCount: 5, IsNew: true},
		},
	}
}

func TestNewGRPCHandlers(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{}
		mockCache := &mocks.MockCacher{}
		ttl := 5 * time.Minute

		handlers := NewGRPCHandlers(mockScoring, &mocks.MockRefresher{}, mockCache, zap.NewNop(), ttl)

		assert.NotNil(t, handlers)
		assert.Equal(t, mockScoring, handlers.scoring)
		assert.Equal(t, ttl, handlers.loader.TTL())
		assert.NotNil(t, handlers.logger)
	})

	t.Run("nil scoring service panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewGRPCHandlers(nil, &mocks.MockRefresher{}, &mocks.MockCacher{}, zap.NewNop(), time.Minute)
		})
	})

	t.Run("nil refresher panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewGRPCHandlers(&mocks.MockScoringService{}, nil, &mocks.MockCacher{}, zap.NewNop(), time.Minute)
		})
	})

	t.Run("non-positive TTL uses default", func(t *testing.T) {
		for _, ttl := range []time.Duration{0, -time.Minute} {
			handlers := NewGRPCHandlers(&mocks.MockScoringService{}, &mocks.MockRefresher{}, nil, nil, ttl)
			assert.Equal(t, defaultCacheDuration, handlers.loader.TTL())
		}
	})
}

func TestHandleError(t *testing.T) {
	handlers := &GRPCHandlers{logger: zap.NewNop()}

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := handlers.handleError(ctx, "op", errors.New("some error"))

		assert.Equal(t, codes.Canceled, status.Code(err))
		assert.Contains(t, err.Error(), "request canceled")
	})

	t.Run("context deadline exceeded", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		err := handlers.handleError(ctx, "op", errors.New("some error"))

		assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
		assert.Contains(t, err.Error(), "request timed out")
	})

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"invalid rating", fmt.Errorf("%w: rating 9", service.ErrInvalidRating), codes.InvalidArgument},
		{"no scorable ratings", service.ErrNoScorableRatings, codes.InvalidArgument},
		{"invalid submission", service.ErrInvalidSubmission, codes.InvalidArgument},
		{"invalid grade filter", service.ErrInvalidGradeFilter, codes.InvalidArgument},
		{"vendor not found", service.ErrVendorNotFound, codes.NotFound},
		{"review not found", service.ErrReviewNotFound, codes.NotFound},
		{"no snapshot", service.ErrNoSnapshot, codes.NotFound},
		{"storage failure", fmt.Errorf("%w: disk I/O error", service.ErrStorageFailure), codes.Internal},
		{"unknown", errors.New("database connection lost"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handlers.handleError(context.Background(), "op", tt.err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	t.Run("storage details are not leaked", func(t *testing.T) {
		err := handlers.handleError(context.Background(), "op", fmt.Errorf("%w: secret dsn", service.ErrStorageFailure))

		assert.Contains(t, err.Error(), "database error")
		assert.NotContains(t, err.Error(), "secret dsn")
	})
}

func TestSubmitReview(t *testing.T) {
	t.Run("weighted ratings", func(t *testing.T) {
		var got service.ReviewSubmission
		mockScoring := &mocks.MockScoringService{
			SubmitReviewFunc: func(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error) {
				got = sub
				return service.ReviewScore{ReviewID: "rev-1", AverageScore: 4.333333}, nil
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		resp, err := handlers.SubmitReview(context.Background(), &pb.SubmitReviewRequest{
			VendorId: " sunco ",
			Ratings: []*pb.RatingEntry{
				{QuestionId: "q1", Category: "communication", Rating: 5, Weight: 2},
				nil,
				{QuestionId: "q2", Category: "pto_time", Rating: 1},
			},
			Verified: true,
		})

		require.NoError(t, err)
		assert.Equal(t, "rev-1", resp.ReviewId)
		assert.Equal(t, 4.333333, resp.AverageScore)
		assert.Equal(t, 4.3, resp.DisplayScore)
		assert.Equal(t, "A", resp.LetterGrade)

		assert.Equal(t, "sunco", got.VendorID)
		assert.True(t, got.Verified)
		require.Len(t, got.Ratings, 2)
		assert.Equal(t, service.RatingEntry{QuestionID: "q1", Category: "communication", Rating: 5, Weight: 2}, got.Ratings[0])
		assert.Nil(t, got.Legacy)
	})

	t.Run("legacy ratings", func(t *testing.T) {
		var got service.ReviewSubmission
		mockScoring := &mocks.MockScoringService{
			SubmitReviewFunc: func(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error) {
				got = sub
				return service.ReviewScore{ReviewID: "rev-2", AverageScore: 3}, nil
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		_, err := handlers.SubmitReview(context.Background(), &pb.SubmitReviewRequest{
			VendorId: "sunco",
			Legacy:   &pb.LegacyRatings{Communication: 1, InstallQuality: 2, PaymentReliability: 3, Timeliness: 4, PostInstallSupport: 5},
		})

		require.NoError(t, err)
		require.NotNil(t, got.Legacy)
		assert.Equal(t, service.LegacyRatings{Communication: 1, InstallQuality: 2, PaymentReliability: 3, Timeliness: 4, PostInstallSupport: 5}, *got.Legacy)
		assert.Empty(t, got.Ratings)
	})

	t.Run("missing vendor id", func(t *testing.T) {
		handlers := newHandlers(&mocks.MockScoringService{}, nil, nil)

		resp, err := handlers.SubmitReview(context.Background(), &pb.SubmitReviewRequest{})

		assert.Nil(t, resp)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("invalid rating maps to InvalidArgument", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			SubmitReviewFunc: func(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error) {
				return service.ReviewScore{}, fmt.Errorf("%w: question q1 rating 6", service.ErrInvalidRating)
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		_, err := handlers.SubmitReview(context.Background(), &pb.SubmitReviewRequest{VendorId: "sunco"})

		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Contains(t, err.Error(), "rating 6")
	})

	t.Run("unknown vendor maps to NotFound", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			SubmitReviewFunc: func(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error) {
				return service.ReviewScore{}, service.ErrVendorNotFound
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		_, err := handlers.SubmitReview(context.Background(), &pb.SubmitReviewRequest{VendorId: "ghost"})

		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestVerifyReview(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			VerifyReviewFunc: func(ctx context.Context, reviewID string) error {
				assert.Equal(t, "rev-1", reviewID)
				return nil
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		resp, err := handlers.VerifyReview(context.Background(), &pb.VerifyReviewRequest{ReviewId: "rev-1"})

		require.NoError(t, err)
		assert.True(t, resp.Verified)
	})

	t.Run("missing id", func(t *testing.T) {
		handlers := newHandlers(&mocks.MockScoringService{}, nil, nil)

		_, err := handlers.VerifyReview(context.Background(), nil)

		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("unknown review", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			VerifyReviewFunc: func(ctx context.Context, reviewID string) error { return service.ErrReviewNotFound },
		}
		handlers := newHandlers(mockScoring, nil, nil)

		_, err := handlers.VerifyReview(context.Background(), &pb.VerifyReviewRequest{ReviewId: "nope"})

		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestGetRankings(t *testing.T) {
	t.Run("maps entries and filter", func(t *testing.T) {
		var gotFilter service.RankFilter
		mockScoring := &mocks.MockScoringService{
			GetRankingsFunc: func(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error) {
				gotFilter = filter
				return sampleSnapshot(), nil
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		resp, err := handlers.GetRankings(context.Background(), &pb.GetRankingsRequest{VendorType: " Installer", MinGrade: "b"})

		require.NoError(t, err)
		assert.Equal(t, service.RankFilter{VendorType: "installer", MinGrade: grade.B}, gotFilter)
		assert.Equal(t, "snap-1", resp.SnapshotId)
		require.Len(t, resp.Entries, 2)

		first := resp.Entries[0]
		assert.Equal(t, int32(1), first.Rank)
		assert.Equal(t, 4.7, first.DisplayScore)
		assert.Equal(t, "A+", first.LetterGrade)
		require.NotNil(t, first.RankChange)
		assert.Equal(t, int32(3), *first.RankChange)

		second := resp.Entries[1]
		assert.True(t, second.IsNew)
		assert.Nil(t, second.RankChange)
		assert.Equal(t, int32(5), second.ReviewCount)
	})

	t.Run("serves cache hit", func(t *testing.T) {
		cached, err := json.Marshal(map[string]any{"value": sampleSnapshot(), "cached_at": time.Now()})
		require.NoError(t, err)

		mockCache := &mocks.MockCacher{
			GetFunc: func(ctx context.Context, key string, dest any) error {
				assert.Equal(t, "rankings:vt=:g=", key)
				return json.Unmarshal(cached, dest)
			},
		}
		handlers := newHandlers(&mocks.MockScoringService{}, nil, mockCache)

		resp, err := handlers.GetRankings(context.Background(), &pb.GetRankingsRequest{})

		require.NoError(t, err)
		assert.Len(t, resp.Entries, 2)
		assert.True(t, resp.GeneratedAt.Equal(sampleSnapshot().GeneratedAt))
	})

	t.Run("stores miss under filter key", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			GetRankingsFunc: func(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error) {
				return sampleSnapshot(), nil
			},
		}
		mockCache := &mocks.MockCacher{}
		handlers := newHandlers(mockScoring, nil, mockCache)

		_, err := handlers.GetRankings(context.Background(), &pb.GetRankingsRequest{VendorType: "installer", MinGrade: "A"})
		require.NoError(t, err)

		writes := mockCache.Writes()
		require.Len(t, writes, 1)
		assert.Equal(t, "rankings:vt=installer:g=A", writes[0].Key)
		assert.InDelta(t, time.Minute, writes[0].TTL, float64(15*time.Second))
	})

	t.Run("invalid grade filters", func(t *testing.T) {
		handlers := newHandlers(&mocks.MockScoringService{}, nil, nil)

		for _, g := range []string{"Z", "NR", "A++"} {
			_, err := handlers.GetRankings(context.Background(), &pb.GetRankingsRequest{MinGrade: g})
			assert.Equal(t, codes.InvalidArgument, status.Code(err), g)
		}
	})

	t.Run("nothing published yet", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			GetRankingsFunc: func(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error) {
				return service.RankingSnapshot{}, service.ErrNoSnapshot
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		_, err := handlers.GetRankings(context.Background(), &pb.GetRankingsRequest{})

		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestGetVendorGrade(t *testing.T) {
	t.Run("graded vendor", func(t *testing.T) {
		updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		mockScoring := &mocks.MockScoringService{
			GetVendorGradeFunc: func(ctx context.Context, vendorID string) (service.VendorAggregate, error) {
				return service.VendorAggregate{
					VendorID: vendorID, VendorType: "installer", VerifiedReviewCount: 4,
					MeanScore: ptr(4.04), SolarGradeScore: ptr(4.04), LetterGrade: grade.A, UpdatedAt: updated,
				}, nil
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		resp, err := handlers.GetVendorGrade(context.Background(), &pb.GetVendorGradeRequest{VendorId: "sunco"})

		require.NoError(t, err)
		assert.Equal(t, "sunco", resp.VendorId)
		assert.Equal(t, "A", resp.LetterGrade)
		require.NotNil(t, resp.DisplayScore)
		assert.Equal(t, 4.0, *resp.DisplayScore)
		require.NotNil(t, resp.UpdatedAt)
		assert.True(t, updated.Equal(*resp.UpdatedAt))
	})

	t.Run("ungraded vendor", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			GetVendorGradeFunc: func(ctx context.Context, vendorID string) (service.VendorAggregate, error) {
				return service.VendorAggregate{VendorID: vendorID, VerifiedReviewCount: 2, LetterGrade: grade.NotRated}, nil
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		resp, err := handlers.GetVendorGrade(context.Background(), &pb.GetVendorGradeRequest{VendorId: "new"})

		require.NoError(t, err)
		assert.Equal(t, "NR", resp.LetterGrade)
		assert.Nil(t, resp.SolargradeScore)
		assert.Nil(t, resp.DisplayScore)
		assert.Nil(t, resp.UpdatedAt)
	})

	t.Run("unknown vendor", func(t *testing.T) {
		mockScoring := &mocks.MockScoringService{
			GetVendorGradeFunc: func(ctx context.Context, vendorID string) (service.VendorAggregate, error) {
				return service.VendorAggregate{}, service.ErrVendorNotFound
			},
		}
		handlers := newHandlers(mockScoring, nil, nil)

		_, err := handlers.GetVendorGrade(context.Background(), &pb.GetVendorGradeRequest{VendorId: "ghost"})

		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("missing id", func(t *testing.T) {
		handlers := newHandlers(&mocks.MockScoringService{}, nil, nil)

		_, err := handlers.GetVendorGrade(context.Background(), &pb.GetVendorGradeRequest{VendorId: "  "})

		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestRefreshRankings(t *testing.T) {
	t.Run("reports outcome", func(t *testing.T) {
		refresher := &mocks.MockRefresher{
			TriggerFunc: func(ctx context.Context) (service.RefreshOutcome, error) {
				return service.RefreshOutcome{
					Refresh:  service.RefreshResult{Success: false, UpdatedCount: 9, FailedCount: 1, Message: "updated 9 of 10 vendors, 1 failed"},
					Snapshot: sampleSnapshot(),
				}, nil
			},
		}
		handlers := newHandlers(&mocks.MockScoringService{}, refresher, nil)

		resp, err := handlers.RefreshRankings(context.Background(), &pb.RefreshRankingsRequest{})

		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, int32(9), resp.UpdatedCount)
		assert.Equal(t, int32(1), resp.FailedCount)
		assert.Equal(t, "snap-1", resp.SnapshotId)
		assert.Equal(t, int32(2), resp.RankedCount)
	})

	t.Run("read failure fails closed", func(t *testing.T) {
		refresher := &mocks.MockRefresher{
			TriggerFunc: func(ctx context.Context) (service.RefreshOutcome, error) {
				return service.RefreshOutcome{}, fmt.Errorf("refresh aggregates: %w", service.ErrStorageFailure)
			},
		}
		handlers := newHandlers(&mocks.MockScoringService{}, refresher, nil)

		_, err := handlers.RefreshRankings(context.Background(), &pb.RefreshRankingsRequest{})

		assert.Equal(t, codes.Internal, status.Code(err))
	})
}
