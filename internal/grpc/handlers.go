package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	pb "github.com/solargrade/solargrade-server/api/v1"
	"github.com/solargrade/solargrade-server/internal/grade"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/solargrade/solargrade-server/pkg/cache"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCacheDuration = 10 * time.Minute
	defaultGRPCTimeout   = 10 * time.Second
	// A refresh walks every vendor, so it gets a longer budget than reads.
	refreshTimeout = 2 * time.Minute
)

type GRPCHandlers struct {
	pb.UnimplementedRankingsServer
	scoring   ScoringService
	refresher Refresher
	loader    *cache.Loader
	logger    *zap.Logger
}

// NewGRPCHandlers initializes the gRPC handlers.
func NewGRPCHandlers(scoring ScoringService, refresher Refresher, c cache.Cacher, logger *zap.Logger, ttl time.Duration) *GRPCHandlers {
	if scoring == nil {
		panic("nil ScoringService provided to NewGRPCHandlers")
	}
	if refresher == nil {
		panic("nil Refresher provided to NewGRPCHandlers")
	}
	if ttl <= 0 {
		ttl = defaultCacheDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grpc-handler")
	return &GRPCHandlers{
		scoring:   scoring,
		refresher: refresher,
		loader:    cache.NewLoader(c, cache.WithTTL(ttl), cache.WithLoaderLogger(logger)),
		logger:    logger,
	}
}

func (s *GRPCHandlers) handleError(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		s.logger.Warn("request canceled", zap.String("op", op))
		return status.Error(codes.Canceled, "request canceled")
	case context.DeadlineExceeded:
		s.logger.Warn("request timeout", zap.String("op", op))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}

	switch {
	case errors.Is(err, service.ErrInvalidRating),
		errors.Is(err, service.ErrNoScorableRatings),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, service.ErrInvalidGradeFilter):
		s.logger.Info("invalid request", zap.String("op", op), zap.Error(err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrVendorNotFound),
		errors.Is(err, service.ErrReviewNotFound),
		errors.Is(err, service.ErrNoSnapshot):
		s.logger.Info("not found", zap.String("op", op), zap.Error(err))
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrStorageFailure):
		s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Internal, "database error")
	default:
		s.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}

func (s *GRPCHandlers) SubmitReview(ctx context.Context, req *pb.SubmitReviewRequest) (*pb.SubmitReviewResponse, error) {
	if strings.TrimSpace(req.GetVendorId()) == "" {
		return nil, status.Error(codes.InvalidArgument, "vendor_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	score, err := s.scoring.SubmitReview(ctx, toSubmission(req))
	if err != nil {
		return nil, s.handleError(ctx, "SubmitReview", err)
	}

	return &pb.SubmitReviewResponse{
		ReviewId:     score.ReviewID,
		AverageScore: score.AverageScore,
		DisplayScore: grade.DisplayScore(score.AverageScore),
		LetterGrade:  grade.FromScore(score.AverageScore).String(),
	}, nil
}

func (s *GRPCHandlers) VerifyReview(ctx context.Context, req *pb.VerifyReviewRequest) (*pb.VerifyReviewResponse, error) {
	id := strings.TrimSpace(req.GetReviewId())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "review_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	if err := s.scoring.VerifyReview(ctx, id); err != nil {
		return nil, s.handleError(ctx, "VerifyReview", err)
	}
	return &pb.VerifyReviewResponse{ReviewId: id, Verified: true}, nil
}

func (s *GRPCHandlers) GetRankings(ctx context.Context, req *pb.GetRankingsRequest) (*pb.GetRankingsResponse, error) {
	filter, err := parseFilter(req.GetVendorType(), req.GetMinGrade())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	snapshot, err := cache.Load(ctx, s.loader, service.RankingsCacheKey(filter),
		func(fetchCtx context.Context) (service.RankingSnapshot, error) {
			return s.scoring.GetRankings(fetchCtx, filter)
		})
	if err != nil {
		return nil, s.handleError(ctx, "GetRankings", err)
	}

	return toRankingsResponse(snapshot), nil
}

func (s *GRPCHandlers) GetVendorGrade(ctx context.Context, req *pb.GetVendorGradeRequest) (*pb.VendorGradeResponse, error) {
	id := strings.TrimSpace(req.GetVendorId())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "vendor_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	agg, err := cache.Load(ctx, s.loader, service.VendorGradeCacheKey(id),
		func(fetchCtx context.Context) (service.VendorAggregate, error) {
			return s.scoring.GetVendorGrade(fetchCtx, id)
		})
	if err != nil {
		return nil, s.handleError(ctx, "GetVendorGrade", err)
	}

	return toVendorGradeResponse(agg), nil
}

func (s *GRPCHandlers) RefreshRankings(ctx context.Context, _ *pb.RefreshRankingsRequest) (*pb.RefreshRankingsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	outcome, err := s.refresher.Trigger(ctx)
	if err != nil {
		return nil, s.handleError(ctx, "RefreshRankings", err)
	}

	return &pb.RefreshRankingsResponse{
		Success:      outcome.Refresh.Success,
		UpdatedCount: int32(outcome.Refresh.UpdatedCount),
		FailedCount:  int32(outcome.Refresh.FailedCount),
		Message:      outcome.Refresh.Message,
		SnapshotId:   outcome.Snapshot.ID,
		RankedCount:  int32(len(outcome.Snapshot.Entries)),
	}, nil
}

func parseFilter(vendorType, minGrade string) (service.RankFilter, error) {
	filter := service.RankFilter{VendorType: service.NormalizeVendorType(vendorType)}
	if strings.TrimSpace(minGrade) == "" {
		return filter, nil
	}

	g, err := grade.Parse(minGrade)
	if err != nil {
		return service.RankFilter{}, err
	}
	if !g.Rated() {
		return service.RankFilter{}, service.ErrInvalidGradeFilter
	}
	filter.MinGrade = g
	return filter, nil
}

func toSubmission(req *pb.SubmitReviewRequest) service.ReviewSubmission {
	sub := service.ReviewSubmission{
		VendorID: strings.TrimSpace(req.GetVendorId()),
		Verified: req.Verified,
	}
	for _, r := range req.Ratings {
		if r == nil {
			continue
		}
		sub.Ratings = append(sub.Ratings, service.RatingEntry{
			QuestionID: r.QuestionId,
			Category:   r.Category,
			Rating:     int(r.Rating),
			Weight:     r.Weight,
		})
	}
	if l := req.Legacy; l != nil {
		sub.Legacy = &service.LegacyRatings{
			Communication:      int(l.Communication),
			InstallQuality:     int(l.InstallQuality),
			PaymentReliability: int(l.PaymentReliability),
			Timeliness:         int(l.Timeliness),
			PostInstallSupport: int(l.PostInstallSupport),
		}
	}
	return sub
}

func toRankingsResponse(snapshot service.RankingSnapshot) *pb.GetRankingsResponse {
	entries := make([]*pb.RankEntry, len(snapshot.Entries))
	for i, e := range snapshot.Entries {
		entry := &pb.RankEntry{
			VendorId:        e.VendorID,
			VendorType:      e.VendorType,
			Rank:            int32(e.Rank),
			SolargradeScore: e.SolarGradeScore,
			DisplayScore:    grade.DisplayScore(e.SolarGradeScore),
			LetterGrade:     e.LetterGrade.String(),
			ReviewCount:     int32(e.ReviewCount),
			IsNew:           e.IsNew,
		}
		if e.RankChange != nil {
			change := int32(*e.RankChange)
			entry.RankChange = &change
		}
		entries[i] = entry
	}
	return &pb.GetRankingsResponse{
		SnapshotId:  snapshot.ID,
		GeneratedAt: snapshot.GeneratedAt,
		Entries:     entries,
	}
}

func toVendorGradeResponse(agg service.VendorAggregate) *pb.VendorGradeResponse {
	resp := &pb.VendorGradeResponse{
		VendorId:            agg.VendorID,
		VendorType:          agg.VendorType,
		VerifiedReviewCount: int32(agg.VerifiedReviewCount),
		MeanScore:           agg.MeanScore,
		SolargradeScore:     agg.SolarGradeScore,
		LetterGrade:         agg.LetterGrade.String(),
	}
	if agg.LetterGrade == "" {
		resp.LetterGrade = grade.NotRated.String()
	}
	if agg.SolarGradeScore != nil {
		display := grade.DisplayScore(*agg.SolarGradeScore)
		resp.DisplayScore = &display
	}
	if !agg.UpdatedAt.IsZero() {
		updated := agg.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
