package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fastfish/assortment-engine/internal/cache"
	"github.com/fastfish/assortment-engine/internal/domain"
	"github.com/fastfish/assortment-engine/internal/repository"
	"github.com/fastfish/assortment-engine/internal/rules"
)

// RecommendationService serves consolidated recommendations and their
// per-period summaries, with a cache in front of the summary aggregate.
type RecommendationService struct {
	repo  repository.RecommendationRepository
	cache cache.SummaryCache
}

func NewRecommendationService(repo repository.RecommendationRepository, cacheImpl cache.SummaryCache) *RecommendationService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopSummaryCache()
	}
	return &RecommendationService{repo: repo, cache: cacheImpl}
}

func (s *RecommendationService) GetRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.Recommendation, int, error) {
	return s.repo.GetRecommendations(ctx, filter)
}

func (s *RecommendationService) GetSummary(ctx context.Context, periodLabel string) (*domain.RecommendationSummary, error) {
	if summary, ok, err := s.cache.GetSummary(ctx, periodLabel); err == nil && ok {
		return summary, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("recommendations: cache get summary failed")
	}

	summary, err := s.repo.GetSummary(ctx, periodLabel)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetSummary(ctx, periodLabel, summary); err != nil {
		log.Warn().Err(err).Msg("recommendations: cache set summary failed")
	}

	return summary, nil
}

func (s *RecommendationService) GetAvailablePeriods(ctx context.Context, limit int) ([]string, error) {
	return s.repo.GetAvailablePeriods(ctx, limit)
}

// StoreResults stores one period's consolidated output and invalidates the
// summary cache for that period.
func (s *RecommendationService) StoreResults(ctx context.Context, periodLabel string, recs []rules.ConsolidatedRecommendation) error {
	if err := s.repo.ReplacePeriod(ctx, periodLabel, recs); err != nil {
		return err
	}
	if err := s.cache.InvalidatePeriod(ctx, periodLabel); err != nil {
		log.Warn().Err(err).Str("period", periodLabel).Msg("recommendations: cache invalidation failed")
	}
	return nil
}
