package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

const defaultReflectLookback = 20

// ReflectInput carries the parameters of a memory_reflect call: aggregated
// metacognition over recent episodes (spec.md §6).
type ReflectInput struct {
	Tenant        string
	Project       string
	LookbackCount int
	FilterTags    []string
	TraceID       string
}

// ReflectResult summarizes what the recent episode window says about how
// well the agent has been doing.
type ReflectResult struct {
	EpisodeCount      int
	AverageUsefulness float64
	TotalErrors       int
	TagFrequency      map[string]int
	OpenMistakes      []model.Mistake
}

// Reflect scans the most recent episodes (optionally tag-filtered) and
// aggregates usefulness, error counts, and tag frequency, plus the
// project's currently-open loop-breaker mistakes.
func (s *Service) Reflect(ctx context.Context, in ReflectInput) (ReflectResult, error) {
	start := time.Now()
	lookback := in.LookbackCount
	if lookback <= 0 {
		lookback = defaultReflectLookback
	}

	episodes, err := s.store.ListItems(ctx, model.ListFilter{
		Tenant: in.Tenant, Project: in.Project,
		Kinds: []model.Kind{model.KindEpisode}, Status: model.StatusActive,
		SortBy: model.SortCreatedAt, SortDesc: true, Limit: lookback,
	})
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_reflect", in.TraceID, false, "reflect_failed", start, uuid.Nil, "")
		return ReflectResult{}, err
	}

	if len(in.FilterTags) > 0 {
		tagSet := model.TagSet(in.FilterTags)
		filtered := episodes[:0]
		for _, item := range episodes {
			if model.HasAnyTag(item.Tags, tagSet) {
				filtered = append(filtered, item)
			}
		}
		episodes = filtered
	}

	result := ReflectResult{TagFrequency: make(map[string]int)}
	var usefulnessSum float64
	for _, item := range episodes {
		result.EpisodeCount++
		usefulnessSum += item.UsefulnessScore
		result.TotalErrors += item.ErrorCount
		for _, tag := range model.NormalizeTags(item.Tags) {
			result.TagFrequency[tag]++
		}
	}
	if result.EpisodeCount > 0 {
		result.AverageUsefulness = usefulnessSum / float64(result.EpisodeCount)
	}

	mistakes, err := s.store.ListMistakes(ctx, in.Tenant, in.Project)
	if err != nil {
		s.logger.Warn("memory: reflect: list mistakes failed", "error", err)
	} else {
		result.OpenMistakes = mistakes
	}

	s.recordAudit(in.Tenant, in.Project, "memory_reflect", in.TraceID, true, "", start, uuid.Nil, "")
	return result, nil
}
