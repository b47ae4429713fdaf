package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// StatsInput carries the parameters of a memory_stats call. Project is
// optional (spec.md §6); an empty value scopes the report to the tenant's
// default project rather than a true cross-project rollup, since every
// storage query in this system is tenant+project scoped (see DESIGN.md).
type StatsInput struct {
	Tenant  string
	Project string
	TraceID string
}

// StatsResult is the memory_stats report: counts, health, and the
// forensic-meta detail named in spec.md §6.
type StatsResult struct {
	TotalItems          int
	ByStatus            map[model.Status]int
	ByKind              map[model.Kind]int
	VersionDistribution map[int]int
	FormatCompliant     int
	FormatNonCompliant  int
	ActiveGuardrails    int
	OpenMistakes        int
	RecentConflicts     int
	AuditTotal          int
	AuditErrors         int
	DatabaseSizeBytes   int64
}

// Stats aggregates item, governance, and audit state for a project.
func (s *Service) Stats(ctx context.Context, in StatsInput) (StatsResult, error) {
	start := time.Now()
	result := StatsResult{
		ByStatus:            make(map[model.Status]int),
		ByKind:              make(map[model.Kind]int),
		VersionDistribution: make(map[int]int),
	}

	items, err := s.allItemsIncludingDeleted(ctx, in.Tenant, in.Project)
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_stats", in.TraceID, false, "stats_failed", start, uuid.Nil, "")
		return StatsResult{}, err
	}

	result.TotalItems = len(items)
	for _, item := range items {
		result.ByStatus[item.Status]++
		result.ByKind[item.Kind]++
		result.VersionDistribution[item.Version]++
		if item.Kind == model.KindRunbook || item.Kind == model.KindEpisode {
			tagSet := model.TagSet(item.Tags)
			if _, critical := tagSet["critical"]; critical {
				if textutil.HasCommandBlock(item.Content) {
					result.FormatCompliant++
				} else {
					result.FormatNonCompliant++
				}
			}
		}
	}

	guardrails, err := s.store.ListGuardrails(ctx, in.Tenant, in.Project)
	if err == nil {
		for _, g := range guardrails {
			if g.Active {
				result.ActiveGuardrails++
			}
		}
	} else {
		s.logger.Warn("memory: stats: list guardrails failed", "error", err)
	}

	mistakes, err := s.store.ListMistakes(ctx, in.Tenant, in.Project)
	if err == nil {
		result.OpenMistakes = len(mistakes)
	} else {
		s.logger.Warn("memory: stats: list mistakes failed", "error", err)
	}

	conflicts, err := s.store.ListConflicts(ctx, in.Tenant, in.Project)
	if err == nil {
		for _, c := range conflicts {
			if !c.Suppressed {
				result.RecentConflicts++
			}
		}
	} else {
		s.logger.Warn("memory: stats: list conflicts failed", "error", err)
	}

	audits, err := s.store.RecentAuditRecords(ctx, in.Tenant, in.Project, 1000)
	if err == nil {
		result.AuditTotal = len(audits)
		for _, a := range audits {
			if !a.Success {
				result.AuditErrors++
			}
		}
	} else {
		s.logger.Warn("memory: stats: recent audit failed", "error", err)
	}

	if size, err := s.store.DatabaseSizeBytes(ctx); err == nil {
		result.DatabaseSizeBytes = size
	} else {
		s.logger.Warn("memory: stats: database size failed", "error", err)
	}

	s.recordAudit(in.Tenant, in.Project, "memory_stats", in.TraceID, true, "", start, uuid.Nil, "")
	return result, nil
}

// allItemsIncludingDeleted fetches every status bucket explicitly, since
// ListItems' empty-status default excludes deleted rows (spec.md §6
// "version distribution" and "counts" cover every status, including
// deleted, for the health report).
func (s *Service) allItemsIncludingDeleted(ctx context.Context, tenant, project string) ([]model.MemoryItem, error) {
	statuses := []model.Status{model.StatusActive, model.StatusQuarantined, model.StatusDeprecated, model.StatusDeleted}
	var out []model.MemoryItem
	for _, st := range statuses {
		items, err := s.store.ListItems(ctx, model.ListFilter{Tenant: tenant, Project: project, Status: st, Limit: 100000})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}
