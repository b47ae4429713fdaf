package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/graph"
	"github.com/kioku-ai/kioku/internal/model"
)

const defaultLoopBreakerThreshold = 3
const defaultAuditMaxRows = 5000
const idempotencyCompletedTTL = 24 * time.Hour
const idempotencyInProgressTTL = 15 * time.Minute
const archiveRetention = 30 * 24 * time.Hour

// MaintainInput carries the parameters of a memory_maintain call. A zero
// Policy runs the engine's default policy; a zero LoopBreakerThreshold or
// AuditMaxRows falls back to its package default.
type MaintainInput struct {
	Tenant               string
	Project              string
	Policy               *governance.Policy
	LoopBreakerThreshold int
	AuditMaxRows         int
	TraceID              string
}

// MaintainReport summarizes every action memory_maintain took, in pipeline
// order, for the forensic meta block (spec.md §4.8).
type MaintainReport struct {
	Deduplicated           int
	ConflictsFound         int
	Quarantined            int
	Deprecated             int
	Deleted                int
	Escalated              int
	LoopBreakerFired       int
	LoopBreakerQuarantined int
	DanglingLinksCleaned   int
	AuditRowsTrimmed       int
	Archived               int
	IdempotencyKeysSwept   int
}

// Maintain runs the full housekeeping pipeline in fixed order: dedup,
// conflict detection, prune/escalate, loop-breaker, dangling-link cleanup,
// archive, audit trim, idempotency-key sweep, then a storage checkpoint and
// vacuum. Every pipeline stage is
// best-effort: a stage's failure is logged and the pipeline continues, since
// a partial maintenance pass is always safer than leaving earlier stages'
// work uncommitted (spec.md §4.8).
func (s *Service) Maintain(ctx context.Context, in MaintainInput) (MaintainReport, error) {
	start := time.Now()
	var report MaintainReport

	policy := s.governor.Policy()
	if in.Policy != nil {
		policy = *in.Policy
	}
	loopThreshold := in.LoopBreakerThreshold
	if loopThreshold <= 0 {
		loopThreshold = defaultLoopBreakerThreshold
	}
	auditMaxRows := in.AuditMaxRows
	if auditMaxRows <= 0 {
		auditMaxRows = defaultAuditMaxRows
	}

	items, err := s.store.AllActiveForProject(ctx, in.Tenant, in.Project)
	if err != nil {
		s.recordAudit(in.Tenant, in.Project, "memory_maintain", in.TraceID, false, "maintain_failed", start, uuid.Nil, "load active items")
		return report, fmt.Errorf("memory: maintain: load active items: %w", err)
	}

	s.runDedup(ctx, in, items, &report)
	s.runConflictDetection(ctx, in, items, &report)
	s.runPruneAndEscalate(ctx, in, policy, items, &report)
	s.runLoopBreaker(ctx, in, loopThreshold, &report)
	s.runCleanLinks(ctx, in, &report)
	s.runArchive(ctx, in, &report)
	s.runAuditTrim(ctx, in, auditMaxRows, &report)
	s.runIdempotencySweep(ctx, &report)
	s.runCheckpointAndVacuum(ctx)

	s.cache.Clear()

	detail := fmt.Sprintf("dedup=%d conflicts=%d quarantined=%d deprecated=%d deleted=%d loopbreaks=%d links_cleaned=%d archived=%d audit_trimmed=%d idempotency_swept=%d",
		report.Deduplicated, report.ConflictsFound, report.Quarantined, report.Deprecated, report.Deleted,
		report.LoopBreakerFired, report.DanglingLinksCleaned, report.Archived, report.AuditRowsTrimmed, report.IdempotencyKeysSwept)
	s.recordAudit(in.Tenant, in.Project, "memory_maintain", in.TraceID, true, "", start, uuid.Nil, detail)
	return report, nil
}

// runDedup collapses items sharing a content hash to their best survivor,
// soft-deleting the rest so they remain auditable (spec.md §4.8 "dedup":
// "soft-deletes all but the best"). Decision and state duplicates are
// deprecated instead of deleted.
func (s *Service) runDedup(ctx context.Context, in MaintainInput, items []model.MemoryItem, report *MaintainReport) {
	for _, group := range governance.Dedup(items) {
		for _, removed := range group.Removed {
			if governance.IsProtected(removed) {
				continue
			}
			reason := "deduplicated: superseded by " + group.Survivor.ID.String()
			newStatus := model.StatusDeleted
			if removed.Kind == model.KindDecision || removed.Kind == model.KindState {
				newStatus = model.StatusDeprecated
			}
			if err := s.store.SetStatus(ctx, in.Tenant, in.Project, removed.ID, newStatus, reason); err != nil {
				s.logger.Warn("memory: maintain dedup delete failed", "item", removed.ID, "error", err)
				continue
			}
			s.cache.Invalidate(removed.ID)
			report.Deduplicated++
		}
	}
}

// runConflictDetection records every heuristically detected contradiction
// as a conflict row, idempotent per pair (spec.md §4.8 "conflict").
func (s *Service) runConflictDetection(ctx context.Context, in MaintainInput, items []model.MemoryItem, report *MaintainReport) {
	for _, c := range governance.DetectConflicts(items) {
		conflict := model.ModelConflict{Tenant: in.Tenant, Project: in.Project, ItemA: c.A.ID, ItemB: c.B.ID, Reason: c.Reason}
		if err := s.store.CreateConflict(ctx, &conflict); err != nil {
			s.logger.Warn("memory: maintain conflict record failed", "error", err)
			continue
		}
		report.ConflictsFound++
	}

	g := graph.New(s.store)
	linkConflicts, err := g.FindConflicts(ctx, in.Tenant, in.Project)
	if err != nil {
		s.logger.Warn("memory: maintain graph conflict scan failed", "error", err)
		return
	}
	for _, lc := range linkConflicts {
		conflict := model.ModelConflict{Tenant: in.Tenant, Project: in.Project, ItemA: lc.A.ID, ItemB: lc.B.ID, Reason: "contradicts edge: " + lc.Link.Note}
		if err := s.store.CreateConflict(ctx, &conflict); err != nil {
			s.logger.Warn("memory: maintain graph conflict record failed", "error", err)
			continue
		}
		report.ConflictsFound++
	}
}

// runPruneAndEscalate applies the age/usefulness/error-count prune policy
// to every active item, then the quarantine->delete escalation threshold
// (spec.md §4.4, §4.8 "prune").
func (s *Service) runPruneAndEscalate(ctx context.Context, in MaintainInput, policy governance.Policy, items []model.MemoryItem, report *MaintainReport) {
	now := time.Now().UTC()
	for _, item := range items {
		decision := governance.Evaluate(item, policy, now)
		if !decision.Transition {
			continue
		}
		if err := s.store.SetStatus(ctx, in.Tenant, in.Project, item.ID, decision.NewStatus, decision.Reason); err != nil {
			s.logger.Warn("memory: maintain prune transition failed", "item", item.ID, "error", err)
			continue
		}
		s.cache.Invalidate(item.ID)
		switch decision.NewStatus {
		case model.StatusQuarantined:
			report.Quarantined++
		case model.StatusDeprecated:
			report.Deprecated++
		}
	}

	quarantined, err := s.store.ListItems(ctx, model.ListFilter{Tenant: in.Tenant, Project: in.Project, Status: model.StatusQuarantined, Limit: 10000})
	if err != nil {
		s.logger.Warn("memory: maintain escalate: list quarantined failed", "error", err)
		return
	}
	for _, item := range quarantined {
		decision := governance.Escalate(item, policy)
		if !decision.Transition {
			continue
		}
		// Escalation never hard-deletes: StatusDeleted here is a status
		// value like any other, recoverable until "archive" purges it
		// past the retention window.
		if applyErr := s.store.SetStatus(ctx, in.Tenant, in.Project, item.ID, decision.NewStatus, decision.Reason); applyErr != nil {
			s.logger.Warn("memory: maintain escalate transition failed", "item", item.ID, "error", applyErr)
			continue
		}
		s.cache.Invalidate(item.ID)
		report.Escalated++
		if decision.NewStatus == model.StatusDeleted {
			report.Deleted++
		} else {
			report.Deprecated++
		}
	}
}

// runLoopBreaker checks every recorded mistake signature against threshold
// and, for repeat offenders, quarantines the implicated items and creates a
// suppressing guardrail (spec.md §4.7 "checkLoopBreaker").
func (s *Service) runLoopBreaker(ctx context.Context, in MaintainInput, threshold int, report *MaintainReport) {
	mistakes, err := s.store.ListMistakes(ctx, in.Tenant, in.Project)
	if err != nil {
		s.logger.Warn("memory: maintain loopbreaker: list mistakes failed", "error", err)
		return
	}
	actions, err := s.governor.CheckLoopBreaker(ctx, in.Tenant, in.Project, threshold, mistakes)
	if err != nil {
		s.logger.Warn("memory: maintain loopbreaker failed", "error", err)
		return
	}
	for _, action := range actions {
		report.LoopBreakerFired++
		report.LoopBreakerQuarantined += len(action.QuarantinedIDs)
		for _, id := range action.QuarantinedIDs {
			s.cache.Invalidate(id)
		}
	}
}

// runCleanLinks removes edges whose endpoint item no longer exists
// (spec.md §4.8 "clean_links").
func (s *Service) runCleanLinks(ctx context.Context, in MaintainInput, report *MaintainReport) {
	g := graph.New(s.store)
	removed, err := g.CleanDanglingLinks(ctx, in.Tenant, in.Project)
	if err != nil {
		s.logger.Warn("memory: maintain clean_links failed", "error", err)
		return
	}
	report.DanglingLinksCleaned = removed
}

// runArchive hard-purges items that have sat in the "deleted" status past
// the retention window, the only point in the pipeline that permanently
// removes a row rather than transitioning its status (spec.md §4.8
// "archive").
func (s *Service) runArchive(ctx context.Context, in MaintainInput, report *MaintainReport) {
	cutoff := time.Now().UTC().Add(-archiveRetention)
	deleted, err := s.store.ListItems(ctx, model.ListFilter{Tenant: in.Tenant, Project: in.Project, Status: model.StatusDeleted, Limit: 10000})
	if err != nil {
		s.logger.Warn("memory: maintain archive: list deleted failed", "error", err)
		return
	}
	for _, item := range deleted {
		if item.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.store.DeleteItem(ctx, in.Tenant, in.Project, item.ID); err != nil {
			s.logger.Warn("memory: maintain archive purge failed", "item", item.ID, "error", err)
			continue
		}
		s.cache.Invalidate(item.ID)
		report.Archived++
	}
}

// runAuditTrim caps the audit log at maxRows per project (spec.md §4.8
// "audit_trim").
func (s *Service) runAuditTrim(ctx context.Context, in MaintainInput, maxRows int, report *MaintainReport) {
	n, err := s.store.TrimAudit(ctx, in.Tenant, in.Project, maxRows)
	if err != nil {
		s.logger.Warn("memory: maintain audit_trim failed", "error", err)
		return
	}
	report.AuditRowsTrimmed = int(n)
}

// runIdempotencySweep removes completed idempotency reservations older than
// their replay window and abandoned in-progress ones, so a crashed caller
// never blocks retries of its idempotency key forever (spec.md §4
// "Supplemented Features").
func (s *Service) runIdempotencySweep(ctx context.Context, report *MaintainReport) {
	n, err := s.store.CleanupIdempotencyKeys(ctx, idempotencyCompletedTTL, idempotencyInProgressTTL)
	if err != nil {
		s.logger.Warn("memory: maintain idempotency sweep failed", "error", err)
		return
	}
	report.IdempotencyKeysSwept = int(n)
}

// runCheckpointAndVacuum flushes the WAL and reclaims space. SQLite's FTS5
// content is trigger-maintained on every write, so there is no separate
// index-rebuild step to run here; a full-text index inconsistency would
// indicate a trigger bug, not a maintenance gap.
func (s *Service) runCheckpointAndVacuum(ctx context.Context) {
	if err := s.store.Checkpoint(ctx); err != nil {
		s.logger.Warn("memory: maintain wal_checkpoint failed", "error", err)
	}
	if err := s.store.Vacuum(ctx); err != nil {
		s.logger.Warn("memory: maintain vacuum failed", "error", err)
	}
}
