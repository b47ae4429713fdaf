package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/service/memory"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("memory_upsert",
			mcplib.WithDescription(`Write one or more memory items to the project store.

WHEN TO USE: After learning something worth keeping — a fact, a decision and
its reasoning, a runbook step, a standing project state, or an episode
summarizing what you just did.

GATE BEHAVIOR: content byte-identical to an existing active item only
touches last_used_at. An exact or fuzzy title match on a different content
records a new version of that item instead of a duplicate. Anything else
creates a new item. Pass idempotency_key to make a retried call with the
same payload replay the first call's result instead of re-running the gate.

Five kinds: fact, state, decision, runbook, episode. decision and state
items are never hard-deleted, only deprecated.`),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithArray("items",
				mcplib.Description(`Items to upsert. Each: {kind, title, content, tags[], confidence, provenance{model_id,persona,confidence,session_id}, idempotency_key}.`),
				mcplib.Required(),
			),
		),
		s.handleUpsert,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_search",
			mcplib.WithDescription(`Hybrid keyword+vector search over project memory, ranked and governance-filtered.

WHEN TO USE: Before starting work in a project, to recall prior facts,
decisions, runbooks, and open todos relevant to the task at hand.

Quarantined and guardrail-suppressed items are excluded by default and
listed under excluded with the reason; pass override_quarantine=true to
include quarantined items in the results (suppressed items stay excluded).
Every returned item carries its keyword, vector and recency component
scores. The verbose flag is accepted but does not change the response; no
score weights are reported.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithString("query", mcplib.Description("Natural language search text."), mcplib.Required()),
			mcplib.WithArray("kinds", mcplib.Description("Optional kind filter: fact, state, decision, runbook, episode.")),
			mcplib.WithArray("tags", mcplib.Description("Optional tag filter (any match).")),
			mcplib.WithString("mode", mcplib.Description(`"hybrid" (default), "keyword_only", or "vector_only".`)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return."), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
			mcplib.WithBoolean("verbose", mcplib.Description("Accepted but has no effect on the response.")),
			mcplib.WithBoolean("override_quarantine", mcplib.Description("Include quarantined items in results instead of excluding them.")),
			mcplib.WithBoolean("diversify", mcplib.Description("Cap the results at three items per kind.")),
		),
		s.handleSearch,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_get",
			mcplib.WithDescription(`Fetch a single item by id. Counts as usage: bumps usefulness_score and last_used_at.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithString("id", mcplib.Description("Item id (UUID)."), mcplib.Required()),
		),
		s.handleGet,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_forget",
			mcplib.WithDescription(`Explicitly remove an item or a batch matched by kind/tag selector.

decision and state items are downgraded to deprecated rather than deleted,
even here — those two kinds never reach status=deleted.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithString("id", mcplib.Description("Item id to forget. Mutually exclusive with kinds/tags selector.")),
			mcplib.WithArray("kinds", mcplib.Description("Selector: forget every active item of these kinds.")),
			mcplib.WithArray("tags", mcplib.Description("Selector: forget every active item carrying any of these tags.")),
			mcplib.WithString("reason", mcplib.Description("Why this item is being forgotten, recorded to the audit trail.")),
		),
		s.handleForget,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_feedback",
			mcplib.WithDescription(`Tell the governance engine whether a previously-returned item was useful.

"useful" rewards usefulness_score (capped at 5.0). "not_relevant" lowers
usefulness_score by 0.5. "wrong" increments the item's error count and
clears verified; repeated "wrong" feedback can trigger quarantine.`),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithString("id", mcplib.Description("Item id."), mcplib.Required()),
			mcplib.WithString("label", mcplib.Description(`"useful", "not_relevant", or "wrong".`), mcplib.Required()),
		),
		s.handleFeedback,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_summarize",
			mcplib.WithDescription(`Assemble a full project briefing: state, key decisions, runbooks, user
preferences, active guardrails, open todos, blockers, excluded items,
graph conflicts, and recently touched context.

WHEN TO USE: At the start of a session, to load a project's standing
context in one call instead of several targeted searches.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
		),
		s.handleSummarize,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_maintain",
			mcplib.WithDescription(`Run the housekeeping pipeline: dedup, conflict detection, prune/escalate,
loop-breaker, dangling-link cleanup, archive, audit trim, idempotency
sweep, then a storage checkpoint and vacuum.

WHEN TO USE: Periodically, or whenever a memory_upsert response carries a
maintenance_warning. Safe to call at any time — every stage is
best-effort and non-destructive to decision/state items.`),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithNumber("loop_breaker_threshold", mcplib.Description("Repeated-mistake count that trips the loop-breaker. Defaults to 3."), mcplib.Min(1)),
			mcplib.WithNumber("audit_max_rows", mcplib.Description("Audit rows to retain after trimming. Defaults to 5000."), mcplib.Min(1)),
		),
		s.handleMaintain,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_list",
			mcplib.WithDescription(`Paginated raw browse of project items with a sort/filter whitelist — not a
ranked search. Sort by updated_at, created_at, usefulness_score, or
confidence.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Project identifier."), mcplib.Required()),
			mcplib.WithArray("kinds", mcplib.Description("Optional kind filter: fact, state, decision, runbook, episode.")),
			mcplib.WithString("status", mcplib.Description("Optional status filter: active, quarantined, deprecated, deleted.")),
			mcplib.WithArray("tags", mcplib.Description("Optional tag filter (any match).")),
			mcplib.WithString("sort_by", mcplib.Description("updated_at (default), created_at, usefulness_score, or confidence.")),
			mcplib.WithBoolean("sort_desc", mcplib.Description("Descending order. Defaults to true.")),
			mcplib.WithNumber("limit", mcplib.Description("Page size. Defaults to 50."), mcplib.Min(1), mcplib.Max(500)),
			mcplib.WithNumber("offset", mcplib.Description("Page offset. Defaults to 0."), mcplib.Min(0)),
		),
		s.handleList,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_stats",
			mcplib.WithDescription(`Aggregate health report: item counts by status and kind, version
distribution, critical runbook/episode format compliance, active
guardrails, open loop-breaker mistakes, recent conflicts, audit totals,
and database size.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Optional. Omit to scope to the tenant's default project.")),
		),
		s.handleStats,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("memory_reflect",
			mcplib.WithDescription(`Aggregate metacognition over the most recent episodes: average usefulness,
total recorded errors, tag frequency, and currently-open loop-breaker
mistakes.

WHEN TO USE: To check how well the agent has actually been doing lately,
not just what it did.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("tenant", mcplib.Description("Tenant identifier. Defaults to the single-tenant default.")),
			mcplib.WithString("project", mcplib.Description("Optional. Omit to scope to the tenant's default project.")),
			mcplib.WithNumber("lookback_count", mcplib.Description("How many recent episodes to scan. Defaults to 20."), mcplib.Min(1), mcplib.Max(500)),
			mcplib.WithArray("filter_tags", mcplib.Description("Optional tag filter over the episode window (any match).")),
		),
		s.handleReflect,
	)
}

func (s *Server) handleUpsert(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	if project == "" {
		return errorResult("project is required"), nil
	}
	traceID := uuid.New().String()

	items, err := decodeItems(request)
	if err != nil {
		return errorResult(fmt.Sprintf("decode items: %v", err)), nil
	}
	if len(items) == 0 {
		return errorResult("items is required and must be non-empty"), nil
	}

	type upsertOutcome struct {
		Item               model.MemoryItem    `json:"item"`
		Action             memory.UpsertAction `json:"action"`
		MatchedOn          string               `json:"matched_on,omitempty"`
		FuzzyScore         float64              `json:"fuzzy_score,omitempty"`
		MaintenanceWarning string               `json:"maintenance_warning,omitempty"`
	}

	results := make([]upsertOutcome, 0, len(items))
	for _, it := range items {
		result, err := s.memory.Upsert(ctx, memory.UpsertInput{
			Tenant: tenant, Project: project,
			Kind: model.Kind(it.Kind), Title: it.Title, Content: it.Content,
			Tags: it.Tags, Confidence: it.Confidence, Provenance: it.Provenance.toModel(),
			IdempotencyKey: it.IdempotencyKey, TraceID: traceID,
		})
		if err != nil {
			return errorResult(fmt.Sprintf("upsert %q failed: %v", it.Title, err)), nil
		}
		results = append(results, upsertOutcome{
			Item: result.Item, Action: result.Action, MatchedOn: result.MatchedOn,
			FuzzyScore: result.FuzzyScore, MaintenanceWarning: result.MaintenanceWarning,
		})
	}

	return jsonResult(map[string]any{
		"results": results,
		"meta":    s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleSearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	query := request.GetString("query", "")
	if project == "" || query == "" {
		return errorResult("project and query are required"), nil
	}
	traceID := uuid.New().String()

	result, err := s.memory.Search(ctx, model.SearchQuery{
		Tenant: tenant, Project: project, Text: query,
		Kinds: kindSlice(request, "kinds"), Tags: stringSlice(request, "tags"),
		Mode:               model.SearchMode(request.GetString("mode", "")),
		Limit:              request.GetInt("limit", 10),
		Verbose:            request.GetBool("verbose", false),
		OverrideQuarantine: request.GetBool("override_quarantine", false),
		Diversify:          request.GetBool("diversify", false),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	payload := map[string]any{
		"items":           result.Items,
		"excluded":        result.Excluded,
		"effective_mode":  result.EffectiveMode,
		"fallback_reason": result.FallbackReason,
		"meta":            s.buildMeta(ctx, traceID, tenant, project, string(result.EffectiveMode), result.FallbackReason),
	}
	return jsonResult(payload), nil
}

func (s *Server) handleGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	id := request.GetString("id", "")
	if project == "" || id == "" {
		return errorResult("project and id are required"), nil
	}
	traceID := uuid.New().String()

	item, err := s.memory.Get(ctx, memory.GetInput{Tenant: tenant, Project: project, ID: id, TraceID: traceID})
	if err != nil {
		return errorResult(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"item": item,
		"meta": s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleForget(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	if project == "" {
		return errorResult("project is required"), nil
	}
	traceID := uuid.New().String()

	id := request.GetString("id", "")
	var selector *memory.ForgetSelector
	if id == "" {
		selector = &memory.ForgetSelector{Kinds: kindSlice(request, "kinds"), Tags: stringSlice(request, "tags")}
	}

	result, err := s.memory.Forget(ctx, memory.ForgetInput{
		Tenant: tenant, Project: project, ID: id, Selector: selector,
		Reason: request.GetString("reason", ""), TraceID: traceID,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("forget failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"forgotten_ids":  result.ForgottenIDs,
		"downgraded_ids": result.DowngradedIDs,
		"meta":           s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleFeedback(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	id := request.GetString("id", "")
	label := request.GetString("label", "")
	if project == "" || id == "" || label == "" {
		return errorResult("project, id, and label are required"), nil
	}
	traceID := uuid.New().String()

	item, err := s.memory.Feedback(ctx, memory.FeedbackInput{
		Tenant: tenant, Project: project, ID: id, Label: governance.Label(label), TraceID: traceID,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("feedback failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"item": item,
		"meta": s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleSummarize(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	if project == "" {
		return errorResult("project is required"), nil
	}
	traceID := uuid.New().String()

	result, err := s.memory.Summarize(ctx, memory.SummarizeInput{Tenant: tenant, Project: project, TraceID: traceID})
	if err != nil {
		return errorResult(fmt.Sprintf("summarize failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"state":           result.State,
		"decisions":       result.Decisions,
		"runbooks":        result.Runbooks,
		"preferences":     result.Preferences,
		"guardrails":      result.Guardrails,
		"open_todos":      result.OpenTodos,
		"blockers":        result.Blockers,
		"excluded_items":  result.ExcludedItems,
		"graph_conflicts": result.GraphConflicts,
		"related_context": result.RelatedContext,
		"meta":            s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleMaintain(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	if project == "" {
		return errorResult("project is required"), nil
	}
	traceID := uuid.New().String()

	report, err := s.memory.Maintain(ctx, memory.MaintainInput{
		Tenant: tenant, Project: project,
		LoopBreakerThreshold: request.GetInt("loop_breaker_threshold", 0),
		AuditMaxRows:         request.GetInt("audit_max_rows", 0),
		TraceID:              traceID,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("maintain failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"report": report,
		"meta":   s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	if project == "" {
		return errorResult("project is required"), nil
	}
	traceID := uuid.New().String()

	result, err := s.memory.List(ctx, memory.ListInput{
		Tenant: tenant, Project: project,
		Kinds:    kindSlice(request, "kinds"),
		Status:   model.Status(request.GetString("status", "")),
		Tags:     stringSlice(request, "tags"),
		SortBy:   model.ListSortField(request.GetString("sort_by", "")),
		SortDesc: request.GetBool("sort_desc", true),
		Limit:    request.GetInt("limit", 50),
		Offset:   request.GetInt("offset", 0),
		TraceID:  traceID,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"items":    result.Items,
		"has_more": result.HasMore,
		"meta":     s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	traceID := uuid.New().String()

	result, err := s.memory.Stats(ctx, memory.StatsInput{Tenant: tenant, Project: project, TraceID: traceID})
	if err != nil {
		return errorResult(fmt.Sprintf("stats failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"total_items":          result.TotalItems,
		"by_status":            result.ByStatus,
		"by_kind":              result.ByKind,
		"version_distribution": result.VersionDistribution,
		"format_compliant":     result.FormatCompliant,
		"format_non_compliant": result.FormatNonCompliant,
		"active_guardrails":    result.ActiveGuardrails,
		"open_mistakes":        result.OpenMistakes,
		"recent_conflicts":     result.RecentConflicts,
		"audit_total":          result.AuditTotal,
		"audit_errors":         result.AuditErrors,
		"database_size_bytes":  result.DatabaseSizeBytes,
		"meta":                 s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}

func (s *Server) handleReflect(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := tenantOf(request)
	project := request.GetString("project", "")
	traceID := uuid.New().String()

	result, err := s.memory.Reflect(ctx, memory.ReflectInput{
		Tenant: tenant, Project: project,
		LookbackCount: request.GetInt("lookback_count", 0),
		FilterTags:    stringSlice(request, "filter_tags"),
		TraceID:       traceID,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("reflect failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"episode_count":      result.EpisodeCount,
		"average_usefulness": result.AverageUsefulness,
		"total_errors":       result.TotalErrors,
		"tag_frequency":      result.TagFrequency,
		"open_mistakes":      result.OpenMistakes,
		"meta":               s.buildMeta(ctx, traceID, tenant, project, "", ""),
	}), nil
}
