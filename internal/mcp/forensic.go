package mcp

import (
	"context"

	"github.com/kioku-ai/kioku/internal/model"
)

// governanceSnapshot is the cheap per-call governance rollup named in
// spec.md §6 forensic meta.
type governanceSnapshot struct {
	Quarantined      int `json:"quarantined"`
	Deleted          int `json:"deleted"`
	GuardrailsActive int `json:"guardrails_active"`
}

func (s *Server) governanceSnapshot(ctx context.Context, tenant, project string) governanceSnapshot {
	var snap governanceSnapshot
	if items, err := s.memory.ListStatus(ctx, tenant, project, model.StatusQuarantined); err == nil {
		snap.Quarantined = len(items)
	}
	if items, err := s.memory.ListStatus(ctx, tenant, project, model.StatusDeleted); err == nil {
		snap.Deleted = len(items)
	}
	if guardrails, err := s.memory.ActiveGuardrailCount(ctx, tenant, project); err == nil {
		snap.GuardrailsActive = guardrails
	}
	return snap
}

// forensicDetail is the always-present forensic block attached to every
// tool response (spec.md §6 "Forensic metadata").
type forensicDetail struct {
	DBBackend               string             `json:"db_backend"`
	EmbeddingMode           string             `json:"embedding_mode"`
	EmbeddingBackendUsed    string             `json:"embedding_backend_used"`
	EmbeddingFallbackReason string             `json:"embedding_fallback_reason,omitempty"`
	Governance              governanceSnapshot `json:"governance"`
}

// toolMeta is the "meta" envelope field every tool response carries.
type toolMeta struct {
	TraceID  string         `json:"trace_id"`
	Forensic forensicDetail `json:"forensic"`
}

// buildMeta assembles the standard forensic envelope. mode and
// fallbackReason are empty for tools that don't run the ranker (anything
// but memory_search).
func (s *Server) buildMeta(ctx context.Context, traceID, tenant, project, mode, fallbackReason string) toolMeta {
	return toolMeta{
		TraceID: traceID,
		Forensic: forensicDetail{
			DBBackend:               s.memory.DBBackend(),
			EmbeddingMode:           mode,
			EmbeddingBackendUsed:    s.memory.EmbeddingBackend(),
			EmbeddingFallbackReason: fallbackReason,
			Governance:              s.governanceSnapshot(ctx, tenant, project),
		},
	}
}
