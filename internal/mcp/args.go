package mcp

import (
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/kioku-ai/kioku/internal/model"
)

const defaultTenant = "default"

// tenantOf returns the request's tenant argument, or the single-tenant
// default (spec.md §1 Non-goals: "a single tenant identifier is carried
// but not verified").
func tenantOf(request mcplib.CallToolRequest) string {
	if t := request.GetString("tenant", ""); t != "" {
		return t
	}
	return defaultTenant
}

// stringSlice pulls a []string argument out of the raw argument map; MCP
// JSON args arrive as []any regardless of element type.
func stringSlice(request mcplib.CallToolRequest, key string) []string {
	raw, ok := request.GetArguments()[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// kindSlice decodes a []string argument of kind names, dropping anything
// that isn't one of the five recognized kinds.
func kindSlice(request mcplib.CallToolRequest, key string) []model.Kind {
	names := stringSlice(request, key)
	out := make([]model.Kind, 0, len(names))
	for _, n := range names {
		k := model.Kind(n)
		if k.Valid() {
			out = append(out, k)
		}
	}
	return out
}

// decodeItems pulls the memory_upsert "items" argument into typed upsert
// payloads via a JSON round trip, the simplest robust way to turn MCP's
// loosely-typed []any-of-map[string]any into a known shape.
func decodeItems(request mcplib.CallToolRequest) ([]upsertItemArg, error) {
	raw, ok := request.GetArguments()["items"]
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var items []upsertItemArg
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// upsertItemArg is the JSON shape of one element of memory_upsert's items
// argument.
type upsertItemArg struct {
	Kind           string        `json:"kind"`
	Title          string        `json:"title"`
	Content        string        `json:"content"`
	Tags           []string      `json:"tags"`
	Confidence     float64       `json:"confidence"`
	Provenance     provenanceArg `json:"provenance"`
	IdempotencyKey string        `json:"idempotency_key"`
}

type provenanceArg struct {
	ModelID    string  `json:"model_id"`
	Persona    string  `json:"persona"`
	Confidence float64 `json:"confidence"`
	SessionID  string  `json:"session_id"`
}

func (p provenanceArg) toModel() model.Provenance {
	return model.Provenance{ModelID: p.ModelID, Persona: p.Persona, Confidence: p.Confidence, SessionID: p.SessionID}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return mcplib.NewToolResultText(string(data))
}
