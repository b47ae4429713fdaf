package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/governance"
	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/storage"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// UpsertAction reports which gate accepted an upsert, for forensic meta.
type UpsertAction string

const (
	ActionCreated        UpsertAction = "created"
	ActionUpdated        UpsertAction = "updated"        // idempotency gate: identical content_hash
	ActionContentUpdated UpsertAction = "content_updated" // exact or fuzzy title match, content differs
)

// UpsertInput carries the parameters of a memory_upsert call.
type UpsertInput struct {
	Tenant     string
	Project    string
	Kind       model.Kind
	Title      string
	Content    string
	Tags       []string
	Provenance model.Provenance
	Confidence float64
	TraceID    string

	// IdempotencyKey, if set, makes retries of an identical payload replay the
	// first call's result instead of re-running the gate pipeline (spec.md §4
	// "Supplemented Features"). A retry with the same key but a different
	// payload is a validation error.
	IdempotencyKey string
}

// UpsertResult is the outcome of running an item through the upsert gates.
type UpsertResult struct {
	Item       model.MemoryItem
	Action     UpsertAction
	MatchedOn  string // "", "content_hash", "exact_title", "fuzzy_title"
	FuzzyScore float64

	// MaintenanceWarning is set every maintenanceWarningInterval successful
	// writes to a project, nudging the caller toward memory_maintain
	// (spec.md §4.3).
	MaintenanceWarning string
}

// maintenanceWarningInterval is how many successful writes to a project
// elapse between maintenance_warning nudges.
const maintenanceWarningInterval = 50

// Upsert runs the three-gate pipeline (spec.md §4.3): an exact content_hash
// match updates the existing row (idempotency gate); otherwise an exact
// lower-cased title match, then a fuzzy Jaccard title match, treat it as a
// content update; otherwise a fresh item is created. The whole operation is
// serialized per (action, project) via the store's lock (spec.md §5).
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	start := time.Now()

	var idemOwned bool
	var payloadHash string
	if in.IdempotencyKey != "" {
		var err error
		payloadHash, err = upsertPayloadHash(in)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("memory: hash upsert payload: %w", err)
		}
		lookup, beginErr := s.store.BeginIdempotency(ctx, in.Tenant, in.Project, "memory_upsert", in.IdempotencyKey, payloadHash)
		switch {
		case beginErr == nil && lookup.Completed:
			var replay UpsertResult
			if err := json.Unmarshal(lookup.ResponseData, &replay); err != nil {
				return UpsertResult{}, fmt.Errorf("memory: decode replayed upsert response: %w", err)
			}
			return replay, nil
		case beginErr == nil:
			idemOwned = true
		case errors.Is(beginErr, storage.ErrIdempotencyPayloadMismatch):
			return UpsertResult{}, fmt.Errorf("memory: %w", beginErr)
		case errors.Is(beginErr, storage.ErrIdempotencyInProgress):
			return UpsertResult{}, fmt.Errorf("memory: %w", beginErr)
		default:
			return UpsertResult{}, fmt.Errorf("memory: begin idempotency: %w", beginErr)
		}
	}

	lockKey := fmt.Sprintf("memory_upsert:%s:%s", in.Tenant, in.Project)

	var result UpsertResult
	err := s.store.WithLock(ctx, lockKey, func() error {
		r, err := s.upsertLocked(ctx, in)
		result = r
		return err
	})

	if idemOwned {
		if err != nil {
			if clearErr := s.store.ClearInProgressIdempotency(ctx, in.Tenant, in.Project, "memory_upsert", in.IdempotencyKey); clearErr != nil {
				s.logger.Warn("memory: clear stuck idempotency key failed", "error", clearErr)
			}
		} else if completeErr := s.store.CompleteIdempotency(ctx, in.Tenant, in.Project, "memory_upsert", in.IdempotencyKey, result); completeErr != nil {
			s.logger.Error("memory: failed to finalize idempotency record, clearing key to unblock retries", "error", completeErr)
			if clearErr := s.store.ClearInProgressIdempotency(ctx, in.Tenant, in.Project, "memory_upsert", in.IdempotencyKey); clearErr != nil {
				s.logger.Warn("memory: clear stuck idempotency key failed", "error", clearErr)
			}
		}
	}

	itemID := uuid.Nil
	errorCode := ""
	if err != nil {
		errorCode = "upsert_failed"
	} else {
		itemID = result.Item.ID
		if n := s.countWrite(in.Tenant, in.Project); n%maintenanceWarningInterval == 0 {
			result.MaintenanceWarning = fmt.Sprintf("%d writes since last reset; consider running memory_maintain", n)
		}
	}
	s.recordAudit(in.Tenant, in.Project, "memory_upsert", in.TraceID, err == nil, errorCode, start, itemID, string(result.Action))
	return result, err
}

// upsertPayloadHash hashes the fields that determine the upsert's outcome,
// so a retried idempotency key with a changed title/content/kind is caught
// as a payload mismatch rather than silently replaying a stale response.
func upsertPayloadHash(in UpsertInput) (string, error) {
	b, err := json.Marshal(struct {
		Kind       model.Kind
		Title      string
		Content    string
		Tags       []string
		Confidence float64
	}{in.Kind, in.Title, in.Content, in.Tags, in.Confidence})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Service) upsertLocked(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	if !in.Kind.Valid() {
		return UpsertResult{}, fmt.Errorf("memory: invalid kind %q", in.Kind)
	}
	contentHash := textutil.ContentHash(in.Content)

	if existing, ok, err := s.store.FindByContentHash(ctx, in.Tenant, in.Project, contentHash); err != nil {
		return UpsertResult{}, fmt.Errorf("memory: upsert idempotency gate: %w", err)
	} else if ok {
		return s.touchExisting(ctx, existing, in, ActionUpdated, "content_hash", 1.0)
	}

	candidates, err := s.store.ListCandidatesForTitleMatch(ctx, in.Tenant, in.Project, in.Kind)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("memory: upsert title gate: %w", err)
	}

	normalizedTitle := textutil.Normalize(in.Title)
	for _, c := range candidates {
		if textutil.Normalize(c.Title) == normalizedTitle && c.ContentHash != contentHash {
			return s.applyContentUpdate(ctx, c, in, contentHash, "exact_title", 1.0)
		}
	}

	if match, ok := governance.FindFuzzyMatch(candidates, in.Title, contentHash); ok {
		return s.applyContentUpdate(ctx, match.Item, in, contentHash, "fuzzy_title", match.Score)
	}

	item := model.MemoryItem{
		Tenant: in.Tenant, Project: in.Project, Kind: in.Kind, Title: in.Title, Content: in.Content,
		Tags: in.Tags, Provenance: in.Provenance, Confidence: in.Confidence, ContentHash: contentHash,
	}
	if vec, err := s.embed(ctx, in.Title+"\n\n"+in.Content); err != nil {
		s.logger.Warn("memory: embed on create failed, storing without embedding", "error", err)
	} else {
		item.Embedding = vec
	}
	if err := s.store.CreateItem(ctx, &item); err != nil {
		return UpsertResult{}, fmt.Errorf("memory: create item: %w", err)
	}
	s.cache.Invalidate(item.ID)
	return UpsertResult{Item: item, Action: ActionCreated}, nil
}

// touchExisting handles the idempotency gate: the content is byte-identical
// to an existing active item, so only bookkeeping fields move.
func (s *Service) touchExisting(ctx context.Context, existing model.MemoryItem, in UpsertInput, action UpsertAction, matchedOn string, score float64) (UpsertResult, error) {
	if err := s.store.TouchLastUsed(ctx, in.Tenant, in.Project, existing.ID); err != nil {
		return UpsertResult{}, fmt.Errorf("memory: touch existing: %w", err)
	}
	s.cache.Invalidate(existing.ID)
	existing.LastUsedAt = time.Now().UTC()
	return UpsertResult{Item: existing, Action: action, MatchedOn: matchedOn, FuzzyScore: score}, nil
}

// applyContentUpdate handles the exact-title and fuzzy-title gates: the
// title matched an existing item but the content has changed, so a new
// version is recorded (spec.md §3 "History").
func (s *Service) applyContentUpdate(ctx context.Context, existing model.MemoryItem, in UpsertInput, contentHash, matchedOn string, score float64) (UpsertResult, error) {
	updated := existing
	updated.Title = in.Title
	updated.Content = in.Content
	updated.Tags = in.Tags
	updated.Confidence = in.Confidence
	updated.ContentHash = contentHash
	if vec, err := s.embed(ctx, in.Title+"\n\n"+in.Content); err != nil {
		s.logger.Warn("memory: embed on content update failed, keeping prior embedding", "error", err)
		updated.Embedding = existing.Embedding
	} else {
		updated.Embedding = vec
	}

	if err := s.store.UpdateContent(ctx, &updated, "upsert: "+matchedOn+" match"); err != nil {
		return UpsertResult{}, fmt.Errorf("memory: apply content update: %w", err)
	}
	s.cache.Invalidate(updated.ID)
	return UpsertResult{Item: updated, Action: ActionContentUpdated, MatchedOn: matchedOn, FuzzyScore: score}, nil
}
