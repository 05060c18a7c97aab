package orch

import "strings"

// Batch is one declarative group of file mutations.
type Batch struct {
	Op             string      `json:"op"`
	Items          []Item      `json:"items"`
	Constraints    Constraints `json:"constraints"`
	TargetPath     string      `json:"target_path,omitempty"`
	Mode           string      `json:"mode,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

// Item is an opaque mapping with op-specific fields: old_path/new_path for
// rename and move, path or source_path for bundle inputs. Kept untyped so
// malformed submissions classify as DENY instead of failing to decode.
type Item map[string]any

// Constraints carry per-batch policy knobs.
type Constraints struct {
	Scope     string `json:"scope,omitempty"`     // "local_only" or unset
	Collision string `json:"collision,omitempty"` // "append-1" or unset
}

// stringField extracts a non-empty string field from an item.
func (it Item) stringField(key string) (string, bool) {
	v, ok := it[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// sourcePath returns a bundle item's input path; both spellings are accepted.
func (it Item) sourcePath() (string, bool) {
	if p, ok := it.stringField("path"); ok {
		return p, true
	}
	return it.stringField("source_path")
}

// opKind is the closed sum of supported operations. String dispatch from the
// wire is converted here once; everything downstream switches exhaustively.
type opKind int

const (
	opUnsupported opKind = iota
	opRenameMove
	opBundleCreate
)

// Wire op strings.
const (
	OpRenameBatch  = "rename.batch"
	OpMoveBatch    = "move.batch"
	OpBundleCreate = "bundle.create"
)

// parseOp classifies the wire op string.
func parseOp(op string) opKind {
	switch op {
	case OpRenameBatch, OpMoveBatch:
		return opRenameMove
	case OpBundleCreate:
		return opBundleCreate
	default:
		return opUnsupported
	}
}

// scopeAllowed reports whether the batch's scope constraint is satisfiable.
// Only local_only (or unset) is supported; remote scopes belong to the
// catalog layers outside this engine.
func scopeAllowed(c Constraints) bool {
	return c.Scope == "" || c.Scope == "local_only"
}

// collisionAllowed reports whether the batch's collision strategy is known.
// Only deterministic append-1 (or unset, which means append-1) is supported.
func collisionAllowed(c Constraints) bool {
	return c.Collision == "" || c.Collision == "append-1"
}
