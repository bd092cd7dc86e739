// Package audit provides the tamper-evident, hash-chained audit ledger for
// spaces. Every space has an append-only sequence of events persisted as
// newline-delimited JSON; each event carries a SHA-256 hash binding it to its
// predecessor, so any mutation of a persisted event is detectable.
package audit

import "errors"

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeDeny    = "deny"
	OutcomeError   = "error"
)

// RootHash is the sentinel prev_hash of the first event in a chain.
const RootHash = "root"

// Retention and pagination bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
	DefaultRetention = 5000
	MinRetention     = 100
	MaxRetention     = 50000
)

// EnvRetentionMaxEvents overrides the default retention ceiling.
const EnvRetentionMaxEvents = "UGOITE_AUDIT_RETENTION_MAX_EVENTS"

// Ledger errors.
var (
	// ErrInvalidSpaceID is returned for an empty or malformed space id.
	ErrInvalidSpaceID = errors.New("invalid space_id")
	// ErrEmptyAction is returned when the event action is blank.
	ErrEmptyAction = errors.New("audit action must not be empty")
	// ErrEmptyActor is returned when the event actor is blank.
	ErrEmptyActor = errors.New("actor_user_id must not be empty")
	// ErrMalformedLog is returned when a persisted ledger line is not a JSON object.
	ErrMalformedLog = errors.New("audit log contains malformed JSON")
	// ErrMissingEventHash is returned when a persisted event has no event_hash.
	ErrMissingEventHash = errors.New("audit event missing event_hash")
	// ErrPrevHashMismatch is returned when a stored prev_hash disagrees with
	// the running chain value.
	ErrPrevHashMismatch = errors.New("audit chain prev_hash mismatch")
	// ErrIntegrityViolation is returned when a recomputed event hash does not
	// match the stored one.
	ErrIntegrityViolation = errors.New("audit chain integrity check failed")
)

// Event is a single persisted audit event. The JSON field order below is the
// canonical serialization: the persisted line format and, with event_hash
// omitted, the hash input. Changing field order breaks chain verification for
// existing ledgers.
type Event struct {
	ID            string         `json:"id"`
	Timestamp     string         `json:"timestamp"`
	SpaceID       string         `json:"space_id"`
	Action        string         `json:"action"`
	ActorUserID   string         `json:"actor_user_id"`
	Outcome       string         `json:"outcome"`
	TargetType    *string        `json:"target_type"`
	TargetID      *string        `json:"target_id"`
	RequestMethod *string        `json:"request_method"`
	RequestPath   *string        `json:"request_path"`
	RequestID     *string        `json:"request_id"`
	Metadata      map[string]any `json:"metadata"`
	PrevHash      string         `json:"prev_hash"`
	EventHash     string         `json:"event_hash"`
}

// EventInput is the caller-supplied payload for appending an event.
// Action and ActorUserID are required; everything else is optional.
type EventInput struct {
	Action        string         `json:"action"`
	ActorUserID   string         `json:"actor_user_id"`
	Outcome       string         `json:"outcome"`
	TargetType    *string        `json:"target_type,omitempty"`
	TargetID      *string        `json:"target_id,omitempty"`
	RequestMethod *string        `json:"request_method,omitempty"`
	RequestPath   *string        `json:"request_path,omitempty"`
	RequestID     *string        `json:"request_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ListOptions are the filter and pagination options for List.
// Zero values mean "no filter" / defaults.
type ListOptions struct {
	Offset      int
	Limit       int
	Action      string
	ActorUserID string
	Outcome     string
}

// Page is one page of filtered events. Total is the post-filter count,
// not the page size.
type Page struct {
	Items  []*Event `json:"items"`
	Total  int      `json:"total"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}

// normalizeOutcome coerces unrecognized outcomes to success.
func normalizeOutcome(outcome string) string {
	switch v := normalizeLower(outcome); v {
	case OutcomeSuccess, OutcomeDeny, OutcomeError:
		return v
	default:
		return OutcomeSuccess
	}
}
