package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ugoite/ugoite/internal/storage"
)

// tracer instruments ledger operations.
var tracer = otel.Tracer("github.com/ugoite/ugoite/internal/audit")

// spaceIDPattern constrains space ids to a filesystem- and key-safe alphabet.
var spaceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ValidateSpaceID trims the input and checks it against the space id pattern.
// Returns the normalized id or ErrInvalidSpaceID.
func ValidateSpaceID(spaceID string) (string, error) {
	normalized := strings.TrimSpace(spaceID)
	if normalized == "" {
		return "", fmt.Errorf("%w: space_id must not be empty", ErrInvalidSpaceID)
	}
	if !spaceIDPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSpaceID, spaceID)
	}
	return normalized, nil
}

// eventsPath returns the ledger file path for a space.
func eventsPath(spaceID string) string {
	return "spaces/" + spaceID + "/audit/events.jsonl"
}

// auditDirPath returns the audit directory prefix for a space.
func auditDirPath(spaceID string) string {
	return "spaces/" + spaceID + "/audit/"
}

func normalizeLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// nowISO returns the current UTC time in fixed-width millisecond ISO-8601.
// Fixed width keeps timestamps lexicographically ordered.
func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// newEventID generates a globally unique event id.
func newEventID() string {
	return "audit-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// clampRetention clamps a retention ceiling into [MinRetention, MaxRetention].
func clampRetention(limit int) int {
	if limit < MinRetention {
		return MinRetention
	}
	if limit > MaxRetention {
		return MaxRetention
	}
	return limit
}

// retentionFromEnv reads the retention ceiling from the environment, clamped.
// ok is false when the variable is unset or unparseable.
func retentionFromEnv() (int, bool) {
	raw := strings.TrimSpace(os.Getenv(EnvRetentionMaxEvents))
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return clampRetention(parsed), true
}

// resolveRetention picks the effective ceiling: explicit argument, else the
// environment override, else the ledger default.
func (l *Ledger) resolveRetention(explicit *int) int {
	if explicit != nil {
		return clampRetention(*explicit)
	}
	if ceiling, ok := retentionFromEnv(); ok {
		return ceiling
	}
	return clampRetention(l.defaultRetention)
}

// normalizeMetadata round-trips metadata through JSON so the map hashed and
// persisted at append time decodes to the exact same bytes on every later
// read. Values that only exist on the Go side (an int64 above 2^53, a custom
// type with its own MarshalJSON) would otherwise re-marshal differently after
// decoding and permanently fail chain verification.
func normalizeMetadata(metadata map[string]any) (map[string]any, error) {
	if len(metadata) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("audit: serialize metadata: %w", err)
	}
	normalized := map[string]any{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("audit: normalize metadata: %w", err)
	}
	return normalized, nil
}

// Ledger reads, verifies, appends, trims, filters, and paginates a space's
// hash-chained event log over an abstract storage operator.
type Ledger struct {
	op               storage.Operator
	defaultRetention int
	metrics          *Metrics
}

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	// DefaultRetention is the ceiling used when neither the call nor the
	// environment provides one. Zero means DefaultRetention (5000).
	DefaultRetention int

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// NewLedger creates a ledger engine over the given storage operator.
func NewLedger(op storage.Operator, cfg LedgerConfig) *Ledger {
	retention := cfg.DefaultRetention
	if retention == 0 {
		retention = DefaultRetention
	}
	return &Ledger{
		op:               op,
		defaultRetention: retention,
		metrics:          cfg.Metrics,
	}
}

// readEvents loads and parses the ledger file. An absent file is an empty
// ledger; any line that does not parse as a JSON object fails with
// ErrMalformedLog — ledgers are never silently truncated.
func (l *Ledger) readEvents(ctx context.Context, spaceID string) ([]*Event, error) {
	path := eventsPath(spaceID)
	exists, err := l.op.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("audit: check ledger for %s: %w", spaceID, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := l.op.Read(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read ledger for %s: %w", spaceID, err)
	}

	var events []*Event
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "{") {
			return nil, fmt.Errorf("%w (space %s)", ErrMalformedLog, spaceID)
		}
		event := &Event{}
		if err := json.Unmarshal([]byte(trimmed), event); err != nil {
			return nil, fmt.Errorf("%w (space %s)", ErrMalformedLog, spaceID)
		}
		events = append(events, event)
	}
	return events, nil
}

// writeEvents persists the full sequence as a single atomic write.
// Trailing newline iff non-empty.
func (l *Ledger) writeEvents(ctx context.Context, spaceID string, events []*Event) error {
	if err := l.op.CreateDir(ctx, auditDirPath(spaceID)); err != nil {
		return fmt.Errorf("audit: create dir for %s: %w", spaceID, err)
	}

	var buf strings.Builder
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("audit: serialize event for %s: %w", spaceID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := l.op.Write(ctx, eventsPath(spaceID), []byte(buf.String())); err != nil {
		return fmt.Errorf("audit: write ledger for %s: %w", spaceID, err)
	}
	return nil
}

// verify wraps verifyChain with metric accounting.
func (l *Ledger) verify(events []*Event) error {
	err := verifyChain(events)
	if l.metrics != nil {
		l.metrics.ObserveVerification(err == nil)
	}
	return err
}

// Append validates, verifies, appends, trims, and persists one event under
// the space lock, then returns the event in its final (possibly rehashed)
// form. retentionLimit overrides the retention ceiling for this call; nil
// falls back to the environment, then the ledger default. The ceiling is
// always clamped to [MinRetention, MaxRetention].
func (l *Ledger) Append(ctx context.Context, spaceID string, in EventInput, retentionLimit *int) (*Event, error) {
	safeSpaceID, err := ValidateSpaceID(spaceID)
	if err != nil {
		return nil, err
	}

	action := strings.TrimSpace(in.Action)
	if action == "" {
		return nil, ErrEmptyAction
	}
	actor := strings.TrimSpace(in.ActorUserID)
	if actor == "" {
		return nil, ErrEmptyActor
	}

	ctx, span := tracer.Start(ctx, "audit.append",
		trace.WithAttributes(attribute.String("space.id", safeSpaceID)))
	defer span.End()

	lock := spaceLocks.acquire(safeSpaceID)
	lock.Lock()
	defer lock.Unlock()

	events, err := l.readEvents(ctx, safeSpaceID)
	if err != nil {
		return nil, err
	}
	if err := l.verify(events); err != nil {
		return nil, err
	}

	prevHash := RootHash
	if len(events) > 0 {
		if last := events[len(events)-1].EventHash; last != "" {
			prevHash = last
		}
	}

	metadata, err := normalizeMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	event := &Event{
		ID:            newEventID(),
		Timestamp:     nowISO(),
		SpaceID:       safeSpaceID,
		Action:        action,
		ActorUserID:   actor,
		Outcome:       normalizeOutcome(in.Outcome),
		TargetType:    in.TargetType,
		TargetID:      in.TargetID,
		RequestMethod: in.RequestMethod,
		RequestPath:   in.RequestPath,
		RequestID:     in.RequestID,
		Metadata:      metadata,
		PrevHash:      prevHash,
	}

	hash, err := eventHash(event, prevHash)
	if err != nil {
		return nil, err
	}
	event.EventHash = hash
	events = append(events, event)

	retention := l.resolveRetention(retentionLimit)
	if len(events) > retention {
		dropped := len(events) - retention
		events = events[dropped:]
		if err := rehashChain(events); err != nil {
			return nil, err
		}
		// The appended event survives trimming by construction (it is the
		// newest), but its hashes changed with the re-rooted chain.
		event = events[len(events)-1]
		if l.metrics != nil {
			l.metrics.ObserveTrim(dropped)
		}
	}

	if err := l.writeEvents(ctx, safeSpaceID, events); err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.ObserveAppend(len(events))
	}
	return event, nil
}

// List reads and verifies the space's ledger under its lock, then filters,
// sorts newest-first, and paginates. Filters match exactly after trimming;
// outcome is additionally lowercased. Limit is clamped to [1, MaxListLimit]
// with DefaultListLimit when unset; offset is clamped non-negative.
func (l *Ledger) List(ctx context.Context, spaceID string, opts ListOptions) (*Page, error) {
	safeSpaceID, err := ValidateSpaceID(spaceID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(attribute.String("space.id", safeSpaceID)))
	defer span.End()

	lock := spaceLocks.acquire(safeSpaceID)
	lock.Lock()
	events, err := l.readEvents(ctx, safeSpaceID)
	if err == nil {
		err = l.verify(events)
	}
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	filtered := filterEvents(events, opts.Action, opts.ActorUserID, opts.Outcome)
	sortNewestFirst(filtered)

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	total := len(filtered)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &Page{
		Items:  filtered[start:end],
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}, nil
}

// filterEvents applies exact-match filters. Blank filters are ignored.
func filterEvents(events []*Event, action, actor, outcome string) []*Event {
	action = strings.TrimSpace(action)
	actor = strings.TrimSpace(actor)
	outcome = normalizeLower(outcome)

	filtered := make([]*Event, 0, len(events))
	for _, event := range events {
		if action != "" && event.Action != action {
			continue
		}
		if actor != "" && event.ActorUserID != actor {
			continue
		}
		if outcome != "" && event.Outcome != outcome {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered
}

// sortNewestFirst orders events by timestamp descending. Lexicographic
// comparison is valid because timestamps are fixed-width ISO-8601.
func sortNewestFirst(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
}

// Verify reads the space's ledger and checks chain integrity without
// mutating anything. Exposed for diagnostics and tests.
func (l *Ledger) Verify(ctx context.Context, spaceID string) error {
	safeSpaceID, err := ValidateSpaceID(spaceID)
	if err != nil {
		return err
	}
	lock := spaceLocks.acquire(safeSpaceID)
	lock.Lock()
	defer lock.Unlock()
	events, err := l.readEvents(ctx, safeSpaceID)
	if err != nil {
		return err
	}
	return l.verify(events)
}
