package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ugoite/ugoite/internal/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *storage.Memory) {
	t.Helper()
	op := storage.NewMemory()
	return NewLedger(op, LedgerConfig{}), op
}

func mustAppend(t *testing.T, l *Ledger, spaceID string, in EventInput) *Event {
	t.Helper()
	event, err := l.Append(context.Background(), spaceID, in, nil)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return event
}

func TestAppend_BuildsVerifiableChain(t *testing.T) {
	l, op := newTestLedger(t)
	ctx := context.Background()

	var last *Event
	for i := 0; i < 4; i++ {
		last = mustAppend(t, l, "team-alpha", EventInput{
			Action:      fmt.Sprintf("space.op%d", i),
			ActorUserID: "user-1",
		})
	}

	if !strings.HasPrefix(last.ID, "audit-") {
		t.Errorf("id = %q, want audit- prefix", last.ID)
	}
	if last.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want success", last.Outcome)
	}
	if last.Metadata == nil {
		t.Error("metadata should default to an empty map")
	}
	if err := l.Verify(ctx, "team-alpha"); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	data, err := op.Read(ctx, "spaces/team-alpha/audit/events.jsonl")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("ledger file must end with a newline")
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("persisted lines = %d, want 4", len(lines))
	}

	first := &Event{}
	if err := json.Unmarshal([]byte(lines[0]), first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first.PrevHash != RootHash {
		t.Errorf("first prev_hash = %q, want %q", first.PrevHash, RootHash)
	}
}

func TestAppend_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		spaceID string
		input   EventInput
		wantErr error
	}{
		{
			name:    "empty space id",
			spaceID: "  ",
			input:   EventInput{Action: "a", ActorUserID: "u"},
			wantErr: ErrInvalidSpaceID,
		},
		{
			name:    "traversal in space id",
			spaceID: "../etc",
			input:   EventInput{Action: "a", ActorUserID: "u"},
			wantErr: ErrInvalidSpaceID,
		},
		{
			name:    "leading dot",
			spaceID: ".hidden",
			input:   EventInput{Action: "a", ActorUserID: "u"},
			wantErr: ErrInvalidSpaceID,
		},
		{
			name:    "blank action",
			spaceID: "team-alpha",
			input:   EventInput{Action: "   ", ActorUserID: "u"},
			wantErr: ErrEmptyAction,
		},
		{
			name:    "blank actor",
			spaceID: "team-alpha",
			input:   EventInput{Action: "a", ActorUserID: ""},
			wantErr: ErrEmptyActor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Append(ctx, tt.spaceID, tt.input, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAppend_OutcomeCoercion(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := []struct {
		in   string
		want string
	}{
		{"success", OutcomeSuccess},
		{"DENY", OutcomeDeny},
		{" error ", OutcomeError},
		{"", OutcomeSuccess},
		{"whatever", OutcomeSuccess},
	}
	for _, tt := range tests {
		event := mustAppend(t, l, "team-alpha", EventInput{
			Action:      "space.read",
			ActorUserID: "user-1",
			Outcome:     tt.in,
		})
		if event.Outcome != tt.want {
			t.Errorf("outcome %q coerced to %q, want %q", tt.in, event.Outcome, tt.want)
		}
	}
}

func TestAppend_RetentionTrimsAndRehashes(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	limit := MinRetention
	for i := 0; i < MinRetention+7; i++ {
		if _, err := l.Append(ctx, "team-alpha", EventInput{
			Action:      fmt.Sprintf("space.op%d", i),
			ActorUserID: "user-1",
		}, &limit); err != nil {
			t.Fatalf("Append() #%d error = %v", i, err)
		}
	}

	// Inspect the persisted file directly; append order is authoritative there.
	persisted, err := l.readEvents(ctx, "team-alpha")
	if err != nil {
		t.Fatalf("readEvents() error = %v", err)
	}
	if len(persisted) != MinRetention {
		t.Fatalf("events after trim = %d, want %d", len(persisted), MinRetention)
	}
	oldest := persisted[0]
	if oldest.PrevHash != RootHash {
		t.Errorf("oldest prev_hash = %q, want %q", oldest.PrevHash, RootHash)
	}
	if oldest.Action != "space.op7" {
		t.Errorf("oldest action = %q, want space.op7", oldest.Action)
	}
	if err := l.Verify(ctx, "team-alpha"); err != nil {
		t.Errorf("Verify() after trim error = %v", err)
	}
}

func TestAppend_RetentionClamped(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tiny := 1
	for i := 0; i < MinRetention+3; i++ {
		if _, err := l.Append(ctx, "team-alpha", EventInput{
			Action:      "space.read",
			ActorUserID: "user-1",
		}, &tiny); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	page, err := l.List(ctx, "team-alpha", ListOptions{Limit: MaxListLimit})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	// A requested limit of 1 is clamped up to the retention floor.
	if page.Total != MinRetention {
		t.Errorf("total = %d, want %d", page.Total, MinRetention)
	}
}

func TestResolveRetention_EnvOverride(t *testing.T) {
	l, _ := newTestLedger(t)

	t.Setenv(EnvRetentionMaxEvents, "200")
	if got := l.resolveRetention(nil); got != 200 {
		t.Errorf("resolveRetention(nil) = %d, want 200", got)
	}

	explicit := 300
	if got := l.resolveRetention(&explicit); got != 300 {
		t.Errorf("explicit should win over env, got %d", got)
	}

	t.Setenv(EnvRetentionMaxEvents, "999999")
	if got := l.resolveRetention(nil); got != MaxRetention {
		t.Errorf("resolveRetention() = %d, want clamp to %d", got, MaxRetention)
	}

	t.Setenv(EnvRetentionMaxEvents, "not-a-number")
	if got := l.resolveRetention(nil); got != DefaultRetention {
		t.Errorf("resolveRetention() = %d, want default %d", got, DefaultRetention)
	}
}

func TestAppend_MetadataSurvivesReload(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// 2^53+1 is representable as int64 but not as float64; without
	// normalization at append time, re-reading the ledger decodes it to
	// 9007199254740992 and every later verification fails.
	event := mustAppend(t, l, "team-alpha", EventInput{
		Action:      "space.read",
		ActorUserID: "user-1",
		Metadata: map[string]any{
			"n":      int64(9007199254740993),
			"nested": map[string]any{"ids": []any{int64(1), "x"}},
		},
	})

	if err := l.Verify(ctx, "team-alpha"); err != nil {
		t.Fatalf("Verify() after append error = %v", err)
	}

	// A second append re-reads and re-verifies the persisted chain.
	mustAppend(t, l, "team-alpha", EventInput{
		Action:      "space.write",
		ActorUserID: "user-1",
	})

	persisted, err := l.readEvents(ctx, "team-alpha")
	if err != nil {
		t.Fatalf("readEvents() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted %d events, want 2", len(persisted))
	}
	if persisted[0].EventHash != event.EventHash {
		t.Errorf("persisted hash = %q, want %q", persisted[0].EventHash, event.EventHash)
	}
}

func TestAppend_NilMetadataBecomesEmptyObject(t *testing.T) {
	l, _ := newTestLedger(t)

	event := mustAppend(t, l, "team-alpha", EventInput{
		Action:      "space.read",
		ActorUserID: "user-1",
	})
	if event.Metadata == nil || len(event.Metadata) != 0 {
		t.Errorf("metadata = %v, want empty object", event.Metadata)
	}
}

func TestList_FiltersAndPagination(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		actor := "user-a"
		outcome := OutcomeSuccess
		if i%2 == 1 {
			actor = "user-b"
			outcome = OutcomeDeny
		}
		mustAppend(t, l, "team-alpha", EventInput{
			Action:      "space.read",
			ActorUserID: actor,
			Outcome:     outcome,
		})
	}
	mustAppend(t, l, "team-alpha", EventInput{
		Action:      "space.write",
		ActorUserID: "user-a",
	})

	tests := []struct {
		name      string
		opts      ListOptions
		wantTotal int
		wantItems int
	}{
		{name: "no filter", opts: ListOptions{}, wantTotal: 11, wantItems: 11},
		{name: "by action", opts: ListOptions{Action: "space.write"}, wantTotal: 1, wantItems: 1},
		{name: "by actor", opts: ListOptions{ActorUserID: "user-b"}, wantTotal: 5, wantItems: 5},
		{name: "by outcome case insensitive", opts: ListOptions{Outcome: "DENY"}, wantTotal: 5, wantItems: 5},
		{name: "combined", opts: ListOptions{Action: "space.read", ActorUserID: "user-a"}, wantTotal: 5, wantItems: 5},
		{name: "paged", opts: ListOptions{Limit: 4, Offset: 8}, wantTotal: 11, wantItems: 3},
		{name: "offset past end", opts: ListOptions{Offset: 100}, wantTotal: 11, wantItems: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := l.List(ctx, "team-alpha", tt.opts)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", page.Total, tt.wantTotal)
			}
			if len(page.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(page.Items), tt.wantItems)
			}
		})
	}
}

func TestList_NewestFirst(t *testing.T) {
	l, _ := newTestLedger(t)

	for i := 0; i < 5; i++ {
		mustAppend(t, l, "team-alpha", EventInput{
			Action:      "space.read",
			ActorUserID: "user-1",
		})
	}

	page, err := l.List(context.Background(), "team-alpha", ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for i := 1; i < len(page.Items); i++ {
		if page.Items[i-1].Timestamp < page.Items[i].Timestamp {
			t.Fatalf("items not sorted newest-first at index %d", i)
		}
	}
}

func TestList_LimitClamped(t *testing.T) {
	l, _ := newTestLedger(t)
	mustAppend(t, l, "team-alpha", EventInput{Action: "a", ActorUserID: "u"})

	page, err := l.List(context.Background(), "team-alpha", ListOptions{Limit: 9000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != MaxListLimit {
		t.Errorf("limit = %d, want clamp to %d", page.Limit, MaxListLimit)
	}

	page, err = l.List(context.Background(), "team-alpha", ListOptions{Limit: -3, Offset: -10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != 1 || page.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want 1/0", page.Limit, page.Offset)
	}
}

func TestList_EmptyLedger(t *testing.T) {
	l, _ := newTestLedger(t)

	page, err := l.List(context.Background(), "never-written", ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 0 || len(page.Items) != 0 {
		t.Errorf("empty ledger returned total=%d items=%d", page.Total, len(page.Items))
	}
}

func TestAppend_RejectsTamperedLedger(t *testing.T) {
	l, op := newTestLedger(t)
	ctx := context.Background()

	mustAppend(t, l, "team-alpha", EventInput{Action: "a", ActorUserID: "u"})
	mustAppend(t, l, "team-alpha", EventInput{Action: "b", ActorUserID: "u"})

	path := "spaces/team-alpha/audit/events.jsonl"
	data, err := op.Read(ctx, path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	tampered := strings.Replace(string(data), `"action":"a"`, `"action":"z"`, 1)
	if tampered == string(data) {
		t.Fatal("tampering had no effect")
	}
	if err := op.Write(ctx, path, []byte(tampered)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, err = l.Append(ctx, "team-alpha", EventInput{Action: "c", ActorUserID: "u"}, nil)
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Errorf("Append() error = %v, want ErrIntegrityViolation", err)
	}
}

func TestReadEvents_MalformedLine(t *testing.T) {
	l, op := newTestLedger(t)
	ctx := context.Background()

	mustAppend(t, l, "team-alpha", EventInput{Action: "a", ActorUserID: "u"})

	path := "spaces/team-alpha/audit/events.jsonl"
	data, _ := op.Read(ctx, path)
	if err := op.Write(ctx, path, append(data, []byte("not json\n")...)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, err := l.List(ctx, "team-alpha", ListOptions{})
	if !errors.Is(err, ErrMalformedLog) {
		t.Errorf("List() error = %v, want ErrMalformedLog", err)
	}
}

func TestReadEvents_SkipsBlankLines(t *testing.T) {
	l, op := newTestLedger(t)
	ctx := context.Background()

	mustAppend(t, l, "team-alpha", EventInput{Action: "a", ActorUserID: "u"})

	path := "spaces/team-alpha/audit/events.jsonl"
	data, _ := op.Read(ctx, path)
	padded := "\n" + string(data) + "\n\n"
	if err := op.Write(ctx, path, []byte(padded)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	page, err := l.List(ctx, "team-alpha", ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 {
		t.Errorf("total = %d, want 1", page.Total)
	}
}

func TestAppend_ConcurrentSameSpace(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := l.Append(ctx, "team-alpha", EventInput{
					Action:      "space.read",
					ActorUserID: fmt.Sprintf("user-%d", w),
				}, nil)
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Append() error = %v", err)
		}
	}

	page, err := l.List(ctx, "team-alpha", ListOptions{Limit: MaxListLimit})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != workers*perWorker {
		t.Errorf("total = %d, want %d", page.Total, workers*perWorker)
	}
	if err := l.Verify(ctx, "team-alpha"); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestLedgers_SpacesAreIsolated(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	mustAppend(t, l, "team-alpha", EventInput{Action: "a", ActorUserID: "u"})
	mustAppend(t, l, "team-beta", EventInput{Action: "b", ActorUserID: "u"})

	alpha, err := l.List(ctx, "team-alpha", ListOptions{})
	if err != nil {
		t.Fatalf("List(alpha) error = %v", err)
	}
	beta, err := l.List(ctx, "team-beta", ListOptions{})
	if err != nil {
		t.Fatalf("List(beta) error = %v", err)
	}
	if alpha.Total != 1 || beta.Total != 1 {
		t.Errorf("totals = %d/%d, want 1/1", alpha.Total, beta.Total)
	}
	if alpha.Items[0].Action != "a" || beta.Items[0].Action != "b" {
		t.Error("events leaked across spaces")
	}
}
