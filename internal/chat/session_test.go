package chat

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/optimize"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	return NewSessionStore(time.Hour, 10, log.NewNop())
}

func TestSessionStore_GetOrCreate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	sess, err := s.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID == "" {
		t.Error("empty id should be generated")
	}

	again, err := s.GetOrCreate(sess.ID)
	if err != nil {
		t.Fatalf("GetOrCreate existing: %v", err)
	}
	if again.ID != sess.ID {
		t.Errorf("got new session %q, want %q", again.ID, sess.ID)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSessionStore_AppendMessages(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	sess, _ := s.GetOrCreate("conv-1")

	err := s.AppendMessages(sess.ID,
		Message{Role: "user", Content: "hello"},
		Message{Role: "assistant", Content: "hi there"})
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, ok := s.Get(sess.ID)
	if !ok {
		t.Fatal("session disappeared")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[1].Role != "assistant" {
		t.Errorf("role = %q", got.Messages[1].Role)
	}

	if err := s.AppendMessages("missing", Message{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("append to missing session = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_MergeContext(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	sess, _ := s.GetOrCreate("conv-1")

	_, err := s.MergeContext(sess.ID, SessionContext{BuildingID: "0772100000000001", CurrentStage: "inference"})
	if err != nil {
		t.Fatalf("MergeContext: %v", err)
	}

	// Second merge overlays only the provided fields.
	merged, err := s.MergeContext(sess.ID, SessionContext{CurrentStage: "optimization"})
	if err != nil {
		t.Fatalf("MergeContext: %v", err)
	}
	if merged.BuildingID != "0772100000000001" {
		t.Errorf("BuildingID lost in merge: %q", merged.BuildingID)
	}
	if merged.CurrentStage != "optimization" {
		t.Errorf("CurrentStage = %q", merged.CurrentStage)
	}
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	sess, err := s.GetOrCreate("shared")
	if err != nil {
		t.Fatal(err)
	}

	const (
		writers         = 8
		turnsPerWriter  = 50
		messagesPerTurn = 2
	)

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range turnsPerWriter {
				if err := s.AppendMessages(sess.ID,
					Message{Role: "user", Content: "q"},
					Message{Role: "assistant", Content: "a"}); err != nil {
					t.Errorf("AppendMessages: %v", err)
					return
				}
				if _, err := s.MergeContext(sess.ID, SessionContext{
					CurrentStage: "optimization",
					BuildingID:   fmt.Sprintf("0772%02d%010d", w, i),
				}); err != nil {
					t.Errorf("MergeContext: %v", err)
					return
				}
				// Readers see a consistent copy while writers append.
				got, ok := s.Get(sess.ID)
				if !ok {
					t.Error("session disappeared mid-flight")
					return
				}
				if len(got.Messages)%messagesPerTurn != 0 {
					t.Errorf("read tore a turn: %d messages", len(got.Messages))
					return
				}
			}
		}()
	}
	wg.Wait()

	got, ok := s.Get(sess.ID)
	if !ok {
		t.Fatal("session disappeared")
	}
	if want := writers * turnsPerWriter * messagesPerTurn; len(got.Messages) != want {
		t.Errorf("got %d messages, want %d", len(got.Messages), want)
	}
	if got.Context.CurrentStage != "optimization" {
		t.Errorf("CurrentStage = %q", got.Context.CurrentStage)
	}
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	sess, _ := s.GetOrCreate("copy-check")
	_ = s.AppendMessages(sess.ID, Message{Role: "user", Content: "original"})

	got, _ := s.Get(sess.ID)
	got.Messages[0].Content = "tampered"
	got.Context.BuildingID = "tampered"

	again, _ := s.Get(sess.ID)
	if again.Messages[0].Content != "original" {
		t.Error("mutating a returned session leaked into the store")
	}
	if again.Context.BuildingID != "" {
		t.Error("mutating a returned context leaked into the store")
	}
}

func TestSessionContext_Merge(t *testing.T) {
	t.Parallel()

	base := SessionContext{
		CurrentStage:    "inference",
		BuildingID:      "b1",
		ParetoSolutions: []optimize.ParetoSolution{{ID: "opt_0"}},
	}
	update := SessionContext{
		CurrentStage: "mcdm",
		MCDMWeights:  &optimize.Weights{Energy: 1},
	}

	got := base.Merge(update)
	if got.CurrentStage != "mcdm" {
		t.Errorf("CurrentStage = %q", got.CurrentStage)
	}
	if got.BuildingID != "b1" {
		t.Errorf("BuildingID = %q, zero fields must not overwrite", got.BuildingID)
	}
	if len(got.ParetoSolutions) != 1 {
		t.Error("solutions lost in merge")
	}
	if got.MCDMWeights == nil || got.MCDMWeights.Energy != 1 {
		t.Error("weights not merged")
	}
	// Merge returns a copy; the original is untouched.
	if base.CurrentStage != "inference" {
		t.Error("merge mutated the receiver")
	}
}

func TestSessionStore_Delete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	sess, _ := s.GetOrCreate("gone")
	s.Delete(sess.ID)

	if _, ok := s.Get(sess.ID); ok {
		t.Error("deleted session still present")
	}
	s.Delete("never-existed") // no-op
}

func TestSessionStore_CapacityLimit(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(time.Hour, 2, log.NewNop())
	if _, err := s.GetOrCreate("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOrCreate("b"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetOrCreate("c"); !errors.Is(err, ErrSessionLimit) {
		t.Errorf("create at capacity = %v, want ErrSessionLimit", err)
	}

	// An existing session is still retrievable at capacity.
	if _, err := s.GetOrCreate("a"); err != nil {
		t.Errorf("existing session at capacity: %v", err)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(20*time.Millisecond, 10, log.NewNop())
	sess, _ := s.GetOrCreate("short-lived")

	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Get(sess.ID); ok {
		t.Error("session should have expired")
	}
}

func TestSessionStore_Stats(t *testing.T) {
	t.Parallel()

	s := NewSessionStore(time.Hour, 5, log.NewNop())
	_, _ = s.GetOrCreate("x")

	stats := s.Stats()
	if stats["active_sessions"] != 1 {
		t.Errorf("active_sessions = %v", stats["active_sessions"])
	}
	if stats["capacity"] != 5 {
		t.Errorf("capacity = %v", stats["capacity"])
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	req := Request{Messages: []Message{{Role: "user", Content: "hi"}}}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if req.Mode != ModeGeneral {
		t.Errorf("Mode default = %q", req.Mode)
	}
	if req.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens default = %d", req.MaxTokens)
	}

	req = Request{Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 9999}
	_ = req.Validate()
	if req.MaxTokens != MaxMaxTokens {
		t.Errorf("MaxTokens = %d, want clamped to %d", req.MaxTokens, MaxMaxTokens)
	}

	req = Request{Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1}
	_ = req.Validate()
	if req.MaxTokens != MinMaxTokens {
		t.Errorf("MaxTokens = %d, want raised to %d", req.MaxTokens, MinMaxTokens)
	}

	if err := (&Request{}).Validate(); !errors.Is(err, ErrNoMessages) {
		t.Errorf("empty request = %v, want ErrNoMessages", err)
	}
	bad := Request{Messages: []Message{{Role: "tool", Content: "x"}}}
	if err := bad.Validate(); !errors.Is(err, ErrBadRole) {
		t.Errorf("bad role = %v, want ErrBadRole", err)
	}
	bad = Request{Messages: []Message{{Role: "user", Content: "x"}}, Mode: "verbose"}
	if err := bad.Validate(); !errors.Is(err, ErrBadMode) {
		t.Errorf("bad mode = %v, want ErrBadMode", err)
	}
}
