package signaling

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// fakePresence maps userID to live connection count.
type fakePresence map[string]int

func (f fakePresence) GetUserConnectionCount(userID string) (int, error) {
	return f[userID], nil
}

type sentEvent struct {
	UserID  string
	Event   string
	Payload any
}

// fakeNotifier records every delivery attempt.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeNotifier) SendToUser(userID, event string, payload any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{UserID: userID, Event: event, Payload: payload})
	return 1
}

func (f *fakeNotifier) events() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEvent, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestCoordinator(presence fakePresence) (*Coordinator, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return NewCoordinator(newTestLogger(), presence, notifier, nil), notifier
}

func TestInitiateCalleeOffline(t *testing.T) {
	c, notifier := newTestCoordinator(fakePresence{"alice": 1})

	_, err := c.Initiate("alice", "bob", "conv-1", "video")
	if !errors.Is(err, ErrCalleeOffline) {
		t.Fatalf("Expected ErrCalleeOffline, got %v", err)
	}
	if len(notifier.events()) != 0 {
		t.Error("No events should be delivered for an offline callee")
	}

	// No session was created, so accepting a fabricated id fails UnknownCall.
	if err := c.Accept(uuid.New(), "bob"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("Expected ErrUnknownCall, got %v", err)
	}
}

func TestCallHappyPath(t *testing.T) {
	c, notifier := newTestCoordinator(fakePresence{"alice": 1, "bob": 2})

	callID, err := c.Initiate("alice", "bob", "conv-1", "audio")
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}

	events := notifier.events()
	if len(events) != 1 || events[0].UserID != "bob" || events[0].Event != EventIncomingCall {
		t.Fatalf("Expected incoming_call to bob, got %+v", events)
	}
	payload, ok := events[0].Payload.(IncomingCallPayload)
	if !ok || payload.FromUserID != "alice" || payload.CallType != "audio" {
		t.Fatalf("Unexpected incoming_call payload: %+v", events[0].Payload)
	}

	if err := c.Accept(callID, "bob"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	events = notifier.events()
	if last := events[len(events)-1]; last.UserID != "alice" || last.Event != EventCallAccepted {
		t.Fatalf("Expected call_accepted to alice, got %+v", last)
	}

	if err := c.End(callID, "alice"); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	events = notifier.events()
	if last := events[len(events)-1]; last.UserID != "bob" || last.Event != EventCallEnded {
		t.Fatalf("Expected call_ended to bob, got %+v", last)
	}

	// The session is terminal and discarded; a second end fails UnknownCall.
	if err := c.End(callID, "alice"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("Expected ErrUnknownCall after terminal state, got %v", err)
	}
}

func TestAcceptOnlyByCallee(t *testing.T) {
	c, _ := newTestCoordinator(fakePresence{"bob": 1})

	callID, err := c.Initiate("alice", "bob", "conv-1", "video")
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}

	if err := c.Accept(callID, "mallory"); !errors.Is(err, ErrNotCallee) {
		t.Errorf("Expected ErrNotCallee, got %v", err)
	}
	// The failed accept must not have mutated state: the callee can still accept.
	if err := c.Accept(callID, "bob"); err != nil {
		t.Errorf("Callee accept after rejected impostor failed: %v", err)
	}
}

func TestRejectDiscardsSession(t *testing.T) {
	c, notifier := newTestCoordinator(fakePresence{"bob": 1})

	callID, _ := c.Initiate("alice", "bob", "conv-1", "video")
	if err := c.Reject(callID, "bob"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	events := notifier.events()
	if last := events[len(events)-1]; last.UserID != "alice" || last.Event != EventCallRejected {
		t.Fatalf("Expected call_rejected to alice, got %+v", last)
	}

	if _, ok := c.ActiveSession(callID); ok {
		t.Error("Rejected session should have been discarded")
	}
	if err := c.Accept(callID, "bob"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("Expected ErrUnknownCall on rejected call, got %v", err)
	}
}

func TestEndWhileRinging(t *testing.T) {
	c, notifier := newTestCoordinator(fakePresence{"bob": 1})

	// Caller hangs up before the callee answers.
	callID, _ := c.Initiate("alice", "bob", "conv-1", "audio")
	if err := c.End(callID, "alice"); err != nil {
		t.Fatalf("End while ringing failed: %v", err)
	}
	events := notifier.events()
	if last := events[len(events)-1]; last.UserID != "bob" || last.Event != EventCallEnded {
		t.Fatalf("Expected call_ended to bob, got %+v", last)
	}
}

func TestEndByNonParticipant(t *testing.T) {
	c, _ := newTestCoordinator(fakePresence{"bob": 1})

	callID, _ := c.Initiate("alice", "bob", "conv-1", "audio")
	if err := c.End(callID, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	// Call is still live for the real participants.
	if _, ok := c.ActiveSession(callID); !ok {
		t.Error("Session should survive a non-participant end attempt")
	}
}
