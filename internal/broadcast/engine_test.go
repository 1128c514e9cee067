package broadcast

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"classhub/internal/registry"
	"classhub/pkg/types"
)

type recordingTransport struct {
	sent []types.Envelope
	err  error
}

func (r *recordingTransport) WriteJSON(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, v.(types.Envelope))
	return nil
}

func (r *recordingTransport) Close() error { return nil }

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func setup(t *testing.T, ids ...string) (*registry.Registry, *Engine, map[string]*recordingTransport) {
	t.Helper()
	reg := registry.New()
	transports := make(map[string]*recordingTransport)
	for _, id := range ids {
		tr := &recordingTransport{}
		transports[id] = tr
		if err := reg.Register(&registry.Connection{ID: id, Transport: tr, ConnectedAt: fixedNow}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := New(reg, WithClock(func() time.Time { return fixedNow }), WithLogger(logger))
	return reg, engine, transports
}

func TestEngine_SendDirectStampsEnvelope(t *testing.T) {
	_, engine, transports := setup(t, "a")

	if !engine.SendDirect("a", types.NewOutbound(types.MessageTypePong, nil)) {
		t.Fatal("SendDirect should succeed")
	}

	sent := transports["a"].sent
	if len(sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sent))
	}
	if sent[0].ClientID != "a" {
		t.Errorf("clientId should be the recipient id, got %q", sent[0].ClientID)
	}
	if sent[0].Timestamp != "2025-01-02T03:04:05.000Z" {
		t.Errorf("Unexpected timestamp %q", sent[0].Timestamp)
	}
	if sent[0].Data == nil {
		t.Error("Data should never be nil on the wire")
	}
}

func TestEngine_SendDirectUnknownID(t *testing.T) {
	_, engine, _ := setup(t)
	if engine.SendDirect("ghost", types.NewOutbound(types.MessageTypePong, nil)) {
		t.Error("SendDirect to an unknown id should be a no-op")
	}
}

func TestEngine_WriteFailureKeepsConnection(t *testing.T) {
	reg, engine, transports := setup(t, "a")
	transports["a"].err = errors.New("broken pipe")

	if engine.SendDirect("a", types.NewOutbound(types.MessageTypePong, nil)) {
		t.Error("SendDirect should report the failure")
	}
	if _, ok := reg.Get("a"); !ok {
		t.Error("A write failure must not unregister the connection")
	}
	if engine.Failures() != 1 {
		t.Errorf("Expected 1 failure, got %d", engine.Failures())
	}
}

func TestEngine_BroadcastSessionExcludes(t *testing.T) {
	reg, engine, transports := setup(t, "a", "b", "c", "outsider")
	for _, id := range []string{"a", "b", "c"} {
		reg.Join("s1", id, types.SessionTypeFocus)
	}

	n := engine.BroadcastSession("s1", types.NewOutbound(types.MessageTypeFocusMetricsUpdate, nil), "a", "c")
	if n != 1 {
		t.Errorf("Expected 1 recipient, got %d", n)
	}
	if len(transports["a"].sent) != 0 || len(transports["c"].sent) != 0 {
		t.Error("Excluded members must not receive the broadcast")
	}
	if len(transports["b"].sent) != 1 {
		t.Error("Member b should receive the broadcast")
	}
	if len(transports["outsider"].sent) != 0 {
		t.Error("Non-members must not receive session broadcasts")
	}
}

func TestEngine_BroadcastContinuesAfterFailure(t *testing.T) {
	reg, engine, transports := setup(t, "a", "b", "c")
	for _, id := range []string{"a", "b", "c"} {
		reg.Join("s1", id, types.SessionTypeGame)
	}
	transports["b"].err = errors.New("buffer full")

	engine.BroadcastSession("s1", types.NewOutbound(types.MessageTypeParticipantJoined, nil))

	if len(transports["a"].sent) != 1 || len(transports["c"].sent) != 1 {
		t.Error("One failing recipient must not block the others")
	}
}

func TestEngine_BroadcastUnknownSession(t *testing.T) {
	_, engine, _ := setup(t, "a")
	if n := engine.BroadcastSession("nope", types.NewOutbound(types.MessageTypeFocusAlert, nil)); n != 0 {
		t.Errorf("Expected 0 recipients, got %d", n)
	}
}

func TestEngine_BroadcastAll(t *testing.T) {
	_, engine, transports := setup(t, "a", "b", "c")

	n := engine.BroadcastAll(types.NewOutbound(types.MessageTypeFocusAlert, types.Payload{"level": "high"}), "b")
	if n != 2 {
		t.Errorf("Expected 2 recipients, got %d", n)
	}
	if len(transports["b"].sent) != 0 {
		t.Error("Excluded connection received a broadcast")
	}
	for _, id := range []string{"a", "c"} {
		sent := transports[id].sent
		if len(sent) != 1 || sent[0].ClientID != id {
			t.Errorf("Connection %s: unexpected deliveries %+v", id, sent)
		}
	}
}
