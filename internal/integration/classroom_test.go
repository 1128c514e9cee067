package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classhub/internal/config"
	"classhub/pkg/types"
)

func joinFocus(c *TestClient, sessionID, studentID string) types.Envelope {
	c.Send(types.MessageTypeJoinSession, types.Payload{
		"sessionId":   sessionID,
		"sessionType": "focus",
		"studentId":   studentID,
	})
	return c.Expect(types.MessageTypeSessionJoined)
}

func TestClassroom_JoinBroadcastAndDisconnect(t *testing.T) {
	application := StartTestApplication(t, nil)
	alice := Dial(t, application)
	bob := Dial(t, application)

	joined := joinFocus(alice, "room-1", "alice")
	if joined.Data["participants"] != float64(1) {
		t.Errorf("Expected 1 participant, got %v", joined.Data["participants"])
	}
	joinFocus(bob, "room-1", "bob")

	notice := alice.Expect(types.MessageTypeParticipantJoined)
	if notice.Data["clientId"] != bob.ID || notice.Data["studentId"] != "bob" {
		t.Errorf("Unexpected participant_joined %+v", notice.Data)
	}

	alice.Send(types.MessageTypeFocusEvent, types.Payload{"focusScore": 0.8, "event": "steady"})
	update := bob.Expect(types.MessageTypeFocusMetricsUpdate)
	if update.Data["clientId"] != alice.ID {
		t.Errorf("Expected focus update from alice, got %+v", update.Data)
	}

	alice.Close()
	gone := bob.Expect(types.MessageTypeParticipantDisconnected)
	if gone.Data["clientId"] != alice.ID {
		t.Errorf("Expected participant_disconnected for %s, got %+v", alice.ID, gone.Data)
	}
}

func TestClassroom_ErrorsAndPing(t *testing.T) {
	application := StartTestApplication(t, nil)
	c := Dial(t, application)

	c.SendRaw("not json")
	if env := c.Expect(types.MessageTypeError); env.Data["message"] != "Invalid message format" {
		t.Errorf("Unexpected error frame %+v", env.Data)
	}

	c.SendRaw(`{"type":"dance","data":{}}`)
	if env := c.Expect(types.MessageTypeError); env.Data["message"] != "Unknown message type: dance" {
		t.Errorf("Unexpected error frame %+v", env.Data)
	}

	c.Send(types.MessageTypePing, nil)
	pong := c.Expect(types.MessageTypePong)
	if _, err := time.Parse(types.TimestampLayout, pong.Timestamp); err != nil {
		t.Errorf("Bad timestamp %q: %v", pong.Timestamp, err)
	}
	if pong.ClientID != c.ID {
		t.Errorf("Envelope clientId = %s, want %s", pong.ClientID, c.ID)
	}
}

func TestClassroom_HTTPInjectionReachesSession(t *testing.T) {
	application := StartTestApplication(t, nil)
	a := Dial(t, application)
	b := Dial(t, application)
	joinFocus(a, "room-2", "a")
	joinFocus(b, "room-2", "b")

	resp, err := http.Post(
		fmt.Sprintf("http://%s/api/sessions/room-2/interventions", application.Addr()),
		"application/json",
		strings.NewReader(`{"kind":"stretch"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["delivered"] != float64(2) {
		t.Errorf("Expected 2 deliveries, got %v", body["delivered"])
	}

	for _, c := range []*TestClient{a, b} {
		if env := c.Expect(types.MessageTypeInterventionTriggered); env.Data["kind"] != "stretch" {
			t.Errorf("Unexpected intervention %+v", env.Data)
		}
	}
}

func TestClassroom_StatsAndAuditLog(t *testing.T) {
	application := StartTestApplication(t, nil)
	a := Dial(t, application)
	joinFocus(a, "room-3", "a")
	b := Dial(t, application)
	b.Send(types.MessageTypePing, nil)
	b.Expect(types.MessageTypePong)

	stats, err := application.Hub().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalConnections != 2 || stats.ActiveSessions != 1 || stats.ConnectionsByType["focus"] != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	// The audit writer is asynchronous.
	url := fmt.Sprintf("http://%s/api/activity/%s", application.Addr(), a.ID)
	deadline := time.Now().Add(3 * time.Second)
	for {
		events := fetchEvents(t, url)
		if len(events) >= 2 {
			if events[0] != types.ActivityConnected || events[1] != types.ActivityJoined {
				t.Errorf("Unexpected audit trail %v", events)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit events not written, have %v", events)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func fetchEvents(t *testing.T, url string) []string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Events []types.ActivityEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	names := make([]string, len(body.Events))
	for i, e := range body.Events {
		names[i] = e.Event
	}
	return names
}

func TestClassroom_ReaperEvictsIdleConnection(t *testing.T) {
	application := StartTestApplication(t, func(cfg *config.Config) {
		cfg.Hub.ReapInterval = 20 * time.Millisecond
		cfg.Hub.InactivityThreshold = 200 * time.Millisecond
	})
	idle := Dial(t, application)
	active := Dial(t, application)
	joinFocus(idle, "room-4", "idle")
	joinFocus(active, "room-4", "active")

	// Keep one client chatty while the other goes silent.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = active.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","data":{}}`))
			}
		}
	}()

	gone := active.Expect(types.MessageTypeParticipantDisconnected)
	if gone.Data["clientId"] != idle.ID {
		t.Errorf("Expected idle client evicted, got %+v", gone.Data)
	}

	stats, err := application.Hub().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ConnectionsReaped != 1 || stats.TotalConnections != 1 {
		t.Errorf("Unexpected stats after reaping %+v", stats)
	}
}

func TestClassroom_WithoutAuditLog(t *testing.T) {
	application := StartTestApplication(t, func(cfg *config.Config) {
		cfg.Database.Enabled = false
	})
	Dial(t, application)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/activity", application.Addr()))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 with auditing disabled, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
