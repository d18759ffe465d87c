package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"arbitrationd/core/events"
)

type testPayoutQueuedEvent struct {
	payoutID uint64
}

func (e testPayoutQueuedEvent) EventType() string { return "payout_queued" }
func (e testPayoutQueuedEvent) Attributes() map[string]string {
	return map[string]string{"payout_id": "1"}
}

var _ events.Event = testPayoutQueuedEvent{}

func TestMountEvents_RejectsWhenStreamUnconfigured(t *testing.T) {
	handler := mountEvents(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/events/stream", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no stream configured, got %d", rec.Code)
	}
}

func TestMountEvents_ReplaysBacklogThenLivePush(t *testing.T) {
	dir := t.TempDir()
	stream, err := events.NewStream(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer stream.Close()

	stream.Emit(testPayoutQueuedEvent{payoutID: 1})

	srv := httptest.NewServer(mountEvents(stream))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?cursor=0"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial event stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	_, backlogMsg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read backlog envelope: %v", err)
	}
	var backlogEnv events.Envelope
	if err := json.Unmarshal(backlogMsg, &backlogEnv); err != nil {
		t.Fatalf("decode backlog envelope: %v", err)
	}
	if backlogEnv.Seq != 1 || backlogEnv.Type != "payout_queued" {
		t.Fatalf("unexpected backlog envelope: %+v", backlogEnv)
	}

	stream.Emit(testPayoutQueuedEvent{payoutID: 2})
	_, liveMsg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read live envelope: %v", err)
	}
	var liveEnv events.Envelope
	if err := json.Unmarshal(liveMsg, &liveEnv); err != nil {
		t.Fatalf("decode live envelope: %v", err)
	}
	if liveEnv.Seq != 2 {
		t.Fatalf("expected live envelope seq 2, got %d", liveEnv.Seq)
	}
}
