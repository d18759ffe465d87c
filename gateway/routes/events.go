package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"arbitrationd/core/events"
)

const eventStreamWriteTimeout = 10 * time.Second

// mountEvents exposes the durable event log as a websocket stream at
// GET /v1/events/stream?cursor=<seq>: it replays every envelope recorded
// after cursor, then stays open and pushes new ones as they're emitted.
// cursor defaults to 0 (replay the whole log).
func mountEvents(stream *events.Stream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stream == nil {
			http.Error(w, "event stream not configured", http.StatusServiceUnavailable)
			return
		}
		cursor := uint64(0)
		if raw := r.URL.Query().Get("cursor"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid cursor", http.StatusBadRequest)
				return
			}
			cursor = parsed
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "stream closed")

		ctx := r.Context()
		updates, cancel, backlog, err := stream.Subscribe(ctx, cursor)
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer cancel()

		for _, env := range backlog {
			if err := writeEnvelope(ctx, conn, env); err != nil {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEnvelope(ctx, conn, env); err != nil {
					return
				}
			}
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, eventStreamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
