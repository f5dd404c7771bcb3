package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/api"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second

	snapshotType = "snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// snapshotMessage is the first frame of every stream so late observers can
// render state before live events arrive.
type snapshotMessage struct {
	Type string          `json:"type"`
	Data events.Snapshot `json:"data"`
}

func streamEvents(svc coordinator.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub, err := svc.Subscribe(ctx)
		if err != nil {
			api.EncodeError(ctx, err, w)

			return
		}
		defer sub.Close()

		snap, err := svc.Snapshot(ctx)
		if err != nil {
			api.EncodeError(ctx, err, w)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade event stream", slog.Any("error", err))

			return
		}
		defer conn.Close()

		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						logger.Debug("event stream closed", slog.Any("error", err))
					}

					return
				}
			}
		}()

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snapshotMessage{Type: snapshotType, Data: snap}); err != nil {
			logger.Debug("failed to send snapshot", slog.Any("error", err))

			return
		}

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case e, ok := <-sub.Events():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "coordinator shutting down"),
						time.Now().Add(writeWait))

					return
				}
				data, err := events.Encode(e)
				if err != nil {
					logger.Warn("failed to encode event", slog.String("type", string(e.Type)), slog.Any("error", err))

					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					logger.Debug("failed to send event", slog.Any("error", err))

					return
				}
			}
		}
	}
}
