package sdk

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const eventsEndpoint = "/events"

func (sdk *flSDK) Watch(ctx context.Context, fn func(frame []byte) error) error {
	url := "ws" + strings.TrimPrefix(sdk.coordinatorURL, "http") + eventsEndpoint

	dialer := *websocket.DefaultDialer
	if t, ok := sdk.client.Transport.(*http.Transport); ok {
		dialer.TLSClientConfig = t.TLSClientConfig
	}
	header := http.Header{}
	if sdk.token != "" {
		header.Set("Authorization", "Bearer "+sdk.token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return &Error{StatusCode: resp.StatusCode}
		}

		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
