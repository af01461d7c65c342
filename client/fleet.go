package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"fleetglass.app/server"
)

// Fleet fetches the derived fleet once. Admin role required.
func (c *Client) Fleet(ctx context.Context, query string) ([]server.FleetEntry, error) {
	path := "/api/fleet"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out []server.FleetEntry
	if err := c.call(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeFleet opens the live fleet feed. Every delivery on the
// snapshot channel is the full derived fleet. The error channel gets
// at most one terminal error; cancel ctx to dispose the subscription.
func (c *Client) SubscribeFleet(ctx context.Context, query string) (<-chan []server.FleetEntry, <-chan error, error) {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/api/fleet/live"
	if query != "" {
		wsURL += "?q=" + url.QueryEscape(query)
	}

	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, nil, decodeError(resp)
		}
		return nil, nil, &StoreError{Op: "subscribe", Err: err}
	}

	snapshots := make(chan []server.FleetEntry, 4)
	errs := make(chan error, 1)

	// unblock reads when the caller cancels
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(snapshots)
		defer conn.Close()
		for {
			var fleet []server.FleetEntry
			if err := conn.ReadJSON(&fleet); err != nil {
				if ctx.Err() == nil {
					errs <- &StoreError{Op: "subscribe", Err: err}
				}
				return
			}
			select {
			case snapshots <- fleet:
			case <-ctx.Done():
				return
			}
		}
	}()

	return snapshots, errs, nil
}
