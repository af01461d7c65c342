package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetglass.app/store"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Send pings to client with this period. Must be less than pongWait.
	pingPeriod = 15 * time.Second

	// Clients only pong; anything bigger is garbage.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FleetLiveHandler streams the derived fleet over a websocket: the
// full set on connect, then again on every store change. Admin-gated
// by the router.
func (s *Server) FleetLiveHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.SubscribeLocations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}

	go fleetWriteLoop(conn, sub, r.URL.Query().Get("q"))
	go fleetReadLoop(conn, sub)
}

// fleetWriteLoop owns the connection's write side and the
// subscription. It exits on subscription failure, write failure or
// ping timeout, and disposes both exactly once on the way out.
func fleetWriteLoop(conn *websocket.Conn, sub *store.Subscription, query string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case snapshot, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(DeriveFleet(snapshot, time.Now(), query)); err != nil {
				return
			}
		case err := <-sub.Err:
			// terminal: tell the client why before hanging up
			log.Printf("[server] fleet subscription ended: %v", err)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// fleetReadLoop drains the client side for pongs and close frames.
func fleetReadLoop(conn *websocket.Conn, sub *store.Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[server] fleet socket: %v", err)
			}
			return
		}
	}
}
