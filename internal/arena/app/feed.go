package app

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/ichorlabs/rumble/internal/arena/event"
)

const feedHeartbeatInterval = 30 * time.Second

// feedFrame is one message on the live feed. Heartbeats carry no event.
type feedFrame struct {
	Type    string       `json:"type"`
	Event   *event.Event `json:"event,omitempty"`
	Dropped int64        `json:"dropped,omitempty"`
}

// handleFeed upgrades to a websocket and streams arena events. A kinds query
// parameter narrows the feed ("?kinds=turn_resolved,payout_complete");
// without it the client receives everything. Connections beyond the
// configured cap are refused before the upgrade.
func (rt *Runtime) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !rt.feedConns.tryAcquire() {
		http.Error(w, "live feed is at capacity", http.StatusServiceUnavailable)
		return
	}
	// websocket.Handler serves synchronously, so this also covers failed
	// handshakes.
	defer rt.feedConns.release()

	kinds := parseFeedKinds(r.URL.Query().Get("kinds"))
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		rt.serveFeedConn(conn, kinds)
	})
	wsHandler.ServeHTTP(w, r)
}

func parseFeedKinds(raw string) []event.Kind {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var kinds []event.Kind
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, event.Kind(part))
		}
	}
	return kinds
}

func (rt *Runtime) serveFeedConn(conn *websocket.Conn, kinds []event.Kind) {
	defer func() {
		_ = conn.Close()
	}()

	sub := rt.hub.Subscribe(kinds...)
	defer sub.Cancel()

	// Reads only detect the peer hanging up; the feed is one-way.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		var discard [128]byte
		for {
			if _, err := conn.Read(discard[:]); err != nil {
				return
			}
		}
	}()

	encoder := json.NewEncoder(conn)
	heartbeat := time.NewTicker(feedHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-disconnected:
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if err := encoder.Encode(feedFrame{Type: "event", Event: &evt}); err != nil {
				return
			}
		case <-heartbeat.C:
			frame := feedFrame{Type: "heartbeat", Dropped: sub.Dropped.Load()}
			if err := encoder.Encode(frame); err != nil {
				return
			}
		}
	}
}

// connLimiter caps concurrent feed connections.
type connLimiter struct {
	mu    sync.Mutex
	cap   int
	inUse int
}

func newConnLimiter(capacity int) *connLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &connLimiter{cap: capacity}
}

func (l *connLimiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse >= l.cap {
		return false
	}
	l.inUse++
	return true
}

func (l *connLimiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse > 0 {
		l.inUse--
	} else {
		log.Printf("[ARENA] feed limiter released below zero")
	}
}
