package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	types "github.com/sebas/voipcenter/api/types/v1"
)

// lockedConn serializes the control frames written while reading with the
// data frames written by the stream loop.
type lockedConn struct {
	net.Conn
	mu *sync.Mutex
}

func (c lockedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(p)
}

// handleEvents upgrades to a WebSocket carrying events and acknowledgment
// requests; replies come back on the same socket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("[API] WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	listener := s.bridge.Attach()
	defer s.bridge.Detach(listener)
	acks, unregister := s.acks.Register()
	defer unregister()

	slog.Info("[API] Event stream attached", "remote", r.RemoteAddr)

	var mu sync.Mutex
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		s.readReplies(lockedConn{Conn: conn, mu: &mu})
	}()

	write := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			slog.Error("[API] Failed to encode stream message", "error", err)
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		if err := wsutil.WriteServerText(conn, data); err != nil {
			slog.Debug("[API] Stream write failed", "remote", r.RemoteAddr, "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case e, ok := <-listener.Events():
			if !ok || !write(e) {
				return
			}
		case req := <-acks:
			if !write(req) {
				return
			}
		case <-closed:
			slog.Info("[API] Event stream detached", "remote", r.RemoteAddr)
			return
		case <-s.ctx.Done():
			mu.Lock()
			_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusGoingAway, "shutdown")))
			mu.Unlock()
			return
		}
	}
}

func (s *Server) readReplies(rw io.ReadWriter) {
	for {
		data, op, err := wsutil.ReadClientData(rw)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		var reply types.AckReply
		if err := json.Unmarshal(data, &reply); err != nil || reply.Reply == "" {
			slog.Warn("[API] Ignoring stream message", "error", err)
			continue
		}
		if !s.acks.Reply(reply.Reply, reply.Error) {
			slog.Warn("[API] Reply for unknown acknowledgment", "id", reply.Reply)
		}
	}
}
