package monitor

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

type Server struct {
	hub *Hub
	log *zap.Logger
}

func NewServer(hub *Hub, log *zap.Logger) *Server {
	return &Server{hub: hub, log: log}
}

// HandleWS upgrades the request and streams events until the client goes
// away. ?call_sid= narrows the feed to one call. Authentication happens in
// middleware before the upgrade.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	callSid := r.URL.Query().Get("call_sid")
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("ws accept", zap.Error(err))
		return
	}
	defer c.Close(ws.StatusInternalError, "closing")

	wt := s.hub.add(callSid)
	defer s.hub.remove(wt)
	s.log.Info("monitor connected", zap.String("call_sid", callSid), zap.String("remote", r.RemoteAddr))

	// Watchers only listen; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("monitor disconnected", zap.String("remote", r.RemoteAddr))
			return
		case evt := <-wt.events:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c, evt)
			cancel()
			if err != nil {
				s.log.Info("monitor write failed", zap.Error(err))
				return
			}
		}
	}
}
