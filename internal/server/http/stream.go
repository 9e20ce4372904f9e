package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/service"
)

const streamWriteWait = 10 * time.Second

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// referralStream pushes referral progress over a websocket. Browsers cannot set headers on a
// websocket handshake, so the token may also come in the "token" query parameter.
func (s *Server) referralStream(w http.ResponseWriter, r *http.Request) {
	tok, ok := bearerToken(r)
	if !ok {
		tok = r.URL.Query().Get("token")
	}
	claims, err := s.Auth.ParseToken(tok)
	if err != nil || claims.Role != service.RoleUser {
		writeMessage(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	course, err := s.Catalog.Get(chi.URLParam(r, "courseId"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	if _, err := s.Referrals.Ensure(r.Context(), claims.Subject, course); err != nil {
		WriteError(w, r, err, s.Log)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := s.Watcher.Watch(ctx, claims.Subject, course.ID)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.Metrics.StreamOpened()
	defer func() {
		s.Metrics.StreamClosed()
		_ = conn.Close()
	}()

	// The reader only notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.Log.Debug("referral stream write", zap.Error(err))
			cancel()
		}
		if ev.Kind == service.ReferralUnlocked {
			cancel()
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
