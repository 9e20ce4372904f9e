package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/service"
)

func (s *Server) adminPurchases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	WriteJSON(w, http.StatusOK, s.Purchases.List(r.Context(), q.Get("q"), model.PurchaseStatus(q.Get("status"))))
}

func (s *Server) adminApprove(w http.ResponseWriter, r *http.Request) {
	p, err := s.Purchases.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) adminReject(w http.ResponseWriter, r *http.Request) {
	p, err := s.Purchases.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) adminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Roster.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

func (s *Server) adminActivity(w http.ResponseWriter, r *http.Request) {
	limit := service.ActivityAdminLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, service.ActivityCap)
	}
	WriteJSON(w, http.StatusOK, s.Activity.Recent(r.Context(), limit, r.URL.Query().Get("q")))
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Purchases.Stats(r.Context())
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}
