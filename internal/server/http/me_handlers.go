package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/service"
)

func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	WriteJSON(w, http.StatusOK, s.Catalog.Search(q.Get("q"), q.Get("category")))
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.Catalog.Categories())
}

func (s *Server) getCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

type trackRequest struct {
	Action  string `json:"action"`
	Details string `json:"details"`
	Page    string `json:"page"`
}

var trackable = map[string]bool{
	model.ActionPageVisit:  true,
	model.ActionViewCourse: true,
	model.ActionAddToCart:  true,
}

func (s *Server) trackActivity(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decode(w, r, &req) {
		return
	}
	if !trackable[req.Action] {
		WriteError(w, r, errs.Invalid("action", "unknown action"), s.Log)
		return
	}
	email, _ := SubjectFromCtx(r.Context())
	ev := s.Activity.Track(r.Context(), email, req.Action, req.Details, req.Page)
	WriteJSON(w, http.StatusCreated, ev)
}

type coursesRequest struct {
	CourseIDs []string `json:"course_ids"`
	Coupon    string   `json:"coupon,omitempty"`
	FullName  string   `json:"full_name,omitempty"`
	Phone     string   `json:"phone,omitempty"`
}

func (s *Server) courses(w http.ResponseWriter, r *http.Request, req coursesRequest) ([]model.Course, bool) {
	cs, err := s.Catalog.GetMany(req.CourseIDs)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return nil, false
	}
	return cs, true
}

func (s *Server) stashCart(w http.ResponseWriter, r *http.Request) {
	var req coursesRequest
	if !decode(w, r, &req) {
		return
	}
	cs, ok := s.courses(w, r, req)
	if !ok {
		return
	}
	visitor := visitorID(r)
	var err error
	if len(cs) == 1 {
		err = s.Carts.StashCourse(r.Context(), visitor, cs[0])
	} else {
		err = s.Carts.StashCart(r.Context(), visitor, cs)
	}
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) library(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, s.Purchases.Library(r.Context(), email, r.URL.Query().Get("q")))
}

func (s *Server) accessCourse(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	c, err := s.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	if !service.CanAccess(r.Context(), s.Purchases, s.Referrals, email, c) {
		writeMessage(w, http.StatusForbidden, "This course is locked")
		return
	}
	s.Activity.Track(r.Context(), email, model.ActionAccessCourse, fmt.Sprintf("Accessed course ID: %s", c.ID), "library")
	WriteJSON(w, http.StatusOK, map[string]string{"course_id": c.ID, "drive_url": c.DriveURL})
}

type cartResponse struct {
	Items []model.CartItem `json:"items"`
	Total int64            `json:"total"`
}

func (s *Server) cartItems(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, cartResponse{Items: s.Carts.Items(r.Context(), email), Total: s.Carts.Total(r.Context(), email)})
}

func (s *Server) cartAdd(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	var req struct {
		CourseID string `json:"course_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := s.Catalog.Get(req.CourseID)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	items, err := s.Carts.Add(r.Context(), email, c)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, cartResponse{Items: items, Total: s.Carts.Total(r.Context(), email)})
}

func (s *Server) cartRemove(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	items, err := s.Carts.Remove(r.Context(), email, chi.URLParam(r, "courseId"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, cartResponse{Items: items, Total: s.Carts.Total(r.Context(), email)})
}

func (s *Server) cartClear(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	if err := s.Carts.Clear(r.Context(), email); err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resumePending(w http.ResponseWriter, r *http.Request) {
	cs, _, err := s.Carts.ResumePending(r.Context(), visitorID(r))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	if cs == nil {
		cs = []model.Course{}
	}
	WriteJSON(w, http.StatusOK, cs)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req coursesRequest
	if !decode(w, r, &req) {
		return
	}
	cs, ok := s.courses(w, r, req)
	if !ok {
		return
	}
	q, err := s.Purchases.Quote(cs, req.Coupon)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, q)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	var req coursesRequest
	if !decode(w, r, &req) {
		return
	}
	cs, ok := s.courses(w, r, req)
	if !ok {
		return
	}
	buyer := model.BuyerDetails{FullName: req.FullName, Email: email, Phone: req.Phone}
	created, err := s.Purchases.Checkout(r.Context(), cs, buyer, req.Coupon)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	if err := s.Carts.Clear(r.Context(), email); err != nil {
		s.Log.Warn("clear cart after checkout", zap.Error(err))
	}
	WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) engagementVisit(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	v, err := s.Engagement.Visit(r.Context(), email)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	v, err := s.Engagement.CompleteTask(r.Context(), email, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

type referralResponse struct {
	model.ReferralState
	Count     int `json:"count"`
	Remaining int `json:"remaining"`
	Required  int `json:"required"`
}

func (s *Server) referralState(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	c, err := s.Catalog.Get(chi.URLParam(r, "courseId"))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	st, err := s.Referrals.Ensure(r.Context(), email, c)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, referralResponse{
		ReferralState: st,
		Count:         st.Count(),
		Remaining:     st.Remaining(),
		Required:      model.RequiredReferrals,
	})
}
