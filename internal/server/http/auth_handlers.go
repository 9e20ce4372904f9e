package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/service"
)

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountResponse(a model.Account) accountResponse {
	return accountResponse{ID: a.ID, Email: a.Email, Username: a.Username, FullName: a.FullName, CreatedAt: a.CreatedAt}
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var form service.SignUpForm
	if !decode(w, r, &form) {
		return
	}
	if form.ReferralCode == "" {
		form.ReferralCode = r.URL.Query().Get("ref")
	}
	form.Visitor = visitorID(r)
	acct, err := s.Auth.SignUp(r.Context(), form)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusCreated, toAccountResponse(acct))
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type signInResponse struct {
	model.Session
	// Pending is a checkout stashed before sign-in.
	Pending []model.Course `json:"pending,omitempty"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.Auth.SignIn(r.Context(), req.Email, req.Password, clientIP(r), req.Remember)
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	resp := signInResponse{Session: sess}
	if pending, ok, err := s.Carts.ResumePending(r.Context(), visitorID(r)); err != nil {
		s.Log.Warn("resume pending checkout", zap.Error(err))
	} else if ok {
		resp.Pending = pending
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	email, ok := mustSubject(w, r)
	if !ok {
		return
	}
	if err := s.Auth.SignOut(r.Context(), email); err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) usernameAvailability(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	WriteJSON(w, http.StatusOK, map[string]string{
		"username":     name,
		"availability": string(s.Auth.UsernameAvailability(r.Context(), name)),
	})
}

func (s *Server) passwordStrength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"strength": service.PasswordStrength(req.Password)})
}

func (s *Server) rememberReferral(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Auth.RememberReferral(r.Context(), visitorID(r), req.Code); err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decode(w, r, &req) {
		return
	}
	tok, err := s.Auth.AdminLogin(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		WriteError(w, r, err, s.Log)
		return
	}
	WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
}
