package httpserver

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/service"
)

func visitor(id string) map[string]string {
	return map[string]string{VisitorHeader: id}
}

func (e testEnv) signUpAs(t *testing.T, email, username, visitorID string) {
	t.Helper()
	code, body := e.doWith(t, http.MethodPost, "/api/auth/signup", "", visitor(visitorID), service.SignUpForm{
		FullName: "Test User", Username: username, Email: email,
		Password: "secret1", ConfirmPassword: "secret1",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
}

func (e testEnv) signInAs(t *testing.T, email, visitorID string) signInResponse {
	t.Helper()
	code, body := e.doWith(t, http.MethodPost, "/api/auth/signin", "", visitor(visitorID),
		signInRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, code, string(body))
	var resp signInResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestStash_ResumesOnlyForSameVisitor(t *testing.T) {
	e := newEnv(t)
	e.signUpAs(t, "asha@x.io", "asha", "browser-a")
	e.signUpAs(t, "ravi@x.io", "ravi", "browser-b")

	code, body := e.doWith(t, http.MethodPost, "/api/cart/stash", "", visitor("browser-a"),
		coursesRequest{CourseIDs: []string{"c-react"}})
	require.Equal(t, http.StatusNoContent, code, string(body))

	code, _ = e.do(t, http.MethodPost, "/api/cart/stash", "", coursesRequest{CourseIDs: []string{"c-react"}})
	assert.Equal(t, http.StatusBadRequest, code)

	ravi := e.signInAs(t, "ravi@x.io", "browser-b")
	assert.Empty(t, ravi.Pending)
	code, body = e.doWith(t, http.MethodGet, "/api/me/pending", ravi.Token, visitor("browser-b"), nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(body))

	asha := e.signInAs(t, "asha@x.io", "browser-a")
	require.Len(t, asha.Pending, 1)
	assert.Equal(t, "c-react", asha.Pending[0].ID)

	again := e.signInAs(t, "asha@x.io", "browser-a")
	assert.Empty(t, again.Pending)
}

func TestReferralLink_CreditsOnlySameVisitor(t *testing.T) {
	e := newEnv(t)
	owner := e.signUpAndIn(t, "owner@x.io")

	code, body := e.do(t, http.MethodGet, "/api/me/referrals/c-excel-free", owner, nil)
	require.Equal(t, http.StatusOK, code)
	var st referralResponse
	require.NoError(t, json.Unmarshal(body, &st))

	code, _ = e.doWith(t, http.MethodPost, "/api/auth/referral", "", visitor("friend-tab"),
		map[string]string{"code": st.ReferralCode})
	require.Equal(t, http.StatusNoContent, code)

	e.signUpAs(t, "stranger@x.io", "stranger", "other-tab")
	code, _ = e.do(t, http.MethodPost, "/api/auth/signup", "", service.SignUpForm{
		FullName: "No Header", Username: "noheader", Email: "noheader@x.io",
		Password: "secret1", ConfirmPassword: "secret1",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body = e.do(t, http.MethodGet, "/api/me/referrals/c-excel-free", owner, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Zero(t, st.Count)

	e.signUpAs(t, "friend@x.io", "friend", "friend-tab")
	code, body = e.do(t, http.MethodGet, "/api/me/referrals/c-excel-free", owner, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 1, st.Count)
}

func TestDriveLinks_OnlyFromAccessRoute(t *testing.T) {
	e := newEnv(t)
	e.signUpAs(t, "asha@x.io", "asha", "tab")
	admin := e.adminToken(t)
	const link = "drive.example.com"

	noLink := func(what string, code int, body []byte) {
		t.Helper()
		require.Less(t, code, 300, "%s: %s", what, body)
		assert.NotContains(t, string(body), link, what)
	}

	code, body := e.do(t, http.MethodGet, "/api/catalog", "", nil)
	noLink("catalog", code, body)
	code, body = e.do(t, http.MethodGet, "/api/catalog/c-react", "", nil)
	noLink("course", code, body)

	code, body = e.doWith(t, http.MethodPost, "/api/cart/stash", "", visitor("tab"),
		coursesRequest{CourseIDs: []string{"c-react", "c-dsa"}})
	noLink("stash", code, body)
	code, body = e.doWith(t, http.MethodPost, "/api/auth/signin", "", visitor("tab"),
		signInRequest{Email: "asha@x.io", Password: "secret1"})
	noLink("signin", code, body)
	var sess signInResponse
	require.NoError(t, json.Unmarshal(body, &sess))
	require.Len(t, sess.Pending, 2)
	tok := sess.Token

	code, body = e.doWith(t, http.MethodPost, "/api/cart/stash", "", visitor("tab"),
		coursesRequest{CourseIDs: []string{"c-react"}})
	noLink("stash", code, body)
	code, body = e.doWith(t, http.MethodGet, "/api/me/pending", tok, visitor("tab"), nil)
	noLink("pending", code, body)
	assert.Contains(t, string(body), "c-react")

	code, body = e.do(t, http.MethodPost, "/api/me/cart", tok, map[string]string{"course_id": "c-react"})
	noLink("cart add", code, body)
	code, body = e.do(t, http.MethodGet, "/api/me/cart", tok, nil)
	noLink("cart", code, body)
	code, body = e.do(t, http.MethodPost, "/api/me/quote", tok, coursesRequest{CourseIDs: []string{"c-react"}})
	noLink("quote", code, body)

	code, body = e.do(t, http.MethodPost, "/api/me/checkout", tok, coursesRequest{
		CourseIDs: []string{"c-react"}, FullName: "Asha", Phone: "99999",
	})
	noLink("checkout", code, body)
	var created []model.Purchase
	require.NoError(t, json.Unmarshal(body, &created))
	require.Len(t, created, 1)

	code, body = e.do(t, http.MethodPost, "/api/admin/purchases/"+created[0].ID+"/approve", admin, nil)
	noLink("approve", code, body)
	code, body = e.do(t, http.MethodGet, "/api/admin/purchases", admin, nil)
	noLink("admin purchases", code, body)
	code, body = e.do(t, http.MethodGet, "/api/me/library", tok, nil)
	noLink("library", code, body)

	code, body = e.do(t, http.MethodPost, "/api/me/courses/c-react/access", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), link+"/react")
}

func TestSignIn_ForwardedForIgnoredUnlessTrusted(t *testing.T) {
	wrong := signInRequest{Email: "asha@x.io", Password: "wrong1"}
	spoof := func(i int) map[string]string {
		return map[string]string{"X-Forwarded-For": "203.0.113." + string(rune('1'+i))}
	}

	e := newEnv(t)
	e.signUpAs(t, "asha@x.io", "asha", "tab")
	var last int
	for i := 0; i < 5; i++ {
		last, _ = e.doWith(t, http.MethodPost, "/api/auth/signin", "", spoof(i), wrong)
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	trusted := newEnvWith(t, func(d *Deps) { d.TrustProxy = true })
	trusted.signUpAs(t, "asha@x.io", "asha", "tab")
	for i := 0; i < 5; i++ {
		last, _ = trusted.doWith(t, http.MethodPost, "/api/auth/signin", "", spoof(i), wrong)
		assert.Equal(t, http.StatusUnauthorized, last)
	}
}
