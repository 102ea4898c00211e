package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// tokenResponse is the payload for both login and refresh. ExpiresIn carries
// the absolute expiry instant in epoch seconds.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HandleLogin exchanges form credentials for a bearer token.
// POST /auth/token, form fields: username (the email), password.
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := a.DB.GetAccountByEmail(r.Context(), username)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// unknown email and wrong password are indistinguishable
	if account == nil || !verifyPassword(password, account.Password) {
		writeDetail(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	a.writeToken(w, account.Email)
}

// HandleRefreshToken issues a fresh token from a still-valid bearer token.
// The old token is untouched and expires on its own schedule.
func (a *App) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	a.writeToken(w, principal.Email)
}

func (a *App) writeToken(w http.ResponseWriter, subject string) {
	token, expiresAt, err := a.Tokens.Issue(subject, time.Now())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresAt,
	})
}

// pathID extracts the numeric {id} route variable.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// pageFrom parses the offset/limit query parameters with the listing
// defaults.
func pageFrom(r *http.Request) (offset, limit int) {
	offset = 0
	limit = 20
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return offset, limit
}
