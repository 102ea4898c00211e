package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

const genericAccountConflict = "username or email is already in use"

type accountResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	State    string `json:"state"`
}

func toAccountResponse(a *Account) accountResponse {
	return accountResponse{ID: a.ID, Username: a.Username, Email: a.Email, State: a.State}
}

// HandleCreateAccount registers a new account. Open endpoint.
// POST /accounts
func (a *App) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeDetail(w, http.StatusBadRequest, errs)
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	account, err := a.DB.CreateAccount(r.Context(), &Account{
		Username: req.Username,
		Email:    req.Email,
		Password: hashed,
		State:    StateEnabled,
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			writeConflict(w, conflict, genericAccountConflict)
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// HandleListAccounts lists accounts with offset/limit and an optional state
// filter. Open endpoint.
// GET /accounts
func (a *App) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageFrom(r)
	state := r.URL.Query().Get("state")
	if state != "" && !validState(state) {
		writeDetail(w, http.StatusBadRequest, ValidationErrors{
			{Field: "state", Message: "must be enabled or disabled"},
		})
		return
	}

	accounts, err := a.DB.ListAccounts(r.Context(), AccountFilter{Offset: offset, Limit: limit, State: state})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, toAccountResponse(account))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

// HandleUpdateAccount applies a sparse patch to the principal's own account.
// PATCH /accounts/{id}, bearer-protected.
func (a *App) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid account id")
		return
	}
	principal := principalFrom(r.Context())
	if !ownsAccount(principal, id) {
		writeDetail(w, http.StatusForbidden, "not enough permissions to update account")
		return
	}

	var req accountUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeDetail(w, http.StatusBadRequest, errs)
		return
	}
	if req.Password != nil {
		hashed, err := hashPassword(*req.Password)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		req.Password = &hashed
	}

	updated := *principal
	req.applyTo(&updated)

	account, err := a.DB.UpdateAccount(r.Context(), &updated)
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			writeConflict(w, conflict, genericAccountConflict)
		case errors.Is(err, ErrNotFound):
			writeDetail(w, http.StatusNotFound, "account not found")
		default:
			writeStoreError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// HandleDeleteAccount removes the principal's own account.
// DELETE /accounts/{id}, bearer-protected.
func (a *App) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid account id")
		return
	}
	principal := principalFrom(r.Context())
	if !ownsAccount(principal, id) {
		writeDetail(w, http.StatusForbidden, "not enough permissions to delete account")
		return
	}

	if err := a.DB.DeleteAccount(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "account not found")
			return
		}
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
