package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return &App{
		DB:      NewMemoryDB(),
		Tokens:  testCodec(t, 300*time.Second),
		limiter: newLimiter(600000),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func detailOf(t *testing.T, rr *httptest.ResponseRecorder) interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out["detail"]
}

// registerAccount creates an account through the API and returns its id.
func registerAccount(t *testing.T, h http.Handler, username, email, password string) int64 {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp accountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.ID
}

func login(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	rr := doForm(t, h, "/auth/token", url.Values{"username": {email}, "password": {password}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.AccessToken
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	rr := doForm(t, h, "/auth/token", url.Values{
		"username": {"diego@email.com"}, "password": {"1234@asddfg"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.InDelta(t, time.Now().Add(300*time.Second).Unix(), resp.ExpiresIn, 5)
}

func TestLoginWithWrongPassword(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	rr := doForm(t, h, "/auth/token", url.Values{
		"username": {"diego@email.com"}, "password": {"wrong_password"},
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "invalid username or password", detailOf(t, rr))
}

func TestLoginWithUnknownEmail(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	rr := doForm(t, h, "/auth/token", url.Values{
		"username": {"invalid"}, "password": {"1234@asddfg"},
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "invalid username or password", detailOf(t, rr))
}

func TestLoginWithMissingFields(t *testing.T) {
	app := newTestApp(t)
	h := app.router()

	rr := doForm(t, h, "/auth/token", url.Values{"password": {"any_password"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doForm(t, h, "/auth/token", url.Values{"username": {"any_account"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRefreshToken(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPost, "/auth/refresh_token", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "Bearer", resp.TokenType)
}

func TestRefreshTokenWithExpiredToken(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	// a real token for this account whose expiry has already passed
	expired, _, err := app.Tokens.Issue("diego@email.com", time.Now().Add(-301*time.Second))
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodPost, "/auth/refresh_token", expired, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Could not validate credentials", detailOf(t, rr))
}

func TestRefreshTokenMissingAuthorizationHeader(t *testing.T) {
	app := newTestApp(t)
	h := app.router()

	rr := doJSON(t, h, http.MethodPost, "/auth/refresh_token", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Not authenticated", detailOf(t, rr))
}

func TestCreateAccount(t *testing.T) {
	app := newTestApp(t)
	h := app.router()

	rr := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{
		"username": "diego", "email": "diego@email.com", "password": "1234@asddfg",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp accountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.ID)
	require.Equal(t, "diego", resp.Username)
	require.Equal(t, "diego@email.com", resp.Email)
	require.Equal(t, StateEnabled, resp.State)
}

func TestCreateAccountValidation(t *testing.T) {
	app := newTestApp(t)
	h := app.router()

	cases := []map[string]string{
		{"username": "json1", "email": "email@email.com"},                           // missing password
		{"password": "1234@asddfg", "email": "email@email.com"},                     // missing username
		{"username": "json1", "password": "1234@asddfg"},                            // missing email
		{"username": "json1", "email": "email@email.com", "password": "1234@a"},     // short password
		{"username": "diego", "email": "diego.email.com", "password": "1234@asddfg"}, // bad email
		{"username": "abc", "email": "a@email.com", "password": "1234@asddfg"},      // short username
		{"username": "abcdefghijklmnop", "email": "a@e.com", "password": "1234@asddfg"}, // long username
	}
	for i, body := range cases {
		rr := doJSON(t, h, http.MethodPost, "/accounts", "", body)
		require.Equalf(t, http.StatusBadRequest, rr.Code, "case %d: %s", i, rr.Body.String())
	}
}

func TestCreateAccountWithUsernameInUse(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{
		"username": "diego", "email": "new_email@mail.com", "password": "1234%3#dasdf",
	})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "username: diego is already in use", detailOf(t, rr))
}

func TestCreateAccountWithEmailInUse(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPost, "/accounts", "", map[string]string{
		"username": "other_user", "email": "diego@email.com", "password": "1234%3#dasdf",
	})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "email: diego@email.com is already in use", detailOf(t, rr))
}

func TestListAccounts(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	for i := 0; i < 10; i++ {
		registerAccount(t, h, fmt.Sprintf("username%d", i), fmt.Sprintf("u%d@email.com", i), "1234@asddfg")
	}

	rr := doJSON(t, h, http.MethodGet, "/accounts", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Accounts []accountResponse `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 10)
}

func TestListAccountsPagination(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	for i := 0; i < 35; i++ {
		registerAccount(t, h, fmt.Sprintf("username%d", i), fmt.Sprintf("u%d@email.com", i), "1234@asddfg")
	}

	// default window is 20
	rr := doJSON(t, h, http.MethodGet, "/accounts", "", nil)
	var resp struct {
		Accounts []accountResponse `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 20)

	// offset past most rows clips the window
	rr = doJSON(t, h, http.MethodGet, "/accounts?offset=30&limit=10", "", nil)
	resp.Accounts = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 5)
}

func TestListAccountsByState(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	registerAccount(t, h, "fulano", "fulano@email.com", "1234@asddfg")

	token := login(t, h, "diego@email.com", "1234@asddfg")
	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"state": "disabled"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Accounts []accountResponse `json:"accounts"`
	}
	rr = doJSON(t, h, http.MethodGet, "/accounts?state=disabled", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 1)
	require.Equal(t, "diego", resp.Accounts[0].Username)

	rr = doJSON(t, h, http.MethodGet, "/accounts?state=enabled", "", nil)
	resp.Accounts = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 1)
	require.Equal(t, "fulano", resp.Accounts[0].Username)
}

func TestListAccountsWithUnknownState(t *testing.T) {
	app := newTestApp(t)
	h := app.router()

	rr := doJSON(t, h, http.MethodGet, "/accounts?state=desativado", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateAccount(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"username": "diegoj", "email": "diegoj@email.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp accountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, id, resp.ID)
	require.Equal(t, "diegoj", resp.Username)
	require.Equal(t, "diegoj@email.com", resp.Email)
	require.Equal(t, StateEnabled, resp.State)
}

func TestUpdateAccountWithoutLogin(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), "",
		map[string]string{"username": "diegoj"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Not authenticated", detailOf(t, rr))
}

func TestUpdateAccountAfterAccountDeleted(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	require.NoError(t, app.DB.DeleteAccount(httptest.NewRequest("GET", "/", nil).Context(), id))

	// the token's subject no longer resolves, so this is an auth failure
	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"username": "diegoj"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Could not validate credentials", detailOf(t, rr))
}

func TestUpdateAccountWithoutPermissions(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPatch, "/accounts/14", token,
		map[string]string{"username": "diegoj"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "not enough permissions to update account", detailOf(t, rr))
}

func TestUpdateAccountWithEmailInUse(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	registerAccount(t, h, "fulano", "new_account@mail.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"email": "new_account@mail.com"})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "email: new_account@mail.com is already in use", detailOf(t, rr))
}

func TestUpdateAccountValidation(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"email": "diegoj.email.com"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"password": "123@asd"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateAccountRehashesPassword(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/accounts/%d", id), token,
		map[string]string{"password": "brand-new-password"})
	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := app.DB.GetAccountByID(httptest.NewRequest("GET", "/", nil).Context(), id)
	require.NoError(t, err)
	require.NotEqual(t, "brand-new-password", stored.Password)
	require.True(t, verifyPassword("brand-new-password", stored.Password))

	// the new password works for login
	login(t, h, "diego@email.com", "brand-new-password")
}

func TestDeleteAccount(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	id := registerAccount(t, h, "diego", "diego@email.com", "1234@asddfg")
	token := login(t, h, "diego@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodDelete, fmt.Sprintf("/accounts/%d", id), token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	stored, err := app.DB.GetAccountByID(httptest.NewRequest("GET", "/", nil).Context(), id)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestDeleteAccountWithoutPermissions(t *testing.T) {
	app := newTestApp(t)
	h := app.router()
	registerAccount(t, h, "usera", "a@email.com", "1234@asddfg")
	registerAccount(t, h, "userb", "b@email.com", "1234@asddfg")
	// account ids are 1 and 2; principal 1 attacks 2's sibling id space
	token := login(t, h, "a@email.com", "1234@asddfg")

	rr := doJSON(t, h, http.MethodDelete, "/accounts/7", token, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "not enough permissions to delete account", detailOf(t, rr))
}
