package sso

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/gin-gonic/gin"
)

func setupTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	public := r.Group("/api/sso")
	public.Use(auth.OrgMiddleware(f.db))
	NewHandler(f.svc).RegisterRoutes(public)

	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListProvidersEndpoint(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	req := httptest.NewRequest("GET", "/api/sso/providers", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != "azure" {
		t.Errorf("Expected [azure], got %v", resp.Providers)
	}
}

func TestStartLoginEndpoint(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	w := postJSON(r, "/api/sso/azure/login", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp RedirectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.URL == "" {
		t.Error("Expected an authorization URL")
	}
}

func TestStartLoginUnconfiguredProvider(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	w := postJSON(r, "/api/sso/google/login", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unconfigured provider, got %d", w.Code)
	}
}

func TestStartLoginWhileAuthenticated(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	token, err := auth.GenerateToken(1, "ada@example.com", "user")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/sso/azure/login", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for authenticated caller, got %d", w.Code)
	}
}

func TestStartLoginProviderDown(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)
	f.idp.srv.Close()

	w := postJSON(r, "/api/sso/azure/login", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 when discovery fails, got %d", w.Code)
	}
}

func TestCallbackEndpointFullFlow(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)
	user := f.createUser(t, "ada@example.com")

	w := postJSON(r, "/api/sso/azure/login", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("StartLogin failed: %d %s", w.Code, w.Body.String())
	}
	var start RedirectResponse
	json.Unmarshal(w.Body.Bytes(), &start)
	state, nonce := stateAndNonce(t, start.URL)

	f.idp.issueAzureIDToken(nonce, "ada@example.com", nil)
	req := httptest.NewRequest("GET", "/api/sso/callback?code=fake-code&state="+state, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Callback failed: %d %s", w.Code, w.Body.String())
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("Failed to decode callback response: %v", err)
	}
	if tokenResp.Type != "login" {
		t.Errorf("Expected login token, got %q", tokenResp.Type)
	}

	w = postJSON(r, "/api/sso/login/finalize", FinalizeRequest{Token: tokenResp.Token})
	if w.Code != http.StatusOK {
		t.Fatalf("Finalize failed: %d %s", w.Code, w.Body.String())
	}
	var authResp auth.AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &authResp); err != nil {
		t.Fatalf("Failed to decode finalize response: %v", err)
	}
	claims, err := auth.ValidateToken(authResp.Token)
	if err != nil {
		t.Fatalf("Session token invalid: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("Expected session for user %d, got %d", user.ID, claims.UserID)
	}
}

func TestCallbackEndpointProviderError(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	req := httptest.NewRequest("GET", "/api/sso/callback?error=access_denied&error_description=cancelled", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for provider error redirect, got %d", w.Code)
	}
}

func TestCallbackEndpointMissingParams(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	req := httptest.NewRequest("GET", "/api/sso/callback?code=abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing state, got %d", w.Code)
	}
}

func TestCallbackEndpointClaimFailureIsGeneric(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)
	f.createUser(t, "ada@example.com")

	w := postJSON(r, "/api/sso/azure/login", nil)
	var start RedirectResponse
	json.Unmarshal(w.Body.Bytes(), &start)
	state, nonce := stateAndNonce(t, start.URL)

	// Token from a different tenant must fail without leaking the reason
	f.idp.issueAzureIDToken(nonce, "ada@example.com", map[string]interface{}{"tid": "other-tenant"})
	req := httptest.NewRequest("GET", "/api/sso/callback?code=fake-code&state="+state, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "Authentication failed" {
		t.Errorf("Expected generic message, got %q", resp.Error)
	}
}

func TestFinalizeEndpointUnknownToken(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	w := postJSON(r, "/api/sso/login/finalize", FinalizeRequest{Token: "no-such-token"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown token, got %d", w.Code)
	}
}

func TestRecoverStartEndpointUnknownEmail(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)

	w := postJSON(r, "/api/sso/recover/start", StartRecoverRequest{Email: "nobody@example.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown account, got %d", w.Code)
	}
}

func TestRecoverEndpointFullFlow(t *testing.T) {
	f := setupFixture(t)
	r := setupTestRouter(f)
	user := f.createUser(t, "ada@example.com")

	w := postJSON(r, "/api/sso/recover/start", StartRecoverRequest{Email: "ada@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("Recover start failed: %d %s", w.Code, w.Body.String())
	}
	var start RedirectResponse
	json.Unmarshal(w.Body.Bytes(), &start)
	state, nonce := stateAndNonce(t, start.URL)

	f.idp.issueAzureIDToken(nonce, "ada@example.com", nil)
	req := httptest.NewRequest("GET", "/api/sso/callback?code=fake-code&state="+state, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Callback failed: %d %s", w.Code, w.Body.String())
	}
	var tokenResp TokenResponse
	json.Unmarshal(w.Body.Bytes(), &tokenResp)
	if tokenResp.Type != "recover" {
		t.Errorf("Expected recover token, got %q", tokenResp.Type)
	}

	w = postJSON(r, "/api/sso/recover/finalize", FinalizeRequest{Token: tokenResp.Token})
	if w.Code != http.StatusOK {
		t.Fatalf("Recover finalize failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		UserID uint   `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.UserID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, resp.UserID)
	}
}
