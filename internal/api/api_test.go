package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erazemk/oskrba/internal/auth"
	"github.com/erazemk/oskrba/internal/db"
	"github.com/erazemk/oskrba/internal/metrics"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	database := db.NewTestDB(t)
	server := httptest.NewServer(NewRouter(database, secret, metrics.New()))
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestStateLifecycle(t *testing.T) {
	server := setupTestServer(t, "")
	url := server.URL + "/api/app-state"

	// Nothing stored yet.
	resp := doRequest(t, http.MethodGet, url, "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Store a state.
	resp = doRequest(t, http.MethodPut, url, "", `{"users":[],"items":[{"id":"a"}]}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Read it back verbatim.
	resp = doRequest(t, http.MethodGet, url, "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"users":[],"items":[{"id":"a"}]}` {
		t.Errorf("unexpected body %s", body)
	}

	// Delete twice; both succeed.
	for range 2 {
		resp = doRequest(t, http.MethodDelete, url, "", "")
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204 on delete, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = doRequest(t, http.MethodGet, url, "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPutRejectsNonObjects(t *testing.T) {
	server := setupTestServer(t, "")
	url := server.URL + "/api/app-state"

	for _, body := range []string{``, `[]`, `"text"`, `42`, `null`, `{broken`} {
		resp := doRequest(t, http.MethodPut, url, "", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
		var e ErrorBody
		json.NewDecoder(resp.Body).Decode(&e)
		resp.Body.Close()
		if e.Message == "" {
			t.Errorf("body %q: expected an error message", body)
		}
	}
}

func TestPutRejectsOversizedBody(t *testing.T) {
	h := &StateHandler{DB: db.NewTestDB(t)}

	big := `{"pad":"` + strings.Repeat("x", MaxStateBytes) + `"}`
	rec := httptest.NewRecorder()
	h.Put(rec, httptest.NewRequest(http.MethodPut, "/api/app-state", bytes.NewReader([]byte(big))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	server := setupTestServer(t, testJWTSecret)
	url := server.URL + "/api/app-state"

	resp := doRequest(t, http.MethodGet, url, "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, url, "garbage", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	token, err := auth.GenerateToken(testJWTSecret, "test-client", 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	resp = doRequest(t, http.MethodGet, url, token, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 with token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Health stays public.
	resp = doRequest(t, http.MethodGet, server.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from healthz, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t, "")

	resp := doRequest(t, http.MethodGet, server.URL+"/api/app-state", "", "")
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, server.URL+"/metrics", "", "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `oskrba_http_requests_total{code="204",method="GET"} 1`) {
		t.Errorf("expected request counter in metrics output:\n%s", body)
	}
}
