package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		rawURL  string
		wantErr bool
	}{
		{"https://example.com", false},
		{"http://example.com/path?q=1", false},
		{"ftp://example.com", true},
		{"example.com", true},
		{"https://", true},
		{"", true},
	}
	for _, tt := range tests {
		err := validateURL(tt.rawURL)
		if (err != nil) != tt.wantErr {
			t.Errorf("validateURL(%q) error = %v; wantErr %v", tt.rawURL, err, tt.wantErr)
		}
	}
}

func authedRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(r.Context(), emailContextKey, "tester@example.com")
	return r.WithContext(ctx)
}

func TestCheckURLHandler(t *testing.T) {
	s := setupTestServer()
	var stored ScanRecord
	s.DB = &MockDB{AddScanFunc: func(sc ScanRecord) error {
		stored = sc
		return nil
	}}

	w := httptest.NewRecorder()
	s.CheckURLHandler(w, authedRequest(http.MethodPost, "/api/check", `{"url": " http://example.com "}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", w.Code, w.Body.String())
	}
	var record ScanRecord
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if record.URL != "http://example.com" {
		t.Errorf("url = %s; want trimmed http://example.com", record.URL)
	}
	if record.ID == "" || record.ID != stored.ID {
		t.Errorf("response record %q was not the stored record %q", record.ID, stored.ID)
	}
	if record.Email != "tester@example.com" {
		t.Errorf("email = %s; want tester@example.com", record.Email)
	}
	if record.Verdict == "" {
		t.Errorf("expected a verdict")
	}
	if len(record.Findings) != 7 {
		t.Errorf("findings = %d; want 7", len(record.Findings))
	}
	// Plain http means the certificate signal is the fixed placeholder.
	if record.Result.Certificate.Details != "No HTTPS connection" {
		t.Errorf("certificate details = %s", record.Result.Certificate.Details)
	}

	s.Memory.RLock()
	defer s.Memory.RUnlock()
	if s.Details.Stats["url_checks"] != 1 {
		t.Errorf("url_checks stat = %f; want 1", s.Details.Stats["url_checks"])
	}
}

func TestCheckURLHandlerRejectsBadInput(t *testing.T) {
	s := setupTestServer()

	w := httptest.NewRecorder()
	s.CheckURLHandler(w, authedRequest(http.MethodGet, "/api/check", ""))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d; want 405", w.Code)
	}

	w = httptest.NewRecorder()
	s.CheckURLHandler(w, authedRequest(http.MethodPost, "/api/check", `{"url": "ftp://example.com"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad scheme status = %d; want 400", w.Code)
	}

	w = httptest.NewRecorder()
	s.CheckURLHandler(w, authedRequest(http.MethodPost, "/api/check", `not json`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d; want 400", w.Code)
	}
}

func TestCheckURLHandlerStoreFailureStillResponds(t *testing.T) {
	s := setupTestServer()
	s.DB = &MockDB{AddScanFunc: func(sc ScanRecord) error {
		return errors.New("disk full")
	}}

	w := httptest.NewRecorder()
	s.CheckURLHandler(w, authedRequest(http.MethodPost, "/api/check", `{"url": "http://example.com"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d; want 200 despite storage failure", w.Code)
	}
	logs := s.GetLogs()
	if len(logs) == 0 || !logs[0].Error {
		t.Errorf("storage failure should be logged")
	}
}

func TestHistoryHandler(t *testing.T) {
	s := setupTestServer()
	var gotLimit int
	var gotSince time.Time
	s.DB = &MockDB{GetScansFunc: func(since time.Time, limit int) ([]ScanRecord, error) {
		gotSince = since
		gotLimit = limit
		return []ScanRecord{{ID: "a"}, {ID: "b"}}, nil
	}}

	w := httptest.NewRecorder()
	s.HistoryHandler(w, authedRequest(http.MethodGet, "/api/history?limit=5&days=7", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d; want 5", gotLimit)
	}
	if time.Since(gotSince) > 8*24*time.Hour || time.Since(gotSince) < 6*24*time.Hour {
		t.Errorf("since = %v; want about 7 days ago", gotSince)
	}
	var scans []ScanRecord
	if err := json.NewDecoder(w.Body).Decode(&scans); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if len(scans) != 2 {
		t.Errorf("scan count = %d; want 2", len(scans))
	}
}

func TestHistoryHandlerURLFilter(t *testing.T) {
	s := setupTestServer()
	s.DB = &MockDB{GetScansFunc: func(since time.Time, limit int) ([]ScanRecord, error) {
		return []ScanRecord{
			{ID: "a", URL: "https://example.com"},
			{ID: "b", URL: "https://other.example"},
			{ID: "c", URL: "https://example.com"},
		}, nil
	}}

	w := httptest.NewRecorder()
	s.HistoryHandler(w, authedRequest(http.MethodGet, "/api/history?url=https://example.com", ""))

	var scans []ScanRecord
	if err := json.NewDecoder(w.Body).Decode(&scans); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("filtered scan count = %d; want 2", len(scans))
	}
	for _, sc := range scans {
		if sc.URL != "https://example.com" {
			t.Errorf("filter leaked %s", sc.URL)
		}
	}
}

func TestHistoryHandlerEmpty(t *testing.T) {
	s := setupTestServer()

	w := httptest.NewRecorder()
	s.HistoryHandler(w, authedRequest(http.MethodGet, "/api/history", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty history = %q; want []", w.Body.String())
	}
}

func TestScanHandler(t *testing.T) {
	s := setupTestServer()
	var deleted string
	s.DB = &MockDB{
		GetScanFunc: func(id string) (ScanRecord, error) {
			if id != "scan-1" {
				return ScanRecord{}, errors.New("scan not found")
			}
			return ScanRecord{ID: "scan-1", URL: "https://example.com"}, nil
		},
		DeleteScanFunc: func(id string) error {
			deleted = id
			return nil
		},
	}

	w := httptest.NewRecorder()
	s.ScanHandler(w, authedRequest(http.MethodGet, "/api/scans/scan-1", ""))
	if w.Code != http.StatusOK {
		t.Errorf("GET status = %d; want 200", w.Code)
	}

	w = httptest.NewRecorder()
	s.ScanHandler(w, authedRequest(http.MethodGet, "/api/scans/nope", ""))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing scan status = %d; want 404", w.Code)
	}

	w = httptest.NewRecorder()
	s.ScanHandler(w, authedRequest(http.MethodDelete, "/api/scans/scan-1", ""))
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d; want 204", w.Code)
	}
	if deleted != "scan-1" {
		t.Errorf("deleted = %s; want scan-1", deleted)
	}

	// Bare listing delegates to history.
	w = httptest.NewRecorder()
	s.ScanHandler(w, authedRequest(http.MethodGet, "/api/scans/", ""))
	if w.Code != http.StatusOK {
		t.Errorf("list status = %d; want 200", w.Code)
	}

	w = httptest.NewRecorder()
	s.ScanHandler(w, authedRequest(http.MethodDelete, "/api/scans/", ""))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d; want 400", w.Code)
	}
}

func TestLoginHandler(t *testing.T) {
	s := setupTestServer()
	user, err := NewUser("tester@example.com", "hunter22", false)
	if err != nil {
		t.Fatalf("could not build user: %v", err)
	}
	var savedToken Token
	s.DB = &MockDB{
		GetUserByEmailFunc: func(email string) (User, error) {
			if email != user.Email {
				return User{}, errors.New("user not found")
			}
			return *user, nil
		},
		SaveTokenFunc: func(tk Token) error {
			savedToken = tk
			return nil
		},
	}
	handler := s.Session.LoadAndSave(http.HandlerFunc(s.LoginHandler))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email": "tester@example.com", "password": "hunter22"}`))
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", w.Code, w.Body.String())
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if out["email"] != "tester@example.com" {
		t.Errorf("email = %s; want tester@example.com", out["email"])
	}
	if out["token"] == "" || out["token"] != savedToken.Token {
		t.Errorf("response token %q does not match saved token %q", out["token"], savedToken.Token)
	}
	if savedToken.ExpiresAt.Before(time.Now()) {
		t.Errorf("saved token already expired: %v", savedToken.ExpiresAt)
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email": "tester@example.com", "password": "wrong"}`))
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d; want 401", w.Code)
	}
}

func TestAddUserHandlerClosesEnrollment(t *testing.T) {
	s := setupTestServer()
	s.Details.FirstUserMode = true
	var added User
	s.DB = &MockDB{AddUserFunc: func(u User) error {
		added = u
		return nil
	}}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/adduser", strings.NewReader(`{"email": "first@example.com", "password": "hunter22", "admin": true}`))
	s.AddUserHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", w.Code, w.Body.String())
	}
	if added.Email != "first@example.com" || !added.Admin {
		t.Errorf("stored user = %+v", added)
	}
	var out User
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if out.Hash != nil {
		t.Errorf("password hash leaked in response")
	}
	if out.Key == "" {
		t.Errorf("new user should receive an API key")
	}
	if s.Details.FirstUserMode {
		t.Errorf("first user mode should close after the first user")
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/adduser", strings.NewReader(`{"email": "", "password": ""}`))
	s.AddUserHandler(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fields status = %d; want 400", w.Code)
	}
}

func TestAllUsersHandlerStripsSecrets(t *testing.T) {
	s := setupTestServer()
	s.DB = &MockDB{GetAllUsersFunc: func() ([]User, error) {
		return []User{{Email: "a@example.com", Key: "secret", Hash: []byte("hashed")}}, nil
	}}

	w := httptest.NewRecorder()
	s.AllUsersHandler(w, authedRequest(http.MethodGet, "/api/users", ""))

	var users []User
	if err := json.NewDecoder(w.Body).Decode(&users); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("user count = %d; want 1", len(users))
	}
	if users[0].Key != "" || users[0].Hash != nil {
		t.Errorf("secrets leaked in user listing: %+v", users[0])
	}
}

func TestHealthHandler(t *testing.T) {
	s := setupTestServer()

	w := httptest.NewRecorder()
	s.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("bad response payload: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %s; want ok", out["status"])
	}
	if out["version"] != Version {
		t.Errorf("version = %s; want %s", out["version"], Version)
	}
}
