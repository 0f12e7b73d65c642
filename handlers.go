package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"urlsentry/analysis"
)

type CheckRequest struct {
	URL string `json:"url"`
}

// validateURL is the inbound guard: the checker itself assumes a
// well-formed absolute http(s) URL.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("could not parse url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q, want http or https", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("url has no hostname")
	}
	return nil
}

func (s *Server) CheckURLHandler(w http.ResponseWriter, r *http.Request) {
	defer s.addStat("url_checks", 1)
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := validateURL(req.URL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	email, _ := r.Context().Value(emailContextKey).(string)
	result := s.Checker.CheckURL(r.Context(), req.URL)
	findings := analysis.Project(result, req.URL)

	record := ScanRecord{
		ID:         uuid.New().String(),
		URL:        req.URL,
		Email:      email,
		Verdict:    string(result.RiskAnalysis.OverallRisk),
		RiskScore:  result.RiskAnalysis.RiskScore,
		Confidence: result.RiskAnalysis.Confidence,
		Result:     result,
		Findings:   findings,
		CreatedAt:  result.CheckedAt,
	}
	if err := s.DB.AddScan(record); err != nil {
		s.LogError(fmt.Errorf("could not store scan %s: %v", record.ID, err))
	}

	ms := float64(time.Since(start).Microseconds()) / 1000.0
	s.CheckDuration.WithLabelValues(record.Verdict).Observe(ms)
	s.addStat("verdict_"+record.Verdict, 1)

	if email != "" {
		s.Hub.SendToUser(email, Notification{
			Created: record.CreatedAt,
			Info:    fmt.Sprintf("Check finished for %s: %s (%d/100)", record.URL, record.Verdict, record.RiskScore),
			Error:   record.Verdict == "unsafe",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		s.LogError(err)
	}
}

func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	defer s.addStat("history_requests", 1)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	since := time.Now().AddDate(0, 0, -days)
	scans, err := s.DB.GetScans(since, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if target := r.URL.Query().Get("url"); target != "" {
		filtered := scans[:0]
		for _, sc := range scans {
			if sc.URL == target {
				filtered = append(filtered, sc)
			}
		}
		scans = filtered
	}
	if scans == nil {
		scans = []ScanRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scans)
}

// ScanHandler serves /api/scans/{id}: GET fetches one scan, DELETE removes
// it.
func (s *Server) ScanHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	if id == "" && r.Method == http.MethodGet {
		s.HistoryHandler(w, r)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing scan id", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		sc, err := s.DB.GetScan(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sc)
	case http.MethodDelete:
		if err := s.DB.DeleteScan(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	defer s.addStat("login_requests", 1)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, err := s.DB.GetUserByEmail(req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		s.Log.Println("failed login for", req.Email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	tk, err := NewToken(user.Email, s.Session.Lifetime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.DB.SaveToken(*tk); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.AddTokenToSession(r, w, tk)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"email": user.Email, "token": tk.Token})
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s.DeleteTokenFromSession(r)
	w.WriteHeader(http.StatusNoContent)
}

type AddUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

func (s *Server) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	defer s.addStat("add_user_requests", 1)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "missing 'email' or 'password' field", http.StatusBadRequest)
		return
	}
	user, err := NewUser(req.Email, req.Password, req.Admin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.DB.AddUser(*user); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// The open enrollment window closes after the very first user.
	if s.Details.FirstUserMode {
		s.Memory.Lock()
		s.Details.FirstUserMode = false
		s.Memory.Unlock()
		s.Gateway.Handle("/adduser", http.HandlerFunc(s.ValidateSessionToken(s.AddUserHandler)))
		s.LogInfo("first user created, enrollment now requires a session")
	}
	out := *user
	out.Hash = nil
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	defer s.addStat("delete_user_requests", 1)
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.DB.DeleteUser(req.Email); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) AllUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.DB.GetAllUsers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for i := range users {
		users[i].Hash = nil
		users[i].Key = ""
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

func (s *Server) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	s.Memory.RLock()
	stats := make(map[string]float64, len(s.Details.Stats))
	for k, v := range s.Details.Stats {
		stats[k] = v
	}
	start := s.Details.StartTime
	s.Memory.RUnlock()
	out := map[string]interface{}{
		"stats":  stats,
		"uptime": time.Since(start).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.GetLogs())
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.DB.TestAndReconnect(); err != nil {
		s.Log.Println("health check db error:", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"version": Version,
		"uptime":  time.Since(s.Details.StartTime).String(),
	})
}
