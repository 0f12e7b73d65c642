package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type contextKey string

const emailContextKey contextKey = "email"

var visitors = make(map[string]*rate.Limiter)
var visitorsMu sync.Mutex

func getVisitor(ip string) *rate.Limiter {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	limiter, exists := visitors[ip]
	if !exists {
		// Allow 1 request per second with a burst of 3
		limiter = rate.NewLimiter(1, 3)
		visitors[ip] = limiter
	}

	return limiter
}

func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("CF-Connecting-IP")
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		}

		limiter := getVisitor(ip)
		if !limiter.Allow() {
			s.Log.Printf("Rate limit exceeded for IP: %s", ip)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ValidateSessionToken accepts either a session cookie token or an
// Authorization header of the form "email:apikey".
func (s *Server) ValidateSessionToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := s.GetTokenFromSession(r)

		if err != nil {
			header := r.Header.Get("Authorization")
			parts := strings.Split(header, ":")
			if header == "" || len(parts) != 2 {
				http.Error(w, "Token is missing or malformed.", http.StatusUnauthorized)
				return
			}

			email := parts[0]
			key := parts[1]
			user, err := s.DB.GetUserByEmail(email)
			if err != nil {
				s.Log.Println("Error getting user by email:", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if user.Key == "" || user.Key != key {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), emailContextKey, email)
			next(w, r.WithContext(ctx))
			return
		}

		tk, err := s.DB.GetTokenByValue(token)
		if err != nil || tk.ExpiresAt.Before(time.Now()) {
			s.Log.Println("Invalid session token:", err)
			http.Error(w, "Invalid session token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), emailContextKey, tk.Email)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range s.Details.CorsOrigins {
			if o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "null")
		}
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
