package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.etcd.io/bbolt"

	"urlsentry/analysis"
	"urlsentry/providers"
)

const Version = "2026AUG01"

type Server struct {
	Session       *scs.SessionManager      `json:"-"`
	StopCh        chan bool                `json:"-"`
	Cache         *Cache                   `json:"-"`
	DB            Database                 `json:"-"`
	Hub           *Hub                     `json:"-"`
	Gateway       *http.ServeMux           `json:"-"`
	Log           *log.Logger              `json:"-"`
	Memory        *sync.RWMutex            `json:"-"`
	Checker       *analysis.Checker        `json:"-"`
	ID            string                   `json:"id"`
	Details       Details                  `json:"details"`
	Gauges        *prometheus.GaugeVec     `json:"-"`
	CheckDuration *prometheus.HistogramVec `json:"-"`
}

type Details struct {
	CorsOrigins       []string           `json:"cors_origins"`
	FirstUserMode     bool               `json:"first_user_mode"`
	FQDN              string             `json:"fqdn"`
	Address           string             `json:"address"`
	ScanRetentionDays int                `json:"scan_retention_days"`
	StartTime         time.Time          `json:"start_time"`
	Stats             map[string]float64 `json:"stats"`
}

type Cache struct {
	Logs         []LogItem          `json:"logs"`
	Charts       []byte             `json:"charts"`
	Coordinates  map[string][]Coord `json:"coordinates"`
	StatsHistory []StatItem         `json:"stats_history"`
}

type Coord struct {
	Value float64 `json:"value"`
	Time  int64   `json:"time"`
}

type StatItem struct {
	Time int64              `json:"time"`
	Data map[string]float64 `json:"data"`
}

type LogItem struct {
	Time  time.Time `json:"time"`
	Data  string    `json:"data"`
	Error bool      `json:"error"`
}

func NewServer(id string, address string, dbType string, dbLocation string, logger *log.Logger) *Server {
	var database Database
	memory := &sync.RWMutex{}
	gateway := http.NewServeMux()
	cache := &Cache{
		Logs:         make([]LogItem, 0),
		Coordinates:  make(map[string][]Coord),
		StatsHistory: make([]StatItem, 0),
		Charts:       []byte(noDataSnippet),
	}
	sessionMgr := scs.New()
	sessionMgr.Lifetime = 24 * time.Hour
	sessionMgr.IdleTimeout = 1 * time.Hour
	sessionMgr.Cookie.Persist = true
	sessionMgr.Cookie.Name = "token"
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode
	sessionMgr.Cookie.HttpOnly = true
	if dbLocation == "" {
		dbLocation = os.Getenv("URLSENTRY_DB_LOCATION")
	}
	switch dbType {
	case "bbolt":
		db, err := bbolt.Open(dbLocation, 0600, nil)
		if err != nil {
			log.Fatalf("bbolt could not open database: %v", err)
		}
		database = &BboltDB{DB: db}
	case "postgres":
		db, err := NewPostgresDB(dbLocation)
		if err != nil {
			log.Fatalf("postgres could not open database: %v", err)
		}
		database = db
	default:
		log.Fatalf("unsupported database type: %s", dbType)
	}
	if id == "" {
		id = fmt.Sprintf("%v-%v", time.Now().Unix(), Version)
	}
	svr := &Server{
		Hub:     NewHub(),
		StopCh:  make(chan bool),
		Session: sessionMgr,
		Cache:   cache,
		DB:      database,
		Gateway: gateway,
		Log:     logger,
		Memory:  memory,
		ID:      id,
		Details: Details{
			Address:   address,
			StartTime: time.Now(),
			Stats:     make(map[string]float64),
		},
	}
	svr.Gauges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "url_checks",
			Help: "Custom statistics from urlsentry internal state",
		},
		[]string{"url_checks"},
	)
	svr.CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "check_handler_duration_ms",
			Help:    "Duration of URL check requests in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"verdict"},
	)
	prometheus.MustRegister(svr.CheckDuration)
	prometheus.MustRegister(svr.Gauges)
	fmt.Println("Server initialized with ID:", svr.ID)
	return svr
}

func (s *Server) InitializeFromConfig(cfg *Configuration, fromFile bool) {
	if fromFile {
		err := cfg.PopulateFromJSONFile(*ConfigPath)
		if err != nil {
			s.Log.Fatalf("could not populate from file: %v", err)
		}
		if *DeleteConfig {
			err := DeleteConfigFile(*ConfigPath)
			if err != nil {
				s.Log.Fatalf("could not delete config file: %v", err)
			}
			s.Log.Println("config file deleted")
		}
	}

	rep := providers.NewReputationClient(cfg.Reputation)
	rep.Log = s.Log
	tl := providers.NewThreatListClient(cfg.ThreatList)
	tl.Log = s.Log
	reg := providers.NewRegistrationClient()
	reg.Log = s.Log
	cert := providers.NewCertificateClient()
	cert.Log = s.Log
	red := providers.NewRedirectTracer()
	red.Log = s.Log
	red.UseBrowser = cfg.UseBrowser
	red.NoSandbox = cfg.BrowserNoSandbox
	geo := providers.NewGeolocationClient(cfg.Geolocation)
	geo.Log = s.Log
	s.Checker = analysis.NewChecker(rep, tl, reg, cert, red, geo)
	s.Checker.Log = s.Log

	if !cfg.Reputation.Configured() {
		s.LogInfo("reputation provider unconfigured, will serve mock data")
	}
	if !cfg.ThreatList.Configured() {
		s.LogInfo("threat list provider unconfigured, will serve mock data")
	}
	if !cfg.Geolocation.Configured() {
		s.LogInfo("geolocation provider unconfigured, will serve mock data")
	}

	if *FirstUserMode {
		cfg.FirstUserMode = true
	}
	s.Details.FirstUserMode = cfg.FirstUserMode
	s.Details.FQDN = cfg.FQDN
	if len(cfg.Cors) == 0 {
		s.Details.CorsOrigins = []string{
			cfg.FQDN,
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		}
	} else {
		s.Details.CorsOrigins = cfg.Cors
	}
	s.Details.Address = fmt.Sprintf("%s:%s", cfg.BindAddress, cfg.HTTPPort)
	s.Details.ScanRetentionDays = cfg.ScanRetentionDays
	s.Session.Lifetime = time.Duration(cfg.SessionTokenTTL) * time.Hour

	s.Gateway.Handle("/api/check", s.RateLimit(http.HandlerFunc(s.ValidateSessionToken(s.CheckURLHandler))))
	s.Gateway.Handle("/api/history", http.HandlerFunc(s.ValidateSessionToken(s.HistoryHandler)))
	s.Gateway.Handle("/api/scans/", http.HandlerFunc(s.ValidateSessionToken(s.ScanHandler)))
	s.Gateway.Handle("/api/login", s.RateLimit(http.HandlerFunc(s.LoginHandler)))
	s.Gateway.Handle("/api/users", http.HandlerFunc(s.ValidateSessionToken(s.AllUsersHandler)))
	s.Gateway.Handle("/deleteuser", http.HandlerFunc(s.ValidateSessionToken(s.DeleteUserHandler)))
	s.Gateway.Handle("/stats", http.HandlerFunc(s.ValidateSessionToken(s.GetStatsHandler)))
	s.Gateway.Handle("/logs", http.HandlerFunc(s.ValidateSessionToken(s.GetLogsHandler)))
	s.Gateway.Handle("/ws", http.HandlerFunc(s.ValidateSessionToken(s.ServeWs)))
	s.Gateway.HandleFunc("/charts", s.ChartViewHandler)
	s.Gateway.HandleFunc("/health", s.HealthHandler)
	s.Gateway.HandleFunc("/logout", s.LogoutHandler)
	s.Gateway.Handle("/metrics", promhttp.Handler())
	if s.Details.FirstUserMode {
		s.Gateway.HandleFunc("/adduser", s.AddUserHandler)
	} else {
		s.Gateway.Handle("/adduser", http.HandlerFunc(s.ValidateSessionToken(s.AddUserHandler)))
	}
	go s.Hub.Run()
}

func (s *Server) addStat(key string, value float64) {
	s.Memory.Lock()
	defer s.Memory.Unlock()
	s.Details.Stats[key] += value
}

func (s *Server) UpdateCache() {
	s.Memory.Lock()
	defer s.Memory.Unlock()

	s.Details.Stats["cache_updates"]++

	stat := StatItem{
		Time: time.Now().Unix(),
		Data: make(map[string]float64),
	}
	for k, v := range s.Details.Stats {
		stat.Data[k] = v
	}
	s.Cache.StatsHistory = append(s.Cache.StatsHistory, stat)
}

func (s *Server) LogError(err error) {
	s.Log.Println(err)
	s.Memory.Lock()
	defer s.Memory.Unlock()
	s.Cache.Logs = append(s.Cache.Logs, LogItem{
		Time:  time.Now(),
		Data:  err.Error(),
		Error: true,
	})
}

func (s *Server) LogInfo(info string) {
	s.Log.Println(info)
	s.Memory.Lock()
	defer s.Memory.Unlock()
	s.Cache.Logs = append(s.Cache.Logs, LogItem{
		Time:  time.Now(),
		Data:  info,
		Error: false,
	})
}

func (s *Server) GetLogs() []LogItem {
	newLogs := make([]LogItem, 0)
	s.Memory.RLock()
	defer s.Memory.RUnlock()
	newLogs = append(newLogs, s.Cache.Logs...)
	return newLogs
}

// CleanupScans deletes scans past the retention window.
func (s *Server) CleanupScans() {
	if s.Details.ScanRetentionDays <= 0 {
		return
	}
	if err := s.DB.CleanScans(s.Details.ScanRetentionDays); err != nil {
		s.Log.Printf("ERROR: scan cleanup failed: %v", err)
	}
}

func (s *Server) UpdateCharts() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.Memory.Lock()
	defer s.Memory.Unlock()
	s.Details.Stats["goroutines"] = float64(runtime.NumGoroutine())
	s.Details.Stats["heap"] = float64(m.HeapAlloc) / 1024
	s.Details.Stats["alloc"] = float64(m.Alloc) / 1024
	s.Details.Stats["sys"] = float64(m.Sys) / 1024
	s.Details.Stats["num_gc"] = float64(m.NumGC)
	s.Gauges.WithLabelValues("url_checks").Set(s.Details.Stats["url_checks"])
	for i, stat := range s.Details.Stats {
		_, ok := s.Cache.Coordinates[i]
		if !ok {
			s.Cache.Coordinates[i] = make([]Coord, 0)
		}
		if len(s.Cache.Coordinates[i]) > 100 {
			s.Cache.Coordinates[i] = s.Cache.Coordinates[i][1:]
		}
		s.Cache.Coordinates[i] = append(s.Cache.Coordinates[i], Coord{Value: stat, Time: time.Now().Unix()})
	}
	s.Cache.Charts = renderCharts(s.Cache.Coordinates)
}

func (s *Server) AddTokenToSession(r *http.Request, w http.ResponseWriter, tk *Token) error {
	s.Session.Put(r.Context(), "token", tk.Token)
	return nil
}

func (s *Server) DeleteTokenFromSession(r *http.Request) error {
	s.Session.Remove(r.Context(), "token")
	return nil
}

func (s *Server) GetTokenFromSession(r *http.Request) (string, error) {
	tk, ok := s.Session.Get(r.Context(), "token").(string)
	if !ok {
		return "", errors.New("error getting token from session")
	}
	return tk, nil
}
