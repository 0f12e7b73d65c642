package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	ConfigPath    = flag.String("config", "config.json", "Configuration file")
	DeleteConfig  = flag.Bool("delete", false, "Delete configuration file after load")
	DbMode        = flag.String("dbmode", "", "Database mode (bbolt or postgres), overrides config")
	DbLocation    = flag.String("db", "", "Database location, overrides config")
	FirstUserMode = flag.Bool("firstuse", false, "First user mode")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stdout, "urlsentry ", log.LstdFlags)

	var cfg Configuration
	if err := cfg.PopulateFromJSONFile(*ConfigPath); err != nil {
		logger.Printf("no usable config file (%v), continuing with defaults", err)
		cfg.ApplyEnvOverrides()
		cfg.ApplyDefaults()
	} else if *DeleteConfig {
		if err := DeleteConfigFile(*ConfigPath); err != nil {
			logger.Fatalf("could not delete config file: %v", err)
		}
		logger.Println("config file deleted")
	}
	if *DbMode != "" {
		cfg.DatabaseType = *DbMode
	}
	if *DbLocation != "" {
		cfg.DBLocation = *DbLocation
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	address := fmt.Sprintf("%s:%s", cfg.BindAddress, cfg.HTTPPort)
	s := NewServer(cfg.ServerID, address, cfg.DatabaseType, cfg.DBLocation, logger)
	s.InitializeFromConfig(&cfg, false)

	ticker := time.NewTicker(time.Duration(cfg.StatCacheTickRate) * time.Second)
	cleanup := time.NewTicker(24 * time.Hour)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.UpdateCharts()
				go s.UpdateCache()
			case <-cleanup.C:
				go s.CleanupScans()
			case <-sigs:
				s.Log.Println("Shutting down")
				s.DB.Close()
				os.Exit(0)
			case <-s.StopCh:
				s.Log.Println("Shutting down")
				s.DB.Close()
				os.Exit(0)
			}
		}
	}()

	svr := &http.Server{
		Addr:    s.Details.Address,
		Handler: s.Session.LoadAndSave(s.CORSMiddleware(s.Gateway)),
	}
	s.LogInfo(fmt.Sprintf("Server started at %s", s.Details.Address))
	log.Fatal(svr.ListenAndServe())
}
