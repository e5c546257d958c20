package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/navillusj/ASX-Share-Monitor/internal/collector"
	"github.com/navillusj/ASX-Share-Monitor/internal/config"
	"github.com/navillusj/ASX-Share-Monitor/internal/recorder"
	"github.com/navillusj/ASX-Share-Monitor/internal/scheduler"
	"github.com/navillusj/ASX-Share-Monitor/internal/settings"
	"github.com/navillusj/ASX-Share-Monitor/internal/store"
	"github.com/navillusj/ASX-Share-Monitor/internal/table"
	"github.com/navillusj/ASX-Share-Monitor/internal/timezone"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] ASX Share Monitor starting...")

	cfgPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Load persisted settings. A fresh install has no settings file and
	// starts from the configured display values instead.
	fresh := false
	if _, err := os.Stat(cfg.Paths.Settings); os.IsNotExist(err) {
		fresh = true
	}
	prefs, err := settings.Load(cfg.Paths.Settings)
	if err != nil {
		log.Printf("[WARN] load settings: %v", err)
	}
	if fresh {
		prefs.TimeRange = cfg.Display.TimeRange
		prefs.Timezone = cfg.Display.Timezone
	}

	// Init display timezone
	tz, err := timezone.NewOrDefault(prefs.Timezone)
	if err != nil {
		log.Printf("[WARN] timezone: %v", err)
	}
	log.Printf("[INFO] display: range=%q zone=%s", prefs.TimeRange, tz.City())

	// Init data source
	var src collector.Source
	switch cfg.Source.Provider {
	case "mock":
		src = collector.NewMockSource(45.0)
	default:
		opts := []collector.YahooOption{
			collector.WithTimeout(cfg.Source.Timeout.Std()),
			collector.WithRetries(cfg.Source.Retries),
		}
		if cfg.Source.BaseURL != "" {
			opts = append(opts, collector.WithBaseURL(cfg.Source.BaseURL))
		}
		if cfg.Proxy != "" {
			opts = append(opts, collector.WithProxy(cfg.Proxy))
		}
		src = collector.NewYahooSource(opts...)
	}
	log.Printf("[INFO] data source: %s", src.Name())

	// Init store seeded from the saved watchlist
	st := store.New()
	for _, sym := range prefs.Tickers {
		if _, err := st.Add(sym); err != nil {
			log.Printf("[WARN] watchlist %q: %v", sym, err)
		}
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Paths.Database != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Paths.Database)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.New(scheduler.Config{
		Interval:         cfg.Refresh.Interval.Std(),
		Concurrency:      cfg.Refresh.Concurrency,
		FailureThreshold: cfg.Refresh.FailureThreshold,
		ActiveRange:      prefs.TimeRange,
	}, src, st, rec)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[FATAL] start scheduler: %v", err)
	}

	// Render the table on every store change
	go func() {
		view := table.NewView()
		for {
			select {
			case <-ctx.Done():
				return
			case <-st.Changes():
				render(os.Stdout, view, st.Snapshot())
			}
		}
	}()

	log.Println("[INFO] ASX Share Monitor is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Printf("[WARN] scheduler stop: %v", err)
	}
	cancel()

	// Persist the watchlist and UI state for the next run
	prefs.TimeRange = sched.ActiveRange().Name
	prefs.Timezone = tz.Zone()
	prefs.Tickers = st.Symbols()
	if err := settings.Save(cfg.Paths.Settings, prefs); err != nil {
		log.Printf("[WARN] save settings: %v", err)
	}
	log.Println("[INFO] ASX Share Monitor stopped")
}

func render(w io.Writer, view *table.View, snaps []store.TickerSnapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(table.Headers(), "\t"))
	for _, row := range view.Project(snaps) {
		fmt.Fprintln(tw, strings.Join(row.Cells(), "\t"))
	}
	tw.Flush()
}
