// Package main is the entry point for the custody facility server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/penhollow/custody-server/internal/engine"
	"github.com/penhollow/custody-server/internal/events"
	"github.com/penhollow/custody-server/internal/infra/sim"
	"github.com/penhollow/custody-server/internal/infra/storage"
	"github.com/penhollow/custody-server/internal/network"
	"github.com/penhollow/custody-server/internal/platform/logger"
	"github.com/penhollow/custody-server/internal/platform/metrics"
	"github.com/penhollow/custody-server/internal/sentencing"
)

func main() {
	var (
		addr     = flag.String("addr", ":8080", "HTTP listen address")
		dbPath   = flag.String("db", "custody.db", "SQLite database path")
		officers = flag.Int("officers", 3, "escort officers on shift")
	)
	flag.Parse()

	log.Println("[CUSTODY-SERVER] Initializing facility custody core...")

	appLogger := logger.NewLogger()
	collector := metrics.NewCollector()

	appLogger.Info("Initializing SQLite database '" + *dbPath + "'...")
	db, err := storage.InitSQLite(*dbPath)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: " + err.Error())
		os.Exit(1)
	}

	eventRepo := storage.NewSQLiteEventRepository(db)
	offenseRepo := storage.NewSQLiteOffenseRepository(db)
	custodyRepo := storage.NewSQLiteCustodyRepository(db)
	persister := storage.NewEventPersisterAdapter(eventRepo, offenseRepo, collector)

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(persister)

	appLogger.Info("Bootstrapping notification hub wiring...")
	notifier := network.NewHubNotifier(eventLog)

	appLogger.Info("Bootstrapping sentencing tables...")
	cfg := sentencing.DefaultConfig()
	sentCalc := sentencing.NewSentenceCalculator(cfg, appLogger)
	fineCalc := sentencing.NewFineCalculator(cfg, appLogger)
	supCalc := sentencing.NewSupervisionCalculator(cfg, appLogger)

	appLogger.Info("Bootstrapping facility simulation collaborators...")
	world := sim.NewWorld()
	doors := sim.NewDoorBank(appLogger)
	property := sim.NewPropertyDesk(appLogger)
	supervision := sim.NewSupervisionLedger(appLogger)

	releaseCfg := engine.DefaultReleaseConfig()
	pool := engine.NewGuardPool(appLogger, func() engine.EscortWorker {
		return sim.NewOfficer("OFFICER_STANDBY", releaseCfg.StoragePoint, world, appLogger)
	})
	for i := 0; i < *officers; i++ {
		post := engine.Point{X: float64(i * 4), Y: 0, Z: 5}
		pool.AddWorker(sim.NewOfficer("OFFICER_"+strconv.Itoa(i+1), post, world, appLogger))
	}

	appLogger.Info("Bootstrapping Engine Subsystems...")
	ticker := engine.NewTicker(eventLog, appLogger, collector)
	allocator := engine.NewCellAllocator(engine.DefaultCellAllocatorConfig(), doors, eventLog, appLogger)
	booking := engine.NewBookingPipeline(engine.DefaultBookingConfig(), pool, property, notifier, eventLog, appLogger, collector)
	release := engine.NewReleaseOrchestrator(releaseCfg, pool, property, supervision, custodyRepo, world, notifier, supCalc, eventLog, appLogger, collector)

	eng := engine.NewEngine(engine.EngineDeps{
		Ticker:       ticker,
		EventLog:     eventLog,
		Pool:         pool,
		Allocator:    allocator,
		Booking:      booking,
		Release:      release,
		SentenceCalc: sentCalc,
		FineCalc:     fineCalc,
		Recorder:     custodyRepo,
		Notifier:     notifier,
		Logger:       appLogger,
		Metrics:      collector,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger.Info("Reconstructing custody state from SQLite...")
	if err := eng.Restore(); err != nil {
		appLogger.Error("State reconstruction failed: " + err.Error())
		os.Exit(1)
	}

	eng.Start(ctx)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(eng, appLogger, collector)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	// Setup API Routes
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		network.ServeWs(hub, w, r)
	})

	http.HandleFunc("/metrics", collector.Handler())

	http.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(eng.Snapshot())
	})

	go func() {
		log.Println("[CUSTODY-SERVER] HTTP API & WS Server listening on " + *addr)
		if err := http.ListenAndServe(*addr, nil); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[CUSTODY-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[CUSTODY-SERVER] Shutting down...")
	eng.Stop()
}
