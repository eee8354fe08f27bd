// Command simulate is the scenario driver (spec.md §2 component G):
// it builds an Engine for one routing protocol, spawns one actor
// goroutine per agent, plugs in a mobility model to rewrite the link
// map every tick, optionally serves a live observer websocket, injects
// a batch of random message requests, and steps the engine until every
// request is delivered or the tick budget runs out. Modeled on the
// teacher's apps/api/cmd/server/main.go: env-var configuration, a
// background HTTP server, graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/leviska/radio-message/actors/cbr"
	"github.com/leviska/radio-message/actors/dsdv"
	"github.com/leviska/radio-message/actors/gossip"
	"github.com/leviska/radio-message/engine"
	"github.com/leviska/radio-message/fault"
	"github.com/leviska/radio-message/mobility"
	"github.com/leviska/radio-message/observer"
)

type config struct {
	protocol           string
	stepsCount         int
	agentsCount        int
	messagesCount      int
	fieldSize          float64
	minVelocity        float64
	maxVelocity        float64
	maxConnectionRange float64
	startupAwait       time.Duration
	seed               int64
	port               string
	enableObserver     bool
}

func loadConfig() config {
	return config{
		protocol:           getenv("PROTOCOL", "gossip"),
		stepsCount:         getenvInt("STEPS_COUNT", 5000),
		agentsCount:        getenvInt("AGENTS_COUNT", 10),
		messagesCount:      getenvInt("MESSAGES_COUNT", 10),
		fieldSize:          getenvFloat("FIELD_SIZE", 1000),
		minVelocity:        getenvFloat("MIN_VELOCITY", 1),
		maxVelocity:        getenvFloat("MAX_VELOCITY", 10),
		maxConnectionRange: getenvFloat("MAX_CONNECTION_RANGE", 0),
		startupAwait:       time.Duration(getenvInt("STARTUP_AWAIT", 0)) * time.Millisecond,
		seed:               int64(getenvInt("SEED", int(time.Now().UnixNano()%1_000_000))),
		port:               getenv("PORT", "8080"),
		enableObserver:     getenv("ENABLE_OBSERVER", "") != "",
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("simulate: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("simulate: invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}

func main() {
	cfg := loadConfig()
	log.Printf("simulate: protocol=%s agents=%d messages=%d steps=%d seed=%d",
		cfg.protocol, cfg.agentsCount, cfg.messagesCount, cfg.stepsCount, cfg.seed)

	switch cfg.protocol {
	case "gossip":
		run[gossip.Message](cfg, gossip.Run)
	case "dsdv":
		run[dsdv.Message](cfg, dsdv.Run)
	case "cbr":
		run[cbr.Message](cfg, cbr.Run)
	default:
		log.Fatalf("simulate: unknown PROTOCOL %q (want gossip, dsdv, or cbr)", cfg.protocol)
	}
}

// run builds and drives the simulation for one protocol payload type,
// generic over T the way engine.Engine and engine.Context are.
func run[T any](cfg config, spawn func(*engine.Context[T])) {
	eng, contexts := engine.NewSeeded[T](cfg.agentsCount, cfg.seed)

	bus := observer.NewBus()
	eng.SetEmitter(bus)

	injector := fault.NewInjector(eng.Conn, cfg.agentsCount, bus)

	done := make(chan struct{})
	var hub *observer.Hub
	var server *http.Server
	if cfg.enableObserver {
		hub = observer.NewHub()
		go hub.Run(done)
		hub.Attach(bus, done)
		go observer.RunSnapshots(bus, eng.Stats, time.Second, done)
		server = startObserverServer(cfg.port, hub)
	}

	for _, ctx := range contexts {
		go spawn(ctx)
	}

	mobilityRng := rand.New(rand.NewSource(cfg.seed))
	updater := mobility.NewRandomWaypoint(cfg.agentsCount, cfg.fieldSize, cfg.minVelocity, cfg.maxVelocity, cfg.maxConnectionRange, mobilityRng)

	if cfg.startupAwait > 0 {
		time.Sleep(cfg.startupAwait)
	}

	for i := 0; i < cfg.messagesCount; i++ {
		eng.RequestRandom()
	}

	shutdownRequested := make(chan os.Signal, 1)
	signal.Notify(shutdownRequested, syscall.SIGINT, syscall.SIGTERM)

	tick := 0
stepLoop:
	for tick < cfg.stepsCount && !eng.Stats.AllDelivered() {
		select {
		case <-shutdownRequested:
			log.Printf("simulate: shutdown requested at tick %d", eng.CurrentStep())
			break stepLoop
		default:
		}
		updater.Update(eng.Conn)
		injector.Tick(eng.CurrentStep())
		eng.Step()
		tick++
	}

	eng.Shutdown()
	close(done)
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("simulate: observer server shutdown error: %v", err)
		}
	}

	avg, ok := eng.Stats.AvgDeliveryTime()
	log.Printf("simulate: finished at tick %d: delivered=%d/%d total_envelopes=%d avg_delivery_time=%v (ok=%v)",
		eng.CurrentStep(), eng.Stats.DeliveredCount(), eng.Stats.MessageCount(), eng.Stats.Total(), avg, ok)
}

func startObserverServer(port string, hub *observer.Hub) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"clients": hub.ClientCount(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("simulate: observer listening on :%s (ws://localhost:%s/ws)", port, port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("simulate: observer server error: %v", err)
		}
	}()
	return server
}
