// The engine binary runs the bot engagement loops against a persistent
// datastore, with Gemini-backed generation and a Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"github.com/quillpost/botengine/pkg/config"
	"github.com/quillpost/botengine/pkg/engine"
	"github.com/quillpost/botengine/pkg/planner"
	"github.com/quillpost/botengine/pkg/roster"
	"github.com/quillpost/botengine/pkg/store"
	"github.com/quillpost/botengine/pkg/textgen"
	"github.com/quillpost/botengine/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DataPath)
	if err != nil {
		log.Fatalf("Failed to open datastore at %s: %v", cfg.DataPath, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("datastore close failed", "err", err)
		}
	}()

	if err := seedRoster(ctx, st, cfg.BotCount, cfg.RandSeed); err != nil {
		log.Fatalf("Failed to seed bot roster: %v", err)
	}

	gen, err := textgen.NewGemini(ctx, textgen.GeminiConfig{
		APIKey: cfg.GoogleAPIKey,
		Model:  cfg.GoogleModel,
	})
	if err != nil {
		log.Fatalf("Failed to create Gemini generator: %v", err)
	}

	var plan planner.Planner
	if cfg.UsePlanner {
		m, err := gemini.NewModel(ctx, cfg.GoogleModel, &genai.ClientConfig{
			APIKey:  cfg.GoogleAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			log.Fatalf("Failed to create planner model (%s): %v", cfg.GoogleModel, err)
		}
		plan, err = planner.NewADK(m, logger)
		if err != nil {
			log.Fatalf("Failed to create planner: %v", err)
		}
	} else {
		plan = planner.NewHeuristic(rand.New(rand.NewSource(cfg.RandSeed)))
	}

	events, err := engine.NewJSONLLogger(cfg.EventLog)
	if err != nil {
		log.Fatalf("Failed to open event log %s: %v", cfg.EventLog, err)
	}

	var genRate rate.Limit
	if cfg.GenerationRPM > 0 {
		genRate = rate.Limit(cfg.GenerationRPM / 60)
	}

	eng := engine.New(engine.Config{
		Store:           st,
		Generator:       gen,
		Planner:         plan,
		Log:             logger,
		Events:          events,
		TickInterval:    cfg.TickInterval,
		ProcessInterval: cfg.ProcessInterval,
		BatchLimit:      cfg.BatchLimit,
		GenerationRate:  genRate,
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	fmt.Println("=== Quillpost Bot Engine ===")
	fmt.Printf("Model: %s\n", cfg.GoogleModel)
	fmt.Printf("Data: %s\n", cfg.DataPath)
	fmt.Printf("Event log: %s\n", cfg.EventLog)
	fmt.Printf("Tick: %s, process: %s, batch: %d\n", cfg.TickInterval, cfg.ProcessInterval, cfg.BatchLimit)

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Engine stopped: %v", err)
	}
	logger.Info("engine shut down", "ticks", eng.Ticks())
}

// seedRoster inserts generated profiles for any roster slot not already in
// the store. Existing profiles are left untouched so operator edits survive
// restarts.
func seedRoster(ctx context.Context, st store.Store, count int, seed int64) error {
	for _, bot := range roster.GenerateProfiles(count, seed) {
		_, err := st.GetBot(ctx, bot.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := st.PutBot(ctx, types.NormalizeBot(bot)); err != nil {
			return err
		}
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
