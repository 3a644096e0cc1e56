package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clawverse.ai/internal/mind"
	persistlog "clawverse.ai/internal/persistence/log"
	"clawverse.ai/internal/sim/tuning"
	"clawverse.ai/internal/sim/world"
	"clawverse.ai/internal/transport/api"
	"clawverse.ai/internal/transport/observer"
	"clawverse.ai/internal/transport/ws"
	"clawverse.ai/internal/wiki"
)

var serveFlags struct {
	addr       string
	worldID    string
	tuningPath string
	publicURL  string
	seedWiki   bool
	agents     int
	worldSeed  uint64
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the town server",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", ":8080", "http listen address")
	f.StringVar(&serveFlags.worldID, "world", "town", "world id")
	f.StringVar(&serveFlags.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	f.StringVar(&serveFlags.publicURL, "public-url", "", "external base URL used in agent registration documents")
	f.BoolVar(&serveFlags.seedWiki, "seed-wiki", true, "reseed the wiki from <configs>/seed.yaml at startup")
	f.IntVar(&serveFlags.agents, "agents", 0, "autonomous agents to spawn at startup")
	f.Uint64Var(&serveFlags.worldSeed, "seed", 0, "world seed for spawn positions (0 = random)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp := serveFlags.tuningPath
	if tp == "" {
		tp = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.LoadOrDefault(tp)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	arch, err := buildMirror(dataDir, logger)
	if err != nil {
		return err
	}
	onClose := persistlog.WithOnClose(arch.Enqueue)
	activityLog := persistlog.NewActivityLogger(dataDir, onClose)
	decisionLog := persistlog.NewDecisionLogger(dataDir, onClose)

	store, backend, err := openWikiStore(dataDir, activityLog, logger)
	if err != nil {
		return fmt.Errorf("open wiki store: %w", err)
	}
	logger.Info("wiki store opened", zap.String("backend", backend))

	// Loggers flush into the mirror, so the mirror closes last.
	defer arch.Close()
	defer func() { _ = activityLog.Close() }()
	defer func() { _ = decisionLog.Close() }()
	defer func() { _ = store.Close() }()

	if serveFlags.seedWiki {
		if err := seedFromFile(ctx, store, logger); err != nil {
			return err
		}
	}

	model, err := chooseModel(ctx, tune.LLM)
	if err != nil {
		return err
	}
	if model == nil {
		logger.Warn("no LLM configured, agents use the fallback policy")
	} else {
		logger.Info("llm configured", zap.String("model", model.Name()))
	}

	cfg := world.ConfigFromTuning(tune)
	cfg.ID = serveFlags.worldID
	cfg.Seed = serveFlags.worldSeed
	w, err := world.New(cfg, world.Options{
		Store:       store,
		Logger:      logger,
		DecisionLog: decisionLog,
		Minds: func(_, name string) world.Decider {
			return mind.New(name, model, mind.Config{
				MemoryCapacity: tune.Mind.MemoryCapacity,
				PromptMemories: tune.Mind.PromptMemories,
				Fallback: mind.FallbackConfig{
					Width:         tune.World.Width,
					Height:        tune.World.Height,
					PMove:         tune.Mind.FallbackPMove,
					PWrite:        tune.Mind.FallbackPWrite,
					WriteCooldown: tune.Mind.WriteCooldown,
				},
			}, logger)
		},
	})
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}

	mux := http.NewServeMux()
	api.NewServer(api.Options{
		Store:     store,
		World:     w,
		Logger:    logger,
		Mirror:    arch,
		PublicURL: serveFlags.publicURL,
	}).Register(mux)
	obs := observer.NewServer(w, logger)
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              serveFlags.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("world stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", serveFlags.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return spawnAgents(gctx, w, serveFlags.agents, logger) })

	err = g.Wait()
	logger.Info("server stopped", zap.Uint64("tick", w.CurrentTick()))
	return err
}

// spawnAgents queues n autonomous joins and waits for each reply.
func spawnAgents(ctx context.Context, w *world.World, n int, logger *zap.Logger) error {
	for i := 0; i < n; i++ {
		resp := make(chan world.JoinResponse, 1)
		select {
		case w.Join() <- world.JoinRequest{Controller: world.ControllerAutonomous, Resp: resp}:
		case <-ctx.Done():
			return nil
		}
		select {
		case jr := <-resp:
			if jr.Err != nil {
				return fmt.Errorf("spawn agent: %w", jr.Err)
			}
			logger.Info("spawned agent", zap.String("agent_id", jr.Agent.ID), zap.String("name", jr.Agent.Name))
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func seedFromFile(ctx context.Context, store wiki.Store, logger *zap.Logger) error {
	articles, err := wiki.LoadSeed(seedPath())
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no seed file, skipping", zap.String("path", seedPath()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	n, err := wiki.Seed(ctx, store, articles)
	if err != nil {
		return err
	}
	logger.Info("wiki seeded", zap.Int("articles", n))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
