// Command agentnode runs a single A2A protocol node: it loads its
// configuration, wires the task lifecycle, dispatch, checkpoint, and
// (optionally) orchestrator subsystems together, and serves the node's
// HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
	"github.com/a2arun/agentnode/internal/checkpoint/mongostore"
	"github.com/a2arun/agentnode/internal/checkpoint/redisstore"
	"github.com/a2arun/agentnode/internal/config"
	"github.com/a2arun/agentnode/internal/dispatcher"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/orchestrator"
	"github.com/a2arun/agentnode/internal/peer"
	"github.com/a2arun/agentnode/internal/server"
	"github.com/a2arun/agentnode/internal/taskmanager"
	"github.com/a2arun/agentnode/internal/taskstore"
	"github.com/a2arun/agentnode/internal/telemetry"
	"github.com/a2arun/agentnode/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("AGENTNODE_CONFIG"), "path to the node's YAML config file")
		debug      = flag.Bool("debug", false, "enable debug-level logging")
	)
	flag.Parse()

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatJSON))
	if *debug {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx, *configPath); err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tel := telemetry.Telemetry{
		Log:     telemetry.NewClueLogger(),
		Metrics: telemetry.NewOTelMetrics("github.com/a2arun/agentnode"),
		Tracer:  telemetry.NewOTelTracer("github.com/a2arun/agentnode"),
	}

	checkpointStore, cleanup, err := newCheckpointStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	defer cleanup()

	store := taskstore.New()
	queues := eventqueue.NewRegistry(cfg.Queue.CapacityPerTask, cfg.Queue.CapacityPerTask)
	active, completed, failed := cfg.Retention.Days()
	policy := checkpoint.RetentionPolicy{Active: active, Completed: completed, Failed: failed}
	sync := checkpoint.NewSynchronizer(checkpointStore, policy, cfg.Checkpoint.Interval())
	threadMap := checkpoint.NewThreadMap()

	manager := taskmanager.NewManager(store, queues, sync, threadMap, tel)
	adapter := worker.NewAdapter(store, queues, sync, threadMap, 5*time.Second, tel)

	newWorker, err := newWorkerFactory(cfg, tel)
	if err != nil {
		return fmt.Errorf("worker factory: %w", err)
	}

	d := dispatcher.New(dispatcher.Config{
		Store:     store,
		Queues:    queues,
		Manager:   manager,
		Adapter:   adapter,
		NewWorker: newWorker,
		Start: func(ctx context.Context, w worker.Worker, req worker.StartRequest) (<-chan worker.WorkerItem, error) {
			return w.Start(ctx, req)
		},
		Resume: func(ctx context.Context, w worker.Worker, req worker.ResumeRequest) (<-chan worker.WorkerItem, error) {
			return w.Resume(ctx, req)
		},
		Telemetry: tel,
		Schemas:   a2atypes.NewSchemaRegistry(),
	})

	// Recover-on-start: before the node accepts its first request, walk the
	// task checkpoints and log those that carry worker state. No task is
	// restored into the task store and no worker is resumed.
	if err := checkpoint.Recover(ctx, checkpointStore, func(taskID string, snapshot []byte) {
		if len(snapshot) == 0 {
			return
		}
		log.Info(ctx, log.KV{K: "msg", V: "recovered checkpoint"}, log.KV{K: "taskId", V: taskID})
	}); err != nil {
		return fmt.Errorf("recover checkpoints: %w", err)
	}

	card := buildAgentCard(cfg)
	srv := server.New(d, card, cfg, tel)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, log.KV{K: "msg", V: "listening"}, log.KV{K: "addr", V: cfg.Addr()})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newCheckpointStore constructs the configured checkpoint.Store along with
// a cleanup func releasing any underlying connection.
func newCheckpointStore(ctx context.Context, cfg config.Config) (checkpoint.Store, func(), error) {
	switch cfg.Checkpoint.Backend {
	case config.CheckpointBackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Checkpoint.RedisAddr})
		store, err := redisstore.New(ctx, "agentnode", rdb, redisstore.Options{})
		if err != nil {
			_ = rdb.Close()
			return nil, func() {}, err
		}
		return store, func() { _ = rdb.Close() }, nil
	case config.CheckpointBackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Checkpoint.MongoURI))
		if err != nil {
			return nil, func() {}, err
		}
		db := cfg.Checkpoint.MongoDB
		if db == "" {
			db = "agentnode"
		}
		coll := client.Database(db).Collection("checkpoints")
		store := mongostore.New(coll)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, func() {}, err
		}
		return store, func() { _ = client.Disconnect(ctx) }, nil
	default:
		return checkpoint.NewMemoryStore(), func() {}, nil
	}
}

// newWorkerFactory returns the worker.Worker constructor the dispatcher
// spawns per task. When peers are configured, every task is driven by the
// orchestrator coordinator, fanning out to each configured peer's skill
// and aggregating their responses; this is a reference wiring, not a
// reasoning brain, which remains out of this repo's scope (spec.md §1).
func newWorkerFactory(cfg config.Config, tel telemetry.Telemetry) (func() worker.Worker, error) {
	if len(cfg.Peers) == 0 {
		return func() worker.Worker { return passthroughWorker{} }, nil
	}

	routes := make(map[string]string, len(cfg.Peers))
	skills := make([]string, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		skillIDs := p.SkillsOverride
		if len(skillIDs) == 0 {
			skillIDs = []string{p.Name}
		}
		for _, skillID := range skillIDs {
			routes[skillID] = p.BaseURL
			skills = append(skills, skillID)
		}
	}
	router := orchestrator.NewStaticRouter(routes)
	planner := orchestrator.BroadcastPlanner{Skills: skills}

	caller := peer.NewClient(
		peer.WithHTTPClient(&http.Client{Timeout: cfg.Timeouts.PeerTotal()}),
	)

	return func() worker.Worker {
		return orchestrator.New(orchestrator.Config{
			Planner:    planner,
			Router:     router,
			Aggregator: orchestrator.ConcatAggregator{},
			Caller:     caller,
		})
	}, nil
}

// passthroughWorker is the zero-configuration fallback worker: it echoes
// the triggering message back as the task's final output. It exists so a
// node with no peers configured still runs end to end; any real
// deployment supplies its own worker.Worker implementation in place of
// newWorkerFactory's default.
type passthroughWorker struct{}

func (passthroughWorker) Start(_ context.Context, req worker.StartRequest) (<-chan worker.WorkerItem, error) {
	ch := make(chan worker.WorkerItem, 1)
	ch <- worker.WorkerItem{Kind: worker.ItemFinal, FinalParts: req.Parts}
	close(ch)
	return ch, nil
}

func (passthroughWorker) Resume(_ context.Context, req worker.ResumeRequest) (<-chan worker.WorkerItem, error) {
	ch := make(chan worker.WorkerItem, 1)
	ch <- worker.WorkerItem{Kind: worker.ItemFinal, FinalParts: req.Parts}
	close(ch)
	return ch, nil
}

func (passthroughWorker) Cancel(context.Context, string) error { return nil }

func (passthroughWorker) Snapshot(context.Context, string) ([]byte, error) { return nil, nil }

func buildAgentCard(cfg config.Config) a2atypes.AgentCard {
	skills := make([]a2atypes.Skill, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		skills = append(skills, a2atypes.Skill{ID: p.Name, Name: p.Name})
	}
	return a2atypes.AgentCard{
		Name:        "agentnode",
		Version:     "0.1.0",
		Description: "A2A protocol agent node",
		Endpoints:   a2atypes.Endpoints{RPC: "http://" + cfg.Addr() + "/"},
		Skills:      skills,
		Capabilities: a2atypes.Capabilities{
			Streaming: true,
		},
		AuthenticationSchemes: cfg.Auth.Schemes,
	}
}
