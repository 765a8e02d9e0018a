package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"npcbots.ai/internal/persistence/botdb"
	persistlog "npcbots.ai/internal/persistence/log"
	"npcbots.ai/internal/sim/autobalance"
	"npcbots.ai/internal/sim/botdata"
	"npcbots.ai/internal/sim/botgen"
	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/tuning"
	"npcbots.ai/internal/sim/wander"
	"npcbots.ai/internal/sim/world"
	"npcbots.ai/internal/transport/observer"
	"npcbots.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dbPath       = flag.String("db", "", "bot database path (default: <data>/npcbots.sqlite)")
		disableSpawn = flag.Bool("disable_spawn", false, "load bot records without placing bots into the world")
		seedDir      = flag.String("seed_dir", "", "seed bot tables from this directory before loading (optional)")
		seed         = flag.Int64("seed", 0, "random seed for generation and wandering (0: time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		Addr:         *addr,
		ConfigDir:    *configDir,
		DataDir:      *dataDir,
		TuningPath:   strings.TrimSpace(*tuningPath),
		DBPath:       strings.TrimSpace(*dbPath),
		DisableSpawn: *disableSpawn,
		SeedDir:      strings.TrimSpace(*seedDir),
		Seed:         *seed,
	}
	if err := run(ctx, opts, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

type options struct {
	Addr         string
	ConfigDir    string
	DataDir      string
	TuningPath   string
	DBPath       string
	DisableSpawn bool
	SeedDir      string
	Seed         int64
}

func run(ctx context.Context, opts options, logger *log.Logger) error {
	if opts.TuningPath == "" {
		opts.TuningPath = filepath.Join(opts.ConfigDir, "tuning.yaml")
	}
	if opts.DBPath == "" {
		opts.DBPath = filepath.Join(opts.DataDir, "npcbots.sqlite")
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return err
	}

	tune, err := tuning.Load(opts.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	cats, err := catalogs.Load(opts.ConfigDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	logger.Printf(">> Loaded catalogs (digest %s)", cats.Digest()[:12])

	store, err := botdb.OpenSQLite(opts.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open bot db: %w", err)
	}
	defer store.Close()

	if opts.SeedDir != "" {
		if _, err := store.SeedFromDir(ctx, opts.SeedDir); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	nodes, err := store.LoadWanderNodes(ctx)
	if err != nil {
		return fmt.Errorf("load wander nodes: %w", err)
	}
	graph, err := wander.Build(botdb.WanderRows(nodes), wander.Options{
		Maps:    tune.Wander.Maps,
		MaxDist: tune.Wander.ConnectionDistMax,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build wander graph: %w", err)
	}

	audit := persistlog.NewAuditLogger(opts.DataDir)
	defer audit.Close()
	hub := observer.NewHub(logger)
	notify := fanout{hub: hub, audit: audit, logger: logger}

	registry := botdata.NewRegistry(botdata.Config{
		DB:        store,
		Equipment: cats,
		Logger:    logger,
		Notifier:  notify,
	})
	live := botdata.NewLiveIndex(cats, logger, notify)

	scaler := autobalance.New(autobalance.Config{
		AutoBalance: tune.AutoBalance,
		Rates:       tune.CreatureRates,
		Data:        cats,
		Bots:        world.NewBots(live, registry),
		Notifier:    notify,
		Logger:      logger,
		Rand:        rand.New(rand.NewSource(opts.Seed)),
	})

	w, err := world.New(world.Config{
		TickRateHz: tune.TickRateHz,
		Seed:       opts.Seed,
		Data:       cats,
		Registry:   registry,
		Live:       live,
		Graph:      graph,
		Scaler:     scaler,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if tune.Bots.Enabled {
		if err := loadBots(ctx, tune, opts, store, cats, graph, registry, live, w, logger); err != nil {
			return err
		}
	} else {
		logger.Printf("bots disabled in tuning; skipping bot data")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, live, store, hub))
	observer.NewServer(observer.Config{
		Hub:     hub,
		Bots:    registry,
		Live:    live,
		Graph:   graph,
		Balance: scaler,
		World:   w,
		Logger:  logger,
	}).Register(mux)
	mux.HandleFunc("/v1/session/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Printf("listening on %s", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		w.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := store.Sync(sctx); serr != nil {
		logger.Printf("bot db sync: %v", serr)
	}
	logger.Printf("shutdown complete (db %+v)", store.Stats())
	return err
}

// loadBots reads the bot tables, places persisted bots, generates the wandering
// bots and restores their group memberships.
func loadBots(ctx context.Context, tune tuning.Tuning, opts options, store *botdb.SQLiteStore, cats *catalogs.Catalogs,
	graph *wander.Graph, registry *botdata.Registry, live *botdata.LiveIndex, w *world.World, logger *log.Logger) error {
	var spawner botdata.Spawner
	if tune.Bots.Spawn && !opts.DisableSpawn {
		spawner = w
	}
	if _, err := registry.LoadAll(ctx, store, spawner); err != nil {
		return fmt.Errorf("load bots: %w", err)
	}

	if spawner != nil && tune.Bots.WanderingCount > 0 {
		gen := botgen.New(botgen.Config{
			Bots:      tune.Bots,
			Templates: cats,
			Counter:   store,
			Graph:     graph,
			Registry:  registry,
			Live:      live,
			Spawner:   w,
			Rand:      rand.New(rand.NewSource(opts.Seed ^ 0x5eed)),
			Logger:    logger,
		})
		if _, err := gen.GenerateBatch(ctx, tune.Bots.WanderingCount); err != nil {
			return fmt.Errorf("generate wandering bots: %w", err)
		}
	}

	groups, err := store.LoadGroups(ctx)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	for _, gr := range groups {
		w.AddGroup(gr.GUID, gr.LeaderGUID)
	}
	n, err := registry.LoadGroupMembers(ctx, store, w)
	if err != nil {
		return err
	}
	logger.Printf(">> Loaded %d bot group members in %d groups", n, len(groups))
	return nil
}

// fanout delivers bot and scaler events to the observer hub and the audit log.
type fanout struct {
	hub    *observer.Hub
	audit  *persistlog.AuditLogger
	logger *log.Logger
}

func (f fanout) Notify(kind string, entry uint32, fields map[string]any) {
	f.hub.Notify(kind, entry, fields)
	if err := f.audit.Audit(kind, entry, fields); err != nil {
		f.logger.Printf("audit %s: %v", kind, err)
	}
}

func metricsHandler(w *world.World, live *botdata.LiveIndex, store *botdb.SQLiteStore, hub *observer.Hub) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP npcbots_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_world_tick gauge\n")
		fmt.Fprintf(rw, "npcbots_world_tick %d\n", w.Tick())

		maps := w.Maps()
		fmt.Fprintf(rw, "# HELP npcbots_world_map_creatures Creatures per map instance.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_world_map_creatures gauge\n")
		for _, m := range maps {
			fmt.Fprintf(rw, "npcbots_world_map_creatures{map=\"%d\",instance=\"%d\"} %d\n", m.MapID, m.InstanceID, m.Creatures)
		}
		fmt.Fprintf(rw, "# HELP npcbots_world_map_players Players per map instance.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_world_map_players gauge\n")
		for _, m := range maps {
			fmt.Fprintf(rw, "npcbots_world_map_players{map=\"%d\",instance=\"%d\"} %d\n", m.MapID, m.InstanceID, m.Players)
		}

		fmt.Fprintf(rw, "# HELP npcbots_live_bots Bots present in the world.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_live_bots gauge\n")
		fmt.Fprintf(rw, "npcbots_live_bots %d\n", live.Len())

		s := store.Stats()
		fmt.Fprintf(rw, "# HELP npcbots_db_queue_depth Pending asynchronous bot db writes.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_db_queue_depth gauge\n")
		fmt.Fprintf(rw, "npcbots_db_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP npcbots_db_dropped_total Writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_db_dropped_total counter\n")
		fmt.Fprintf(rw, "npcbots_db_dropped_total %d\n", s.DropTotal)
		fmt.Fprintf(rw, "# HELP npcbots_db_ops_committed_total Statements committed by the writer.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_db_ops_committed_total counter\n")
		fmt.Fprintf(rw, "npcbots_db_ops_committed_total %d\n", s.OpsCommitted)
		fmt.Fprintf(rw, "# HELP npcbots_db_tx_fail_total Failed write transactions.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_db_tx_fail_total counter\n")
		fmt.Fprintf(rw, "npcbots_db_tx_fail_total %d\n", s.TxFailTotal)

		fmt.Fprintf(rw, "# HELP npcbots_observer_subscribers Connected observer sockets.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_observer_subscribers gauge\n")
		fmt.Fprintf(rw, "npcbots_observer_subscribers %d\n", hub.Subscribers())
		fmt.Fprintf(rw, "# HELP npcbots_observer_dropped_total Events dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE npcbots_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "npcbots_observer_dropped_total %d\n", hub.Dropped())
	}
}
