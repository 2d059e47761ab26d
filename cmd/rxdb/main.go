package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/hoanglam10499/rxdb"
	"github.com/hoanglam10499/rxdb/cluster/gossip"
	"github.com/hoanglam10499/rxdb/cluster/raftelect"
	"github.com/hoanglam10499/rxdb/internal/infra/buildinfo"
	"github.com/hoanglam10499/rxdb/internal/infra/confloader"
	"github.com/hoanglam10499/rxdb/internal/infra/shutdown"
	"github.com/hoanglam10499/rxdb/internal/server/config"
	"github.com/hoanglam10499/rxdb/internal/server/opsserver"
	"github.com/hoanglam10499/rxdb/internal/telemetry/logger"
	"github.com/hoanglam10499/rxdb/storage"
	"github.com/hoanglam10499/rxdb/storage/badgerstore"
	"github.com/hoanglam10499/rxdb/storage/memory"
)

// raftMembershipTimeout bounds voter add/remove calls made from
// gossip membership callbacks.
const raftMembershipTimeout = 10 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the rxdb command tree.
func newApp() *cli.App {
	return &cli.App{
		Name:    "rxdb",
		Usage:   "reactive document database daemon",
		Version: buildinfo.Get().Version,
		Commands: []*cli.Command{
			serveCommand(),
			removeCommand(),
			versionCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the database daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"RXDB_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			return runServe(c.String("config"))
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, "rxdb", buildinfo.String())
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:  "remove",
		Usage: "Erase a database and all of its collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "name",
				Usage:    "Database name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Storage adapter (memory, badger)",
				Value: config.DefaultAdapter,
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Badger data directory",
			},
		},
		Action: func(c *cli.Context) error {
			return runRemove(c.String("name"), c.String("adapter"), c.String("dir"))
		},
	}
}

// runServe starts the database and blocks until a shutdown signal
// arrives.
func runServe(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	logger.SetDefault(log)

	build := buildinfo.Get()
	log.Info("starting rxdb",
		"version", build.Version,
		"commit", build.Commit,
		"database", cfg.Database.Name,
		"adapter", cfg.Database.Adapter,
		"multi_instance", cfg.Database.MultiInstance,
		"config", configFile)

	registry := prometheus.NewRegistry()

	adapter, closeAdapter, err := openAdapter(cfg.Database.Adapter, cfg.Database.Dir, registry, log)
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}

	dbCfg := rxdb.DefaultConfig(cfg.Database.Name, adapter)
	dbCfg.Password = cfg.Database.Password
	dbCfg.MultiInstance = cfg.Database.MultiInstance
	dbCfg.EventBuffer = cfg.Database.EventBuffer
	dbCfg.PublishRate = rate.Limit(cfg.Database.PublishRate)
	dbCfg.PublishBurst = cfg.Database.PublishBurst
	dbCfg.Logger = log

	var election *raftelect.Election
	var transport *gossip.Transport
	if cfg.Cluster.Enabled {
		if election, transport, err = joinCluster(cfg, log); err != nil {
			closeAdapter()
			return fmt.Errorf("join cluster: %w", err)
		}
		dbCfg.Election = election
		dbCfg.Transport = transport
	}

	db, err := rxdb.Open(context.Background(), dbCfg)
	if err != nil {
		// The handle adopts the cluster components only once Open
		// succeeds. Destroy and Close are idempotent, so unwinding
		// here is safe even if Open already tore one of them down.
		if transport != nil {
			transport.Close()
		}
		if election != nil {
			election.Destroy()
		}
		closeAdapter()
		return fmt.Errorf("open database: %w", err)
	}
	db.RegisterMetrics(registry)

	handler := shutdown.NewHandler(30 * time.Second)

	// Hooks run in reverse registration order: the watcher and ops
	// server stop before the database, the database before its adapter.
	handler.OnShutdown(func(context.Context) error {
		log.Info("closing storage adapter")
		return closeAdapter()
	})
	handler.OnShutdown(func(ctx context.Context) error {
		log.Info("destroying database handle")
		return db.Destroy(ctx)
	})

	if cfg.Server.Ops.Enabled {
		ops := opsserver.New(opsserver.Config{
			Addr:     cfg.Server.Ops.Addr,
			Database: db,
			Gatherer: registry,
			Logger:   log,
		})
		if err := ops.Start(); err != nil {
			db.Destroy(context.Background())
			closeAdapter()
			return fmt.Errorf("start ops server: %w", err)
		}
		log.Info("ops server listening", "addr", ops.Addr())
		handler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down ops server")
			return ops.Shutdown(ctx)
		})
	}

	if configFile != "" {
		watcher, err := watchConfig(configFile, log)
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		} else {
			handler.OnShutdown(func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("rxdb started")
	if err := handler.Wait(); err != nil {
		log.Error("shutdown finished with errors", "error", err)
		return err
	}
	log.Info("rxdb stopped")
	return nil
}

// runRemove erases a database that is not open anywhere.
func runRemove(name, adapterKind, dir string) error {
	if adapterKind == "badger" && dir == "" {
		return fmt.Errorf("the badger adapter requires --dir")
	}

	log := logger.New(logger.Config{Level: "warn", Format: "text", Output: os.Stderr})

	adapter, closeAdapter, err := openAdapter(adapterKind, dir, nil, log)
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer closeAdapter()

	if err := rxdb.RemoveDatabase(context.Background(), name, adapter); err != nil {
		return fmt.Errorf("remove database: %w", err)
	}

	fmt.Printf("removed database %q\n", name)
	return nil
}

// loadConfig layers defaults, the optional YAML file and RXDB_
// environment variables, then validates the result.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// openAdapter builds the configured storage adapter. The returned
// close function is a no-op for adapters without cleanup. A nil
// registry skips metrics registration.
func openAdapter(kind, dir string, registry *prometheus.Registry, log *slog.Logger) (storage.Adapter, func() error, error) {
	switch kind {
	case "memory":
		return memory.New(), func() error { return nil }, nil
	case "badger":
		bcfg := badgerstore.DefaultConfig(dir)
		bcfg.Logger = log
		a, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, nil, err
		}
		if registry != nil {
			a.RegisterMetrics(registry)
		}
		return a, a.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", kind)
	}
}

// joinCluster starts the raft election and gossip transport. Every
// node registers the same membership callbacks; the leadership check
// inside them decides which node actually changes raft membership, so
// voters follow the mesh no matter where leadership sits.
func joinCluster(cfg *config.Config, log *slog.Logger) (*raftelect.Election, *gossip.Transport, error) {
	config.EnsureNodeID(cfg, log)

	election, err := raftelect.New(config.ToRaftConfig(cfg, log))
	if err != nil {
		return nil, nil, fmt.Errorf("start raft election: %w", err)
	}

	transport, err := gossip.New(config.ToGossipConfig(cfg, log))
	if err != nil {
		election.Destroy()
		return nil, nil, fmt.Errorf("start gossip transport: %w", err)
	}

	transport.OnJoin(func(nodeID, addr, meta string) {
		if nodeID == cfg.Cluster.NodeID {
			return
		}
		database, raftAddr := config.SplitMeshMeta(meta)
		if database != cfg.Database.Name {
			log.Warn("instance for another database joined the mesh",
				"node_id", nodeID,
				"database", database)
			return
		}
		if raftAddr == "" {
			log.Warn("node joined without a raft address",
				"node_id", nodeID,
				"gossip_addr", addr)
			return
		}
		if !election.IsLeader() {
			return
		}
		if err := election.AddVoter(nodeID, raftAddr, raftMembershipTimeout); err != nil {
			log.Error("failed to add raft voter",
				"node_id", nodeID,
				"raft_addr", raftAddr,
				"error", err)
		}
	})

	transport.OnLeave(func(nodeID string) {
		if nodeID == cfg.Cluster.NodeID || !election.IsLeader() {
			return
		}
		if err := election.RemoveServer(nodeID, raftMembershipTimeout); err != nil {
			log.Error("failed to remove raft voter",
				"node_id", nodeID,
				"error", err)
		}
	})

	return election, transport, nil
}

// watchConfig reloads the log level when the configuration file
// changes. Other settings require a restart.
func watchConfig(configFile string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(path string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("ignoring invalid configuration change",
				"path", path,
				"error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})

	watcher.StartAsync()
	return watcher, nil
}
