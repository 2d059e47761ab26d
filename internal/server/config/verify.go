package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Verify validates the configuration. It creates missing data
// directories as a side effect so that a first start on a fresh host
// does not fail on the adapter open.
func Verify(cfg *Config) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyDatabase(&cfg.Database); err != nil {
		return err
	}
	return verifyCluster(cfg)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Ops.Enabled && cfg.Ops.Addr == "" {
		return errors.New("server.ops.addr is required when server.ops.enabled")
	}
	return nil
}

func verifyDatabase(cfg *DatabaseSection) error {
	if cfg.Name == "" {
		return errors.New("database.name is required")
	}
	// Location strings are "<name>/<store>", so the name must not
	// carry the separator.
	if strings.Contains(cfg.Name, "/") {
		return fmt.Errorf("database.name %q must not contain '/'", cfg.Name)
	}

	switch cfg.Adapter {
	case "memory":
	case "badger":
		if cfg.Dir == "" {
			return errors.New("database.dir is required for the badger adapter")
		}
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return fmt.Errorf("cannot create data directory: %w", err)
		}
	default:
		return fmt.Errorf("database.adapter %q is not supported (memory, badger)", cfg.Adapter)
	}

	if cfg.EventBuffer < 0 {
		return errors.New("database.event_buffer must not be negative")
	}
	if cfg.PublishRate < 0 {
		return errors.New("database.publish_rate must not be negative")
	}
	if cfg.PublishBurst < 0 {
		return errors.New("database.publish_burst must not be negative")
	}

	return nil
}

func verifyCluster(cfg *Config) error {
	cluster := &cfg.Cluster
	if !cluster.Enabled {
		return nil
	}

	if !cfg.Database.MultiInstance {
		return errors.New("cluster.enabled requires database.multi_instance")
	}
	if cluster.RaftAddr == "" {
		return errors.New("cluster.raft_addr is required in cluster mode")
	}
	if cluster.RaftDir == "" {
		return errors.New("cluster.raft_dir is required in cluster mode")
	}
	if err := os.MkdirAll(cluster.RaftDir, 0750); err != nil {
		return fmt.Errorf("cannot create raft directory: %w", err)
	}
	if cluster.GossipPort < 0 || cluster.GossipPort > 65535 {
		return fmt.Errorf("cluster.gossip_port %d is out of range", cluster.GossipPort)
	}
	if cluster.Bootstrap && len(cluster.Seeds) > 0 {
		return errors.New("cluster.bootstrap and cluster.seeds are mutually exclusive")
	}
	if !cluster.Bootstrap && len(cluster.Seeds) == 0 {
		return errors.New("cluster mode needs either cluster.bootstrap or cluster.seeds")
	}

	return nil
}
