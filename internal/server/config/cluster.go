package config

import (
	"log/slog"
	"strings"

	"github.com/hoanglam10499/rxdb/cluster/gossip"
	"github.com/hoanglam10499/rxdb/cluster/raftelect"
	"github.com/hoanglam10499/rxdb/pkg/ident"
)

// EnsureNodeID fills Cluster.NodeID with a generated identifier when
// the operator left it empty, and returns the effective ID.
func EnsureNodeID(cfg *Config, logger *slog.Logger) string {
	if cfg.Cluster.NodeID == "" {
		cfg.Cluster.NodeID = ident.MustUID("rxn-")
		logger.Info("generated cluster node ID", "node_id", cfg.Cluster.NodeID)
	}
	return cfg.Cluster.NodeID
}

// ToRaftConfig maps the cluster section onto a raftelect.Config for
// this node. Call EnsureNodeID first.
func ToRaftConfig(cfg *Config, logger *slog.Logger) raftelect.Config {
	return raftelect.Config{
		NodeID:    cfg.Cluster.NodeID,
		BindAddr:  cfg.Cluster.RaftAddr,
		DataDir:   cfg.Cluster.RaftDir,
		Bootstrap: cfg.Cluster.Bootstrap,
		Logger:    logger,
	}
}

// ToGossipConfig maps the cluster section onto a gossip.Config for
// this node. Call EnsureNodeID first.
func ToGossipConfig(cfg *Config, logger *slog.Logger) gossip.Config {
	return gossip.Config{
		NodeID:   cfg.Cluster.NodeID,
		BindAddr: cfg.Cluster.GossipAddr,
		BindPort: cfg.Cluster.GossipPort,
		Seeds:    cfg.Cluster.Seeds,
		Meta:     MeshMeta(cfg),
		Logger:   logger,
	}
}

// MeshMeta builds the node metadata advertised in the gossip mesh: the
// database name and this node's raft address, space separated. The
// name makes instances that joined the wrong mesh visible in the
// member list; the address is what the raft leader needs to add the
// node as a voter.
func MeshMeta(cfg *Config) string {
	return cfg.Database.Name + " " + cfg.Cluster.RaftAddr
}

// SplitMeshMeta parses metadata built by MeshMeta. Missing fields come
// back empty.
func SplitMeshMeta(meta string) (database, raftAddr string) {
	database, raftAddr, _ = strings.Cut(meta, " ")
	return database, raftAddr
}
