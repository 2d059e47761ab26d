package config

// Config is the root configuration for the rxdb daemon.
type Config struct {
	Server   ServerSection   `koanf:"server"`
	Database DatabaseSection `koanf:"database"`
	Cluster  ClusterSection  `koanf:"cluster"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures daemon endpoints.
type ServerSection struct {
	Ops OpsConfig `koanf:"ops"`
}

// OpsConfig configures the operational HTTP endpoint serving /healthz,
// /status and /metrics.
type OpsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// DatabaseSection configures the database the daemon hosts.
type DatabaseSection struct {
	// Name identifies the database. Storage locations derive from it.
	Name string `koanf:"name"`

	// Adapter selects the storage backend: "memory" or "badger".
	Adapter string `koanf:"adapter"`

	// Dir is the Badger data directory. Ignored by the memory adapter.
	Dir string `koanf:"dir"`

	// Password unlocks field-level encryption for collections whose
	// schemas mark fields as encrypted.
	Password string `koanf:"password"`

	// MultiInstance connects the database to sibling instances so
	// change events cross the transport and leadership is negotiated.
	MultiInstance bool `koanf:"multi_instance"`

	// EventBuffer is the per-subscriber change feed capacity.
	EventBuffer int `koanf:"event_buffer"`

	// PublishRate caps outbound event frames per second; zero means
	// unlimited. PublishBurst is the limiter burst.
	PublishRate  float64 `koanf:"publish_rate"`
	PublishBurst int     `koanf:"publish_burst"`
}

// ClusterSection configures cross-machine coordination. When enabled,
// leadership runs over Raft and change events over a gossip mesh
// instead of the in-process hub.
type ClusterSection struct {
	// Enabled turns cluster mode on. Requires database.multi_instance.
	Enabled bool `koanf:"enabled"`

	// NodeID is the unique identifier for this node. Generated at
	// startup when empty.
	NodeID string `koanf:"node_id"`

	// RaftAddr is the Raft TCP bind address (e.g. "10.0.0.5:7300").
	RaftAddr string `koanf:"raft_addr"`

	// RaftDir is the directory for the Raft log and snapshot stores.
	RaftDir string `koanf:"raft_dir"`

	// Bootstrap starts a fresh single-node cluster. Exactly one node
	// of a new cluster sets this; the rest join via seeds.
	Bootstrap bool `koanf:"bootstrap"`

	// GossipAddr is the gossip bind address (host only).
	GossipAddr string `koanf:"gossip_addr"`

	// GossipPort is the gossip bind port. Zero picks a free port.
	GossipPort int `koanf:"gossip_port"`

	// Seeds are gossip addresses of existing members to join,
	// e.g. ["10.0.0.5:7301", "10.0.0.6:7301"].
	Seeds []string `koanf:"seeds"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
