package config

// Default configuration values.
const (
	DefaultOpsAddr = "127.0.0.1:5984"

	DefaultDatabaseName = "main"
	DefaultAdapter      = "badger"
	DefaultDataDir      = "/var/lib/rxdb/data"
	DefaultEventBuffer  = 64

	DefaultRaftAddr   = "127.0.0.1:7300"
	DefaultRaftDir    = "/var/lib/rxdb/raft"
	DefaultGossipAddr = "127.0.0.1"
	DefaultGossipPort = 7301

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		Server: ServerSection{
			Ops: OpsConfig{
				Enabled: true,
				Addr:    DefaultOpsAddr,
			},
		},
		Database: DatabaseSection{
			Name:        DefaultDatabaseName,
			Adapter:     DefaultAdapter,
			Dir:         DefaultDataDir,
			EventBuffer: DefaultEventBuffer,
		},
		Cluster: ClusterSection{
			Enabled:    false,
			RaftAddr:   DefaultRaftAddr,
			RaftDir:    DefaultRaftDir,
			GossipAddr: DefaultGossipAddr,
			GossipPort: DefaultGossipPort,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
