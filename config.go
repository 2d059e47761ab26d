package rxdb

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hoanglam10499/rxdb/cluster"
	"github.com/hoanglam10499/rxdb/schema"
	"github.com/hoanglam10499/rxdb/storage"
)

// Config describes one database handle.
type Config struct {
	// Name identifies the database. Storage locations are derived
	// from it, so two handles with the same name and adapter see the
	// same data.
	Name string

	// Adapter provides the document stores.
	Adapter storage.Adapter

	// Password unlocks field-level encryption. Collections whose
	// schema marks fields as encrypted refuse to open without it.
	Password string

	// MultiInstance connects the handle to its siblings: change
	// events cross the transport and leadership is negotiated.
	// Without it the handle is the leader from the start.
	MultiInstance bool

	// AllowDuplicate permits a second handle on the same name and
	// adapter within this process.
	AllowDuplicate bool

	// StrictAdminWrites escalates non-conflict failures of the
	// administrative bootstrap writes into open errors instead of
	// logging them.
	StrictAdminWrites bool

	// EventBuffer is the per-subscriber channel capacity. Events
	// beyond it are dropped for that subscriber.
	EventBuffer int

	// PublishRate caps outbound event frames per second. Zero means
	// unlimited. PublishBurst is the limiter's burst, minimum 1.
	PublishRate  rate.Limit
	PublishBurst int

	// Registry tracks open instances. Defaults to DefaultRegistry.
	Registry *InstanceRegistry

	// Election and Transport override the default in-process wiring.
	// Handles in different processes need both injected, backed by
	// something that actually crosses the process boundary. Only
	// consulted when MultiInstance is set.
	Election  cluster.LeaderElection
	Transport cluster.Transport

	// Compiler validates and normalizes collection schemas.
	// Defaults to the standard compiler.
	Compiler schema.Compiler

	// Logger receives structured logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns a single-instance config for name on adapter.
func DefaultConfig(name string, adapter storage.Adapter) Config {
	return Config{
		Name:        name,
		Adapter:     adapter,
		EventBuffer: defaultEventBuffer,
	}
}

const defaultEventBuffer = 64

func (c *Config) withDefaults() {
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.Registry == nil {
		c.Registry = DefaultRegistry
	}
	if c.Compiler == nil {
		c.Compiler = schema.NewCompiler()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.Name == "" {
		return ErrInvalidAdapterConfiguration.WithField("reason", "database name is empty")
	}
	if c.Adapter == nil {
		return ErrInvalidAdapterConfiguration.WithField("reason", "storage adapter is nil")
	}
	return nil
}
