package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Server.Ops.Enabled {
		t.Error("ops endpoint should be enabled by default")
	}
	if cfg.Server.Ops.Addr != DefaultOpsAddr {
		t.Errorf("Ops.Addr = %q, want %q", cfg.Server.Ops.Addr, DefaultOpsAddr)
	}

	if cfg.Database.Name != DefaultDatabaseName {
		t.Errorf("Database.Name = %q, want %q", cfg.Database.Name, DefaultDatabaseName)
	}
	if cfg.Database.Adapter != DefaultAdapter {
		t.Errorf("Database.Adapter = %q, want %q", cfg.Database.Adapter, DefaultAdapter)
	}
	if cfg.Database.Dir != DefaultDataDir {
		t.Errorf("Database.Dir = %q, want %q", cfg.Database.Dir, DefaultDataDir)
	}
	if cfg.Database.EventBuffer != DefaultEventBuffer {
		t.Errorf("Database.EventBuffer = %d, want %d", cfg.Database.EventBuffer, DefaultEventBuffer)
	}
	if cfg.Database.MultiInstance {
		t.Error("multi-instance should be off by default")
	}

	if cfg.Cluster.Enabled {
		t.Error("cluster mode should be off by default")
	}
	if cfg.Cluster.RaftAddr != DefaultRaftAddr {
		t.Errorf("Cluster.RaftAddr = %q, want %q", cfg.Cluster.RaftAddr, DefaultRaftAddr)
	}
	if cfg.Cluster.GossipPort != DefaultGossipPort {
		t.Errorf("Cluster.GossipPort = %d, want %d", cfg.Cluster.GossipPort, DefaultGossipPort)
	}

	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}
}

// testConfig returns a config that passes Verify without touching
// system paths.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Database.Adapter = "memory"
	cfg.Database.Dir = ""
	return cfg
}

func TestVerify_Valid(t *testing.T) {
	if err := Verify(testConfig(t)); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestVerify_BadgerCreatesDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Adapter = "badger"
	cfg.Database.Dir = filepath.Join(t.TempDir(), "data")

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "empty database name",
			mutate:  func(c *Config) { c.Database.Name = "" },
			wantSub: "database.name",
		},
		{
			name:    "slash in database name",
			mutate:  func(c *Config) { c.Database.Name = "a/b" },
			wantSub: "must not contain",
		},
		{
			name:    "unknown adapter",
			mutate:  func(c *Config) { c.Database.Adapter = "sqlite" },
			wantSub: "not supported",
		},
		{
			name: "badger without dir",
			mutate: func(c *Config) {
				c.Database.Adapter = "badger"
				c.Database.Dir = ""
			},
			wantSub: "database.dir",
		},
		{
			name:    "negative event buffer",
			mutate:  func(c *Config) { c.Database.EventBuffer = -1 },
			wantSub: "event_buffer",
		},
		{
			name:    "negative publish rate",
			mutate:  func(c *Config) { c.Database.PublishRate = -0.5 },
			wantSub: "publish_rate",
		},
		{
			name: "ops enabled without addr",
			mutate: func(c *Config) {
				c.Server.Ops.Enabled = true
				c.Server.Ops.Addr = ""
			},
			wantSub: "server.ops.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Verify() error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestVerify_Cluster(t *testing.T) {
	clusterBase := func(t *testing.T) *Config {
		cfg := testConfig(t)
		cfg.Database.MultiInstance = true
		cfg.Cluster.Enabled = true
		cfg.Cluster.Bootstrap = true
		cfg.Cluster.RaftDir = filepath.Join(t.TempDir(), "raft")
		return cfg
	}

	t.Run("valid bootstrap node", func(t *testing.T) {
		if err := Verify(clusterBase(t)); err != nil {
			t.Errorf("Verify() error = %v, want nil", err)
		}
	})

	t.Run("valid joining node", func(t *testing.T) {
		cfg := clusterBase(t)
		cfg.Cluster.Bootstrap = false
		cfg.Cluster.Seeds = []string{"127.0.0.1:7301"}
		if err := Verify(cfg); err != nil {
			t.Errorf("Verify() error = %v, want nil", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "requires multi instance",
			mutate:  func(c *Config) { c.Database.MultiInstance = false },
			wantSub: "multi_instance",
		},
		{
			name:    "missing raft addr",
			mutate:  func(c *Config) { c.Cluster.RaftAddr = "" },
			wantSub: "raft_addr",
		},
		{
			name:    "missing raft dir",
			mutate:  func(c *Config) { c.Cluster.RaftDir = "" },
			wantSub: "raft_dir",
		},
		{
			name:    "gossip port out of range",
			mutate:  func(c *Config) { c.Cluster.GossipPort = 70000 },
			wantSub: "gossip_port",
		},
		{
			name: "bootstrap and seeds",
			mutate: func(c *Config) {
				c.Cluster.Seeds = []string{"127.0.0.1:7301"}
			},
			wantSub: "mutually exclusive",
		},
		{
			name: "neither bootstrap nor seeds",
			mutate: func(c *Config) {
				c.Cluster.Bootstrap = false
				c.Cluster.Seeds = nil
			},
			wantSub: "bootstrap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := clusterBase(t)
			tt.mutate(cfg)

			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Verify() error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Password = "super-secret-password"

	sanitized := Sanitize(cfg)

	if cfg.Database.Password != "super-secret-password" {
		t.Error("original config should not be modified")
	}
	if sanitized.Database.Password == cfg.Database.Password {
		t.Error("sanitized config should mask the password")
	}
	if len(sanitized.Database.Password) != len(cfg.Database.Password) {
		t.Errorf("masked length = %d, want %d",
			len(sanitized.Database.Password), len(cfg.Database.Password))
	}
	if !strings.HasPrefix(sanitized.Database.Password, "su") ||
		!strings.HasSuffix(sanitized.Database.Password, "rd") {
		t.Errorf("mask should keep edges, got %q", sanitized.Database.Password)
	}
}

func TestSanitize_EmptyPassword(t *testing.T) {
	cfg := testConfig(t)

	sanitized := Sanitize(cfg)
	if sanitized.Database.Password != "" {
		t.Errorf("empty password should stay empty, got %q", sanitized.Database.Password)
	}
}

func TestMaskSecret_Short(t *testing.T) {
	for _, s := range []string{"", "a", "abcd"} {
		if got := maskSecret(s); got != "****" {
			t.Errorf("maskSecret(%q) = %q, want ****", s, got)
		}
	}
}
