package rxdb

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoanglam10499/rxdb/storage/memory"
)

// gatherValue digs one sample out of a gathered registry.
func gatherValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
		}
	}
	t.Fatalf("metric %q not gathered", name)
	return 0
}

func TestRegisterMetrics(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, newTestConfig("shop", memory.New()))

	registry := prometheus.NewRegistry()
	db.RegisterMetrics(registry)

	if got := gatherValue(t, registry, "rxdb_database_collections_open"); got != 0 {
		t.Fatalf("collections_open = %v, want 0", got)
	}
	if got := gatherValue(t, registry, "rxdb_database_leader"); got != 1 {
		t.Fatalf("leader = %v, want 1", got)
	}
	if got := gatherValue(t, registry, "rxdb_database_handles_live"); got != 1 {
		t.Fatalf("handles_live = %v, want 1", got)
	}

	col, err := db.CreateCollection(ctx, CollectionConfig{Name: "books", Schema: bookSchema(0)})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	col.Insert(ctx, "b-1", map[string]any{"isbn": "b-1", "title": "Dune"})

	if got := gatherValue(t, registry, "rxdb_database_collections_open"); got != 1 {
		t.Fatalf("collections_open = %v, want 1", got)
	}
	// The admin event plus the insert.
	if got := gatherValue(t, registry, "rxdb_events_emitted_total"); got != 2 {
		t.Fatalf("events_emitted = %v, want 2", got)
	}

	db.Destroy(ctx)
	if got := gatherValue(t, registry, "rxdb_database_leader"); got != 0 {
		t.Fatalf("leader after destroy = %v, want 0", got)
	}
	if got := gatherValue(t, registry, "rxdb_database_handles_live"); got != 0 {
		t.Fatalf("handles_live after destroy = %v, want 0", got)
	}
}
