package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/hoanglam10499/rxdb"
	"github.com/hoanglam10499/rxdb/pkg/ident"
	"github.com/hoanglam10499/rxdb/schema"
	"github.com/hoanglam10499/rxdb/storage"
	"github.com/hoanglam10499/rxdb/storage/memory"
)

// DocCounts defines the document counts for benchmarking.
var DocCounts = []int{5000, 10000, 15000, 20000, 50000, 100000, 200000, 500000}

// SmallDocCounts for quick benchmarks.
var SmallDocCounts = []int{1000, 5000, 10000}

// newDocID generates a new document ID.
func newDocID() string {
	return ident.MustUID("doc-")
}

// makeDoc creates a test document with a book-shaped payload.
func makeDoc(i int) *storage.Document {
	return storage.NewDocument(newDocID(), map[string]any{
		"title":  fmt.Sprintf("Benchmark Title %d", i),
		"author": fmt.Sprintf("author-%d", i%1000),
		"price":  float64(i%90) + 9.99,
		"stock":  i % 50,
	})
}

// prefillStore prefills a store with documents.
func prefillStore(ctx context.Context, store storage.DocumentStore, count int) []*storage.Document {
	docs := make([]*storage.Document, count)
	for i := 0; i < count; i++ {
		stored, _ := store.Put(ctx, makeDoc(i))
		docs[i] = stored
	}
	return docs
}

// newBenchStore opens a fresh in-memory document store.
func newBenchStore(b *testing.B) storage.DocumentStore {
	b.Helper()
	store, err := memory.New().OpenStore(context.Background(), "bench/docs")
	if err != nil {
		b.Fatalf("open store: %v", err)
	}
	return store
}

// openBenchDB opens an in-memory database with its own registry.
func openBenchDB(b *testing.B) *rxdb.Database {
	b.Helper()

	cfg := rxdb.DefaultConfig("bench", memory.New())
	cfg.Registry = rxdb.NewInstanceRegistry()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := rxdb.Open(context.Background(), cfg)
	if err != nil {
		b.Fatalf("open database: %v", err)
	}
	b.Cleanup(func() {
		db.Destroy(context.Background())
	})
	return db
}

// bookSchema returns the schema used by collection benchmarks.
func bookSchema(version int) *schema.Schema {
	return &schema.Schema{
		Title:      "books",
		Version:    version,
		PrimaryKey: "id",
		Properties: map[string]schema.Property{
			"id":     {Type: "string"},
			"title":  {Type: "string"},
			"author": {Type: "string"},
			"price":  {Type: "number"},
			"stock":  {Type: "integer"},
		},
		Required: []string{"title"},
	}
}

// openBenchCollection creates the books collection on db.
func openBenchCollection(b *testing.B, db *rxdb.Database) *rxdb.Collection {
	b.Helper()
	col, err := db.CreateCollection(context.Background(), rxdb.CollectionConfig{
		Name:   "books",
		Schema: bookSchema(0),
	})
	if err != nil {
		b.Fatalf("create collection: %v", err)
	}
	return col
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithDocCounts runs a benchmark function with various document counts.
func runWithDocCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("docs_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
