package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hoanglam10499/rxdb/storage"
)

// BenchmarkDocumentCreate benchmarks document creation at various scales.
func BenchmarkDocumentCreate(b *testing.B) {
	counts := SmallDocCounts // Use small counts for CI; change to DocCounts for full test

	for _, preload := range counts {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			ctx := context.Background()
			store := newBenchStore(b)

			// Prefill with existing documents
			prefillStore(ctx, store, preload)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := store.Put(ctx, makeDoc(i)); err != nil {
					b.Fatalf("Put failed: %v", err)
				}
			}

			b.StopTimer()
			reportMemory(b, "mem")
		})
	}
}

// BenchmarkDocumentGet benchmarks document retrieval at various scales.
func BenchmarkDocumentGet(b *testing.B) {
	runWithDocCounts(b, SmallDocCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		store := newBenchStore(b)

		docs := prefillStore(ctx, store, count)

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			idx := i % len(docs)
			if _, err := store.Get(ctx, docs[idx].ID); err != nil {
				b.Fatalf("Get failed: %v", err)
			}
		}
	})
}

// BenchmarkDocumentUpdate benchmarks revision-checked replacement.
func BenchmarkDocumentUpdate(b *testing.B) {
	runWithDocCounts(b, SmallDocCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		store := newBenchStore(b)

		docs := prefillStore(ctx, store, count)

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			idx := i % len(docs)
			// Fetch fresh to get the current revision
			doc, _ := store.Get(ctx, docs[idx].ID)
			doc.Data["stock"] = i
			if _, err := store.Put(ctx, doc); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})
}

// BenchmarkDocumentRemove benchmarks document deletion.
func BenchmarkDocumentRemove(b *testing.B) {
	ctx := context.Background()

	b.Run("remove_sequential", func(b *testing.B) {
		store := newBenchStore(b)

		docs := make([]*storage.Document, b.N)
		for i := 0; i < b.N; i++ {
			stored, err := store.Put(ctx, makeDoc(i))
			if err != nil {
				b.Fatalf("Put failed: %v", err)
			}
			docs[i] = stored
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if err := store.Remove(ctx, docs[i].ID, docs[i].Rev); err != nil {
				b.Fatalf("Remove failed: %v", err)
			}
		}
	})
}

// BenchmarkDocumentAllDocs benchmarks full enumeration at various scales.
func BenchmarkDocumentAllDocs(b *testing.B) {
	runWithDocCounts(b, SmallDocCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		store := newBenchStore(b)

		prefillStore(ctx, store, count)

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := store.AllDocs(ctx, storage.AllDocsOptions{}); err != nil {
				b.Fatalf("AllDocs failed: %v", err)
			}
		}
	})
}

// BenchmarkDocumentFind benchmarks selector queries at various scales.
func BenchmarkDocumentFind(b *testing.B) {
	runWithDocCounts(b, SmallDocCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		store := newBenchStore(b)

		// 1000 distinct authors
		prefillStore(ctx, store, count)

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			q := storage.Query{Selector: map[string]any{
				"author": fmt.Sprintf("author-%d", i%1000),
			}}
			if _, err := store.Find(ctx, q); err != nil {
				b.Fatalf("Find failed: %v", err)
			}
		}
	})
}

// BenchmarkDocumentConcurrent benchmarks concurrent mixed operations.
func BenchmarkDocumentConcurrent(b *testing.B) {
	ctx := context.Background()
	store := newBenchStore(b)

	docs := prefillStore(ctx, store, 10000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			idx := i % len(docs)
			switch i % 4 {
			case 0, 1: // Get
				store.Get(ctx, docs[idx].ID)
			case 2: // Update through a fresh read
				if doc, err := store.Get(ctx, docs[idx].ID); err == nil {
					doc.Data["stock"] = i
					store.Put(ctx, doc)
				}
			case 3: // Create new
				store.Put(ctx, makeDoc(i))
			}
			i++
		}
	})
}
