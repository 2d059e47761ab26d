package benchmark

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hoanglam10499/rxdb"
)

// BenchmarkEventFanout benchmarks emit cost at varying subscriber
// counts. Subscribers drain concurrently; delivery to a full buffer is
// a drop, so this measures the emit path, not delivery guarantees.
func BenchmarkEventFanout(b *testing.B) {
	for _, subs := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("subscribers_%d", subs), func(b *testing.B) {
			db := openBenchDB(b)

			var wg sync.WaitGroup
			for i := 0; i < subs; i++ {
				feed, cancel := db.Changes()
				defer cancel()
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range feed {
					}
				}()
			}

			ev := rxdb.ChangeEvent{
				Collection: "books",
				Operation:  rxdb.OpInsert,
				DocumentID: "bk-001",
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				db.Emit(ev)
			}

			b.StopTimer()
			// Destroy closes the feeds so the drainers exit.
			db.Destroy(context.Background())
			wg.Wait()
		})
	}
}

// BenchmarkEventEmitNoSubscribers measures the bare emit path.
func BenchmarkEventEmitNoSubscribers(b *testing.B) {
	db := openBenchDB(b)

	ev := rxdb.ChangeEvent{
		Collection: "books",
		Operation:  rxdb.OpUpdate,
		DocumentID: "bk-001",
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		db.Emit(ev)
	}
}

// BenchmarkEventEmitParallel benchmarks concurrent emitters.
func BenchmarkEventEmitParallel(b *testing.B) {
	db := openBenchDB(b)

	feed, cancel := db.Changes()
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range feed {
		}
	}()

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ev := rxdb.ChangeEvent{
			Collection: "books",
			Operation:  rxdb.OpInsert,
		}
		for pb.Next() {
			db.Emit(ev)
		}
	})

	b.StopTimer()
	db.Destroy(context.Background())
	<-done
}

// BenchmarkEventSubscribeChurn benchmarks subscribe/cancel cycles.
func BenchmarkEventSubscribeChurn(b *testing.B) {
	db := openBenchDB(b)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, cancel := db.Changes()
		cancel()
	}
}
