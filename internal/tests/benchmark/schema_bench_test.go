package benchmark

import (
	"fmt"
	"testing"

	"github.com/hoanglam10499/rxdb/pkg/ident"
	"github.com/hoanglam10499/rxdb/schema"
)

// BenchmarkSchemaCompile benchmarks compilation at various property
// counts. Compile runs once per collection open, but its hash gates
// every reopen.
func BenchmarkSchemaCompile(b *testing.B) {
	for _, props := range []int{5, 20, 100} {
		b.Run(fmt.Sprintf("properties_%d", props), func(b *testing.B) {
			s := wideSchema(props)
			compiler := schema.NewCompiler()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := compiler.Compile(s); err != nil {
					b.Fatalf("Compile failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkSchemaValidate benchmarks structural validation alone.
func BenchmarkSchemaValidate(b *testing.B) {
	s := wideSchema(20)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := s.Validate(); err != nil {
			b.Fatalf("Validate failed: %v", err)
		}
	}
}

// BenchmarkUIDGeneration benchmarks prefixed ULID minting, the path
// behind every handle token and event ID.
func BenchmarkUIDGeneration(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := ident.NewUID("rxe-"); err != nil {
			b.Fatalf("NewUID failed: %v", err)
		}
	}
}

// BenchmarkUIDValidate benchmarks UID shape checks.
func BenchmarkUIDValidate(b *testing.B) {
	id := ident.MustUID("rxe-")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if !ident.ValidUID("rxe-", id) {
			b.Fatal("ValidUID rejected a fresh UID")
		}
	}
}

// wideSchema builds a schema with n string properties.
func wideSchema(n int) *schema.Schema {
	props := make(map[string]schema.Property, n+1)
	props["id"] = schema.Property{Type: "string"}
	for i := 0; i < n; i++ {
		props[fmt.Sprintf("field%d", i)] = schema.Property{Type: "string"}
	}
	return &schema.Schema{
		Version:    0,
		PrimaryKey: "id",
		Properties: props,
		Required:   []string{"id"},
	}
}
