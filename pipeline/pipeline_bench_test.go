package pipeline

import (
	"fmt"
	"testing"

	"github.com/mevdschee/pgwire/binding"
	"github.com/mevdschee/pgwire/sqlstmt"
)

// BenchmarkBatchSizes measures Flush cost across batch sizes, the
// one surviving benchmark from the teacher's writebatch package,
// rewritten for rendering Bind+Describe+Execute groups instead of
// executing SQL against a database/sql.DB.
func BenchmarkBatchSizes(b *testing.B) {
	stmt, _, err := sqlstmt.Parse("INSERT INTO test (value) VALUES ($1)")
	if err != nil {
		b.Fatalf("Parse failed: %v", err)
	}

	batchSizes := []int{10, 50, 100, 500, 1000}
	for _, size := range batchSizes {
		b.Run(fmt.Sprintf("Size_%d", size), func(b *testing.B) {
			p := New(size)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				bound := binding.New(stmt)
				if err := bound.Set(0, []byte(fmt.Sprintf("test%d", i))); err != nil {
					b.Fatalf("Set failed: %v", err)
				}
				if _, _, err := p.Enqueue(Item{StatementName: "s1", Binding: bound}); err != nil {
					b.Fatalf("Enqueue failed: %v", err)
				}
				if (i+1)%size == 0 {
					p.Flush()
				}
			}
			p.Flush()
		})
	}
}
