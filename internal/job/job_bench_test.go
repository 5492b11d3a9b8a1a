package job

import (
	"context"
	"testing"
)

type noopExec struct{}

func (noopExec) Execute(_ context.Context, _ Params) (Data, error) {
	return Data{"ok": true}, nil
}

func BenchmarkRun_Success(b *testing.B) {
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		j := New("bench", noopExec{}, Params{"value": i})
		if res := j.Run(ctx); !res.OK() {
			b.Fatalf("unexpected status %s", res.Status)
		}
	}
}

func BenchmarkBackoff(b *testing.B) {
	j := New("bench", noopExec{}, nil, WithJitter(0.2))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = j.backoff(i%5 + 1)
	}
}
