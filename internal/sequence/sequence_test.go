package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

func TestNewGeneratorValidatesPrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{prefix: "TKT"},
		{prefix: "sup2"},
		{prefix: "", wantErr: true},
		{prefix: "TK-T", wantErr: true},
		{prefix: "T K", wantErr: true},
	}
	for _, tt := range tests {
		_, err := NewGenerator(&memory.Counter{}, tt.prefix)
		if (err != nil) != tt.wantErr {
			t.Fatalf("prefix %q: err = %v, wantErr %v", tt.prefix, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidPrefix) {
			t.Fatalf("prefix %q: err = %v, want ErrInvalidPrefix", tt.prefix, err)
		}
	}
}

func TestNextIsGaplessUnderConcurrency(t *testing.T) {
	gen, err := NewGenerator(memory.NewCounter(memory.NewStore(clock.Real()), "TKT"), "TKT")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := gen.Next(context.Background())
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			mu.Lock()
			seen[number] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("got %d distinct numbers, want %d", len(seen), n)
	}
	for i := int64(1); i <= n; i++ {
		if !seen[Format("TKT", i)] {
			t.Fatalf("missing %s", Format("TKT", i))
		}
	}
}

func TestExtractNumber(t *testing.T) {
	gen, _ := NewGenerator(&memory.Counter{}, "TKT")
	tests := []struct {
		subject string
		want    string
		ok      bool
	}{
		{subject: "Re: [TKT-42] printer jam", want: "TKT-42", ok: true},
		{subject: "[TKT-7] and [TKT-9]", want: "TKT-7", ok: true},
		{subject: "TKT-42 without brackets"},
		{subject: "[SUP-42] other prefix"},
		{subject: "[TKT-] no digits"},
	}
	for _, tt := range tests {
		got, ok := gen.ExtractNumber(tt.subject)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("%q: got (%q, %v), want (%q, %v)", tt.subject, got, ok, tt.want, tt.ok)
		}
	}
}

type failingCounter struct{ err error }

func (f failingCounter) IncrementAndGet(context.Context) (int64, error) { return 0, f.err }

func TestNextPropagatesCounterError(t *testing.T) {
	boom := errors.New("db down")
	gen, _ := NewGenerator(failingCounter{err: boom}, "TKT")
	if _, err := gen.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
