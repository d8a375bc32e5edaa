package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type fakeProber struct {
	mu     sync.Mutex
	clips  map[string]Clip
	probed []string
}

func (p *fakeProber) Probe(ctx context.Context, path string) (Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, path)
	c, ok := p.clips[path]
	if !ok {
		return Clip{}, errors.New("no such clip")
	}
	return c, nil
}

type runCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []runCall
	// fail maps a call index to the error it returns.
	fail map[int]error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	idx := len(r.calls)
	r.calls = append(r.calls, runCall{name: name, args: args})
	if err, ok := r.fail[idx]; ok {
		return nil, err
	}
	return nil, nil
}

// touch creates empty files under dir and returns their paths.
func touch(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
		paths[i] = p
	}
	return paths
}

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func ptr(f float64) *float64 { return &f }

// sum adds in order, matching how tracks accumulate durations.
func sum(ds ...float64) float64 {
	var total float64
	for _, d := range ds {
		total += d
	}
	return total
}
