package runtime

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Probes backs /healthz and /readyz. Once Drain is called /readyz reports
// 503 so load balancers stop routing before the listener closes.
type Probes struct {
	checks   []ReadyCheck
	timeout  time.Duration
	draining atomic.Bool
}

func NewProbes(checks ...ReadyCheck) *Probes {
	return &Probes{checks: checks, timeout: 2 * time.Second}
}

func (p *Probes) Drain() {
	p.draining.Store(true)
}

// Failures runs every check concurrently and returns "name: err" strings,
// sorted for stable output.
func (p *Probes) Failures(ctx context.Context) []string {
	if p.draining.Load() {
		return []string{"draining"}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures []string
	)
	for _, check := range p.checks {
		if check.Check == nil {
			continue
		}
		wg.Add(1)
		go func(c ReadyCheck) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			if err := c.Check(cctx); err != nil {
				name := c.Name
				if name == "" {
					name = "dependency"
				}
				mu.Lock()
				failures = append(failures, name+": "+err.Error())
				mu.Unlock()
			}
		}(check)
	}
	wg.Wait()
	sort.Strings(failures)
	return failures
}

// NewBaseMux returns a mux with /healthz and /readyz registered.
func NewBaseMux(p *Probes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failures := p.Failures(r.Context()); len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
