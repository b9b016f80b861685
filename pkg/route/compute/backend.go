// Package compute abstracts the bulk numeric operations the routing grid
// performs over its flat cost arrays. The router depends only on the
// Backend interface; which implementation actually runs is decided once,
// process-wide, by Probe.
//
// A CPU implementation is always available. Accelerated implementations
// (GPU or SIMD offload) can be registered at init time and are selected by
// capability probing; the router never branches on backend identity.
package compute

import "sync"

// Backend performs elementwise operations and reductions over float64
// arrays. Implementations must be safe for concurrent use on disjoint
// slices; callers guarantee dst/src aliasing only as documented per call.
type Backend interface {
	// Name identifies the active backend for diagnostics ("cpu", ...).
	Name() string

	// Fill sets every element of dst to v.
	Fill(dst []float64, v float64)

	// AddScaled computes dst[i] += src[i] * scale. dst and src must have
	// equal length and must not alias.
	AddScaled(dst, src []float64, scale float64)

	// ExcessOver computes dst[i] = max(0, src[i]-limit). dst and src must
	// have equal length; aliasing dst == src is allowed.
	ExcessOver(dst, src []float64, limit float64)

	// Sum returns the sum of all elements.
	Sum(src []float64) float64

	// CountAbove returns the number of elements strictly greater than
	// threshold.
	CountAbove(src []float64, threshold float64) int
}

// prober is a registered factory that returns a backend when the running
// process supports it, or nil to pass.
type prober func() Backend

var (
	probeMu  sync.Mutex
	probers  []prober
	probeOne sync.Once
	active   Backend
)

// register adds a backend prober. Probers registered later take priority
// over earlier ones; the CPU backend is registered first as the fallback.
func register(p prober) {
	probeMu.Lock()
	defer probeMu.Unlock()
	probers = append(probers, p)
}

// Probe selects the backend for this process. The first call probes all
// registered implementations (most recently registered first) and caches
// the winner; subsequent calls return the cached backend.
func Probe() Backend {
	probeOne.Do(func() {
		probeMu.Lock()
		defer probeMu.Unlock()
		for i := len(probers) - 1; i >= 0; i-- {
			if b := probers[i](); b != nil {
				active = b
				return
			}
		}
	})
	return active
}
