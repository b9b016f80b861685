// Package route implements the autorouting engine: given a discretized
// routable area, pads grouped into electrical nets, and manufacturing
// design rules, it computes copper paths (segments plus layer-change
// vias) connecting every pad on each net while minimizing resource
// conflicts between nets.
//
// # Overview
//
// The engine is layered, leaves first:
//
//  1. Grid — 3-D occupancy/cost store (columns x rows x layers) over a
//     flat backing array, with claim/release bookkeeping for rip-up.
//  2. Pathfinder — cost-driven wavefront search routing one net.
//  3. NegotiatedRouter — iterative congestion resolution: route with
//     overlap allowed, make contested cells expensive, rip up and reroute
//     only the offenders.
//  4. Scheduler — partitions nets into bounding-box-independent groups
//     and routes the groups on a bounded worker pool.
//  5. RelaxationController / EscalationController — recovery: reroute
//     clearance-limited nets at relaxed clearance, or retry the board
//     with more copper layers.
//  6. Router — the facade tying it together and the surface the external
//     placement-feedback loop consumes.
//
// # Usage
//
// Basic usage:
//
//	b, rules, _ := board.DemoCharlieplex()
//	r, err := route.NewRouter(b, rules, route.DefaultEngineConfig(), nil)
//	if err != nil {
//		// invalid configuration: the only upfront hard failure
//	}
//	result := r.RouteAllNegotiated(context.Background())
//	for _, rt := range result.Routes {
//		// hand segments and vias to a serializer
//	}
//	for _, id := range r.FailedNets() {
//		diag, _ := r.AnalyzeFailure(id)
//		// feed the diagnosis back to placement, then ResetForNewTrial
//	}
//
// # Guarantees and non-guarantees
//
// The engine guarantees termination with a best-effort result and an
// explicit list of unresolved nets. It does not guarantee minimum
// wirelength or via count, and negotiation may exhaust its budget with
// overlap remaining; in that case the best-seen (lowest overflow)
// solution is returned and the conflicting nets are listed.
//
// Per-net failures are collected, never thrown: one unroutable net does
// not prevent routing the rest. A failed single-net search claims
// nothing, so the grid is always in a consistent state between nets.
//
// # Concurrency
//
// Everything is synchronous and single-threaded except the scheduler's
// worker pool, which routes provably independent net groups concurrently
// over disjoint grid regions. There is no locking; see Scheduler for the
// documented limits of the independence argument.
package route
