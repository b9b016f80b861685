package route

import "fmt"

// FailureKind is the closed set of reasons a net can fail to route. Every
// recovery controller switches exhaustively over it, and it is the
// interface surfaced to the external placement-feedback loop.
type FailureKind uint8

const (
	// NoPathFound: the search frontier was exhausted with no blocking
	// pattern pointing at a recoverable cause.
	NoPathFound FailureKind = iota
	// CongestionUnresolved: the negotiation iteration budget ran out with
	// nonzero overflow still involving this net.
	CongestionUnresolved
	// ClearanceLimited: the search was predominantly blocked by clearance
	// halos; rerouting at relaxed clearance may succeed.
	ClearanceLimited
	// ViaExclusionBlocked: layer changes were hard-rejected near
	// fine-pitch components and no same-layer path exists.
	ViaExclusionBlocked
	// Timeout: the wall-clock budget expired before the search finished.
	Timeout
)

var failureNames = map[FailureKind]string{
	NoPathFound:          "NoPathFound",
	CongestionUnresolved: "CongestionUnresolved",
	ClearanceLimited:     "ClearanceLimited",
	ViaExclusionBlocked:  "ViaExclusionBlocked",
	Timeout:              "Timeout",
}

func (k FailureKind) String() string {
	if name, ok := failureNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FailureKind(%d)", k)
}

// Diagnosis is the actionable result of classifying a failed net. It
// drives which recovery controller runs next and is handed to the
// external placement optimizer unchanged.
type Diagnosis struct {
	NetID int
	Kind  FailureKind
	Stats SearchStats
}

// SearchStats counts what a single-net search did and what stopped it.
// The classifier reads the rejection counters to pick a cause.
type SearchStats struct {
	Expanded            int  // cells popped from the frontier
	ClearanceRejects    int  // steps rejected by clearance halos
	OccupancyRejects    int  // steps rejected by obstacles, zones, or foreign pads
	ViaExclusionRejects int  // via candidates hard-rejected near fine-pitch pads
	TimedOut            bool // deadline expired mid-search
}

// classify turns the statistics of an exhausted search into a failure
// kind. Congestion is never diagnosed here: only the negotiation loop
// knows whether overflow stayed unresolved.
func classify(netID int, stats SearchStats) *Diagnosis {
	kind := NoPathFound
	switch {
	case stats.TimedOut:
		kind = Timeout
	case stats.ViaExclusionRejects > 0 && stats.ViaExclusionRejects >= stats.ClearanceRejects:
		kind = ViaExclusionBlocked
	case stats.ClearanceRejects > 0 && stats.ClearanceRejects >= stats.OccupancyRejects:
		kind = ClearanceLimited
	}
	return &Diagnosis{NetID: netID, Kind: kind, Stats: stats}
}
