package board

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned for design-rule combinations that can
// never route. It is the only hard failure the engine raises before any
// routing work begins.
var ErrInvalidConfiguration = errors.New("invalid routing configuration")

// DesignRules holds the manufacturing constraints the router must honor.
// All distances are in millimeters.
type DesignRules struct {
	TraceWidth     float64 // Copper trace width
	Clearance      float64 // Minimum copper-to-copper clearance
	ViaDrill       float64 // Via drill diameter
	ViaDiameter    float64 // Via pad (annular) diameter
	GridResolution float64 // Routing grid cell size

	// ViaImpactWeight scales the soft penalty for placing a via close to
	// unrouted pads of other nets. Zero disables the term entirely and
	// skips the distance checks.
	ViaImpactWeight float64

	// ViaExclusionDistance hard-rejects via candidates within this distance
	// of any pad belonging to a fine-pitch component.
	ViaExclusionDistance float64

	// FinePitchThreshold classifies a component as fine-pitch when its pin
	// pitch is below this value.
	FinePitchThreshold float64
}

// DefaultDesignRules returns rules suitable for common two-layer hobby
// boards (roughly the JLCPCB/OSHPark standard process).
func DefaultDesignRules() DesignRules {
	return DesignRules{
		TraceWidth:           0.25,
		Clearance:            0.2,
		ViaDrill:             0.3,
		ViaDiameter:          0.6,
		GridResolution:       0.1,
		ViaImpactWeight:      1.0,
		ViaExclusionDistance: 0.5,
		FinePitchThreshold:   0.5,
	}
}

// Validate checks the rule set for combinations routing cannot start with.
// Errors wrap ErrInvalidConfiguration.
func (r DesignRules) Validate() error {
	if r.GridResolution <= 0 {
		return fmt.Errorf("%w: grid resolution %.3fmm must be positive", ErrInvalidConfiguration, r.GridResolution)
	}
	if r.GridResolution > r.Clearance {
		return fmt.Errorf("%w: grid resolution %.3fmm exceeds clearance %.3fmm",
			ErrInvalidConfiguration, r.GridResolution, r.Clearance)
	}
	if r.TraceWidth <= 0 {
		return fmt.Errorf("%w: trace width %.3fmm must be positive", ErrInvalidConfiguration, r.TraceWidth)
	}
	if r.ViaDrill <= 0 || r.ViaDiameter < r.ViaDrill {
		return fmt.Errorf("%w: via drill %.3fmm / diameter %.3fmm", ErrInvalidConfiguration, r.ViaDrill, r.ViaDiameter)
	}
	if r.ViaImpactWeight < 0 {
		return fmt.Errorf("%w: via impact weight must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

// ClearanceCells converts a clearance distance into whole grid cells,
// rounding up so the discretized clearance never undershoots the rule.
func (r DesignRules) ClearanceCells(clearance float64) int {
	if clearance <= 0 {
		return 0
	}
	cells := int(clearance / r.GridResolution)
	if float64(cells)*r.GridResolution < clearance-1e-9 {
		cells++
	}
	return cells
}
