package board

import "fmt"

// Built-in demo boards. These serve the same purpose as hardware-free
// simulator scenarios: exercising the full engine from tests and the CLI
// without an external board loader.

// DemoTwoPad returns a two-layer board with a single two-pad net, 10mm
// apart on F.Cu with nothing in between. The expected result is one
// contiguous same-layer path with zero vias.
func DemoTwoPad() (*Board, DesignRules, error) {
	rules := DefaultDesignRules()
	rules.GridResolution = 0.2
	rules.Clearance = 0.2

	stack, err := NewLayerStack(2)
	if err != nil {
		return nil, rules, err
	}

	// An SMD driver pad and a through-hole connector pad: the target is
	// enterable on any copper layer, so a blocked front layer costs the
	// detour exactly one via.
	u1 := &Component{Reference: "U1", Pitch: 2.54}
	j1 := &Component{Reference: "J1", Pitch: 2.54}
	pads := []*Pad{
		{Position: Position{X: 1, Y: 2}, Size: Size{Width: 1, Height: 1}, NetID: 1, Layers: LayerSet{FrontCopper}, Component: u1},
		{Position: Position{X: 11, Y: 2}, Size: Size{Width: 1, Height: 1}, NetID: 1, Layers: LayerSet{AllCopper}, Component: j1},
	}

	outline := BoundingBox{Min: Position{X: 0, Y: 0}, Max: Position{X: 12, Y: 4}}
	b, err := NewBoard(outline, stack, pads, nil)
	return b, rules, err
}

// DemoObstacleDetour returns the two-pad board with an obstacle wall on
// F.Cu directly between the pads. With twoLayer true the second copper
// layer is open and the route must detour through exactly one via pair;
// with twoLayer false the back layer is covered by a keepout zone, leaving
// no path at all.
func DemoObstacleDetour(twoLayer bool) (*Board, DesignRules, error) {
	b, rules, err := DemoTwoPad()
	if err != nil {
		return nil, rules, err
	}

	wall := &Obstacle{
		Box:    BoundingBox{Min: Position{X: 5.5, Y: -1}, Max: Position{X: 6.5, Y: 5}},
		Layers: LayerSet{FrontCopper},
	}
	obstacles := []*Obstacle{wall}
	if !twoLayer {
		obstacles = append(obstacles, &Obstacle{
			Box:    b.Outline.Inflate(1),
			Layers: LayerSet{BackCopper},
			Zone:   true,
		})
	}

	nb, err := NewBoard(b.Outline, b.Stack, b.Pads, obstacles)
	return nb, rules, err
}

// DemoCharlieplex returns a charlieplex-style 3x3 LED matrix board: nine
// two-pad nets on two copper layers whose left and right terminals are
// shifted against each other, so several nets must cross. A healthy run
// routes at least 80% of the nets.
func DemoCharlieplex() (*Board, DesignRules, error) {
	rules := DefaultDesignRules()
	rules.GridResolution = 0.2
	rules.Clearance = 0.2

	stack, err := NewLayerStack(2)
	if err != nil {
		return nil, rules, err
	}

	var pads []*Pad
	for i := 1; i <= 9; i++ {
		led := &Component{Reference: fmt.Sprintf("D%d", i), Pitch: 1.8}
		left := float64(i)*1.8 - 0.3
		right := float64((i+2)%9+1)*1.8 - 0.3
		pads = append(pads,
			&Pad{Position: Position{X: 2, Y: left}, Size: Size{Width: 0.8, Height: 0.8},
				NetID: i, Layers: LayerSet{FrontCopper}, Component: led},
			&Pad{Position: Position{X: 18, Y: right}, Size: Size{Width: 0.8, Height: 0.8},
				NetID: i, Layers: LayerSet{FrontCopper}, Component: led},
		)
	}

	outline := BoundingBox{Min: Position{X: 0, Y: 0}, Max: Position{X: 20, Y: 18}}
	b, err := NewBoard(outline, stack, pads, nil)
	return b, rules, err
}
