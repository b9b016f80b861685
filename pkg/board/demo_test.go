package board

import "testing"

func TestDemoBoardsBuildWithValidRules(t *testing.T) {
	cases := []struct {
		name  string
		build func() (*Board, DesignRules, error)
		nets  int
	}{
		{"two-pad", DemoTwoPad, 1},
		{"detour", func() (*Board, DesignRules, error) { return DemoObstacleDetour(true) }, 1},
		{"detour blocked", func() (*Board, DesignRules, error) { return DemoObstacleDetour(false) }, 1},
		{"charlieplex", DemoCharlieplex, 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, rules, err := tc.build()
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if err := rules.Validate(); err != nil {
				t.Fatalf("demo rules invalid: %v", err)
			}
			if got := len(b.RoutableNets()); got != tc.nets {
				t.Fatalf("routable nets = %d, want %d", got, tc.nets)
			}
		})
	}
}

func TestDemoObstacleDetourVariants(t *testing.T) {
	open, rules, err := DemoObstacleDetour(true)
	if err != nil {
		t.Fatalf("two-layer variant failed: %v", err)
	}
	if rules.GridResolution > rules.Clearance {
		t.Fatalf("rules lost on the obstacle variant: %+v", rules)
	}
	if len(open.Obstacles) != 1 {
		t.Fatalf("open variant has %d obstacles, want the wall only", len(open.Obstacles))
	}

	blocked, _, err := DemoObstacleDetour(false)
	if err != nil {
		t.Fatalf("blocked variant failed: %v", err)
	}
	if len(blocked.Obstacles) != 2 {
		t.Fatalf("blocked variant has %d obstacles, want wall plus keepout", len(blocked.Obstacles))
	}
	var zone bool
	for _, o := range blocked.Obstacles {
		if o.Zone && o.Layers.Contains(BackCopper) {
			zone = true
		}
	}
	if !zone {
		t.Fatal("blocked variant has no back-layer keepout zone")
	}
}
