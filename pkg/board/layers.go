package board

import "fmt"

// Copper layer naming follows the KiCad convention: the front copper layer
// is always "F.Cu", the back copper layer is always "B.Cu", and inner
// layers are "In1.Cu", "In2.Cu", ... counted from the front.
const (
	FrontCopper = "F.Cu"
	BackCopper  = "B.Cu"

	// AllCopper is the wildcard layer set entry used by through-hole pads:
	// it matches every copper layer of the current stack, whatever its size.
	AllCopper = "*.Cu"
)

// Layer is one copper layer of the stack.
type Layer struct {
	Index int    // Physical position in the stack (0 = front)
	Name  string // Canonical name ("F.Cu", "In1.Cu", "B.Cu")
}

// LayerStack is an ordered set of copper layers.
//
// The canonical identity of the outer layers is independent of stack size:
// F.Cu is always index 0 and B.Cu is always the last index. Growing the
// stack inserts inner layers between the two outer layers, so outer-layer
// identity is stable across any 2->4->6 escalation sequence.
type LayerStack struct {
	layers []Layer
	byName map[string]int
}

// NewLayerStack builds a copper stack with the given layer count.
// PCB stacks are symmetric, so the count must be an even number >= 2.
func NewLayerStack(count int) (*LayerStack, error) {
	if count < 2 || count%2 != 0 {
		return nil, fmt.Errorf("layer count must be an even number >= 2, got %d", count)
	}

	ls := &LayerStack{
		layers: make([]Layer, count),
		byName: make(map[string]int, count),
	}
	for i := 0; i < count; i++ {
		ls.layers[i] = Layer{Index: i, Name: layerName(i, count)}
		ls.byName[ls.layers[i].Name] = i
	}
	return ls, nil
}

// layerName returns the canonical name of physical layer i in a stack of
// the given size.
func layerName(i, count int) string {
	switch i {
	case 0:
		return FrontCopper
	case count - 1:
		return BackCopper
	default:
		return fmt.Sprintf("In%d.Cu", i)
	}
}

// Count reports the number of copper layers.
func (ls *LayerStack) Count() int {
	return len(ls.layers)
}

// Layers returns the layers in physical order (front first).
func (ls *LayerStack) Layers() []Layer {
	out := make([]Layer, len(ls.layers))
	copy(out, ls.layers)
	return out
}

// IndexOf resolves a canonical layer name to its physical index.
func (ls *LayerStack) IndexOf(name string) (int, bool) {
	i, ok := ls.byName[name]
	return i, ok
}

// Name returns the canonical name of the layer at physical index i.
func (ls *LayerStack) Name(i int) (string, bool) {
	if i < 0 || i >= len(ls.layers) {
		return "", false
	}
	return ls.layers[i].Name, true
}

// Grow returns a new stack with the given (larger, even) layer count.
// F.Cu stays at index 0 and B.Cu moves to the new last index; the added
// layers become inner layers. The receiver is not modified.
func (ls *LayerStack) Grow(count int) (*LayerStack, error) {
	if count <= len(ls.layers) {
		return nil, fmt.Errorf("grow target %d not larger than current %d layers", count, len(ls.layers))
	}
	return NewLayerStack(count)
}

// LayerSet is a set of layer names a pad or obstacle occupies. The
// wildcard AllCopper matches every copper layer.
type LayerSet []string

// Contains reports whether the set includes the named copper layer.
func (s LayerSet) Contains(name string) bool {
	for _, l := range s {
		if l == name || l == AllCopper {
			return true
		}
	}
	return false
}

// Resolve expands the set to physical layer indices against a stack.
// Unknown names are ignored; the wildcard expands to every layer.
func (s LayerSet) Resolve(stack *LayerStack) []int {
	seen := make(map[int]bool)
	var out []int
	for _, name := range s {
		if name == AllCopper {
			for i := 0; i < stack.Count(); i++ {
				if !seen[i] {
					seen[i] = true
					out = append(out, i)
				}
			}
			continue
		}
		if i, ok := stack.IndexOf(name); ok && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}
