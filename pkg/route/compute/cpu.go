package compute

// cpuBackend is the mandatory fallback implementation. It is always
// available and always probes successfully.
type cpuBackend struct{}

func init() {
	register(func() Backend { return cpuBackend{} })
}

func (cpuBackend) Name() string { return "cpu" }

func (cpuBackend) Fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}

func (cpuBackend) AddScaled(dst, src []float64, scale float64) {
	for i := range dst {
		dst[i] += src[i] * scale
	}
}

func (cpuBackend) ExcessOver(dst, src []float64, limit float64) {
	for i := range dst {
		if e := src[i] - limit; e > 0 {
			dst[i] = e
		} else {
			dst[i] = 0
		}
	}
}

func (cpuBackend) Sum(src []float64) float64 {
	var total float64
	for _, v := range src {
		total += v
	}
	return total
}

func (cpuBackend) CountAbove(src []float64, threshold float64) int {
	n := 0
	for _, v := range src {
		if v > threshold {
			n++
		}
	}
	return n
}
