package climate

// Window is a bounded FIFO of apparent-temperature samples. Control
// decisions wait until the window is full, then act on the mean of the
// most recent size samples; each new sample evicts the oldest.
type Window struct {
	samples []float64
	size    int
	next    int
	count   int
	sum     float64
}

// NewWindow creates a window holding size samples.
func NewWindow(size int) *Window {
	return &Window{samples: make([]float64, size), size: size}
}

// Push adds a sample, evicting the oldest when full.
func (w *Window) Push(v float64) {
	if w.count == w.size {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.sum += v
	w.samples[w.next] = v
	w.next = (w.next + 1) % w.size
}

// Ready reports whether enough samples have accumulated to act on.
func (w *Window) Ready() bool {
	return w.count == w.size
}

// Mean returns the arithmetic mean of the held samples.
func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// Len returns the number of held samples.
func (w *Window) Len() int {
	return w.count
}
