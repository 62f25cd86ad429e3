package pulseox

// Window keeps the last values of a series, tracking their minimum and
// maximum. It is used to bring signals of different scales onto a common
// plot.
type Window struct {
	buffer []float64
	idx    int
	n      int

	max float64
	min float64
}

// NewWindow returns a window holding up to size values.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		buffer: make([]float64, size),
		idx:    -1,
	}
}

// Add appends values, dropping the oldest ones once the window is full.
func (w *Window) Add(entries ...float64) {
	for _, e := range entries {
		w.idx++
		w.idx %= len(w.buffer)

		old := w.buffer[w.idx]
		full := w.n == len(w.buffer)
		w.buffer[w.idx] = e
		if !full {
			w.n++
		}

		switch {
		case w.n == 1:
			w.max = e
			w.min = e
		case full && (old == w.max || old == w.min):
			w.rescan()
		default:
			w.minmax(e)
		}
	}
}

func (w *Window) rescan() {
	w.max = w.buffer[0]
	w.min = w.buffer[0]
	for _, b := range w.buffer[1:w.n] {
		w.minmax(b)
	}
}

func (w *Window) minmax(v float64) {
	if v > w.max {
		w.max = v
	}
	if v < w.min {
		w.min = v
	}
}

// Len returns the number of values held.
func (w *Window) Len() int {
	return w.n
}

// Last returns the newest value, or 0 if the window is empty.
func (w *Window) Last() float64 {
	if w.n == 0 {
		return 0
	}
	return w.buffer[w.idx]
}

// Min returns the smallest value held.
func (w *Window) Min() float64 {
	return w.min
}

// Max returns the largest value held.
func (w *Window) Max() float64 {
	return w.max
}

// Values returns the values held, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.n)
	start := w.idx - w.n + 1
	for i := 0; i < w.n; i++ {
		out = append(out, w.buffer[(start+i+len(w.buffer))%len(w.buffer)])
	}
	return out
}

// Scale maps v onto [0, span] using the window minimum and maximum.
func (w *Window) Scale(v, span float64) float64 {
	if w.n == 0 || w.max == w.min {
		return 0
	}
	s := (v - w.min) / (w.max - w.min) * span
	if s < 0 {
		return 0
	}
	if s > span {
		return span
	}
	return s
}
