package overmind

// history is a fixed-capacity FIFO of total-energy samples. Once full, each
// push overwrites the oldest sample.
type history struct {
	buf   []float64
	head  int // index of the oldest sample
	count int
}

func newHistory(capacity int) *history {
	return &history{buf: make([]float64, capacity)}
}

func (h *history) Push(v float64) {
	if h.count < len(h.buf) {
		h.buf[(h.head+h.count)%len(h.buf)] = v
		h.count++
		return
	}
	h.buf[h.head] = v
	h.head = (h.head + 1) % len(h.buf)
}

func (h *history) Len() int {
	return h.count
}

// At returns the i-th oldest sample.
func (h *history) At(i int) float64 {
	return h.buf[(h.head+i)%len(h.buf)]
}

// MeanOldest averages the n oldest samples.
func (h *history) MeanOldest(n int) float64 {
	n = min(n, h.count)
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += h.At(i)
	}
	return sum / float64(n)
}

// MeanNewest averages the n newest samples.
func (h *history) MeanNewest(n int) float64 {
	n = min(n, h.count)
	if n == 0 {
		return 0
	}
	var sum float64
	for i := h.count - n; i < h.count; i++ {
		sum += h.At(i)
	}
	return sum / float64(n)
}
