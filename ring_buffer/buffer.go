package ring_buffer

// bufImpl keeps the most recent len(buffer) samples; head is the oldest.
type bufImpl struct {
	buffer []float64
	head   int
	filled int
}

func New(size int) Interface {
	return &bufImpl{
		buffer: make([]float64, size),
		head:   0,
	}
}

func (r *bufImpl) Add(samples []float64) {
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)

		if r.filled < len(r.buffer) {
			r.filled++
		}
	}
}

// Full reports whether every slot has been written at least once.
func (r *bufImpl) Full() bool {
	return r.filled == len(r.buffer)
}

// Read returns the buffered samples from oldest to newest.
func (r *bufImpl) Read() []float64 {
	samples := make([]float64, len(r.buffer))
	for i := 0; i < len(r.buffer); i++ {
		samples[i] = r.buffer[(r.head+i)%len(r.buffer)]
	}

	return samples
}

func (r *bufImpl) Clear() {
	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = 0
	}

	r.head = 0
	r.filled = 0
}
