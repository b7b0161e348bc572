package ring_buffer

type Interface interface {
	Add(samples []float64)
	Read() []float64
	Full() bool
	Clear()
}
