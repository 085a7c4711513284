package audio

import "math"

// RingCapture is a fixed-capacity mono sample buffer. Once full, appending
// evicts the oldest samples first, so the buffer always holds the most
// recent capacity samples.
type RingCapture struct {
	buf   []float32
	head  int
	count int
}

func NewRingCapture(capacity int) *RingCapture {
	if capacity < 1 {
		capacity = 1
	}
	return &RingCapture{buf: make([]float32, capacity)}
}

func (r *RingCapture) Capacity() int {
	return len(r.buf)
}

func (r *RingCapture) Len() int {
	return r.count
}

// Append copies samples into the ring, overwriting the oldest entries when
// capacity is exceeded.
func (r *RingCapture) Append(samples []float32) {
	for _, s := range samples {
		idx := (r.head + r.count) % len(r.buf)
		if r.count == len(r.buf) {
			// full: overwrite oldest and advance head
			r.buf[r.head] = s
			r.head = (r.head + 1) % len(r.buf)
		} else {
			r.buf[idx] = s
			r.count++
		}
	}
}

// Snapshot returns a copy of the buffered samples ordered oldest first.
func (r *RingCapture) Snapshot() []float32 {
	out := make([]float32, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *RingCapture) Clear() {
	r.head = 0
	r.count = 0
}

// RMS computes root-mean-square loudness of a chunk. Empty chunks are silent.
func RMS(chunk []float32) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(chunk)))
}
