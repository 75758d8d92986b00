package indicators

// DefaultCapacity is the rolling window size used by the trading session.
const DefaultCapacity = 100

// PriceBuffer is a fixed-capacity ring of recent prices. Once full, each Push
// overwrites the oldest entry. It is not safe for concurrent use.
type PriceBuffer struct {
	buf  []float64
	next int // slot the next Push writes to
	n    int
}

// NewPriceBuffer allocates a buffer holding at most capacity prices.
func NewPriceBuffer(capacity int) *PriceBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PriceBuffer{buf: make([]float64, capacity)}
}

// Push appends a price, evicting the oldest one when the buffer is full.
func (b *PriceBuffer) Push(price float64) {
	b.buf[b.next] = price
	b.next = (b.next + 1) % len(b.buf)
	if b.n < len(b.buf) {
		b.n++
	}
}

// Len returns the number of stored prices.
func (b *PriceBuffer) Len() int { return b.n }

// Cap returns the fixed capacity.
func (b *PriceBuffer) Cap() int { return len(b.buf) }

// At returns the i-th stored price, 0 being the oldest.
func (b *PriceBuffer) At(i int) float64 {
	if i < 0 || i >= b.n {
		panic("indicators: PriceBuffer index out of range")
	}
	start := (b.next - b.n + len(b.buf)) % len(b.buf)
	return b.buf[(start+i)%len(b.buf)]
}

// Last returns the most recent price, or 0 when empty.
func (b *PriceBuffer) Last() float64 {
	if b.n == 0 {
		return 0
	}
	return b.At(b.n - 1)
}

// Values returns a copy of the stored prices ordered oldest to newest.
func (b *PriceBuffer) Values() []float64 {
	out := make([]float64, b.n)
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// Tail returns a copy of the newest k prices (fewer if not available).
func (b *PriceBuffer) Tail(k int) []float64 {
	if k > b.n {
		k = b.n
	}
	if k <= 0 {
		return nil
	}
	out := make([]float64, k)
	for i := range out {
		out[i] = b.At(b.n - k + i)
	}
	return out
}
