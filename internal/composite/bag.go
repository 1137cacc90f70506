package composite

// Bag is the live parameter store read by the active template's
// per-frame closures. It is deliberately unsynchronized: every write
// and every read happens on the pipeline goroutine, which serializes
// control messages and render ticks. Values are plain numbers with no
// invariant spanning keys, so single writes are always consistent.
type Bag struct {
	values map[string]float64
}

// NewBag returns an empty parameter bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]float64)}
}

// Get returns the value for key, or 0 when unset.
func (b *Bag) Get(key string) float64 {
	return b.values[key]
}

// Has reports whether key has been written.
func (b *Bag) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// Set writes key to value.
func (b *Bag) Set(key string, value float64) {
	b.values[key] = value
}

// Seed writes the value only when key is absent. Values carried over
// from a previous mode that shares the key name are preserved.
func (b *Bag) Seed(key string, value float64) {
	if _, ok := b.values[key]; !ok {
		b.values[key] = value
	}
}

// Snapshot copies the current bag contents.
func (b *Bag) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}
