package preview

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/metrics"
)

// Sink is the control-side endpoint for encoded preview messages.
type Sink interface {
	WriteBinary(data []byte) error
}

// Source is anything that can hand out a consistent copy of its
// current frame. Snapshot runs on the offering goroutine so capture
// never races the render pass.
type Source interface {
	Snapshot() *image.RGBA
}

// Transport throttles and ships preview frame pairs. Sampling is
// gated three ways per tick: a sink must be attached, the minimum
// inter-capture interval must have elapsed, and no capture may still
// be in flight. Attach after a Detach resumes with the same limiter
// state rather than starting over.
type Transport struct {
	width   int
	height  int
	limiter *rate.Limiter
	log     zerolog.Logger

	mu       sync.Mutex
	sink     Sink
	inflight atomic.Bool
}

// NewTransport creates a transport producing width x height frames at
// most fps times per second.
func NewTransport(width, height, fps int) *Transport {
	if fps <= 0 {
		fps = 15
	}
	return &Transport{
		width:   width,
		height:  height,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		log:     log.WithComponent("preview"),
	}
}

// Attach connects the control-side sink and enables sampling.
func (t *Transport) Attach(s Sink) {
	t.mu.Lock()
	t.sink = s
	t.mu.Unlock()
	t.log.Info().Str("event", "preview.attach").Msg("preview channel ready")
}

// Detach drops the sink and halts sampling until the next Attach.
func (t *Transport) Detach() {
	t.mu.Lock()
	t.sink = nil
	t.mu.Unlock()
	t.log.Info().Str("event", "preview.detach").Msg("preview channel gone")
}

// DetachSink drops the sink only if it is still the attached one, so
// a stale connection's teardown cannot evict its replacement.
func (t *Transport) DetachSink(s Sink) {
	t.mu.Lock()
	if t.sink == s {
		t.sink = nil
	}
	t.mu.Unlock()
}

// Ready reports whether a sink is attached.
func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sink != nil
}

// Offer is called once per render tick with the two patch surfaces.
// Either source may be nil when that surface has never been
// initialized. The snapshot happens synchronously on the caller's
// goroutine; scale, encode and write happen on a worker.
func (t *Transport) Offer(a, b Source) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()

	if sink == nil || (a == nil && b == nil) {
		metrics.PreviewSkippedTotal.WithLabelValues("not_ready").Inc()
		return
	}
	if !t.limiter.Allow() {
		metrics.PreviewSkippedTotal.WithLabelValues("throttled").Inc()
		return
	}
	if !t.inflight.CompareAndSwap(false, true) {
		metrics.PreviewSkippedTotal.WithLabelValues("inflight").Inc()
		return
	}

	var imgA, imgB *image.RGBA
	if a != nil {
		imgA = a.Snapshot()
	}
	if b != nil {
		imgB = b.Snapshot()
	}
	go t.ship(sink, imgA, imgB)
}

func (t *Transport) ship(sink Sink, imgA, imgB *image.RGBA) {
	defer t.inflight.Store(false)

	var fa, fb *Frame
	if imgA != nil {
		fa = capture(imgA, t.width, t.height)
	}
	if imgB != nil {
		fb = capture(imgB, t.width, t.height)
	}

	if err := sink.WriteBinary(EncodePair(fa, fb)); err != nil {
		t.log.Warn().Err(err).Str("event", "preview.write_failed").Msg("dropping preview sink")
		t.mu.Lock()
		if t.sink == sink {
			t.sink = nil
		}
		t.mu.Unlock()
		return
	}
	metrics.PreviewFramesTotal.Inc()
}
