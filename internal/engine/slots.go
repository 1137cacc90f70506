package engine

import (
	"image"
	"sync"
)

// MediaKind classifies the media assigned to a source slot.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAnimated MediaKind = "animatedImage"
)

// SlotBinding is one external-media feed (s0..s3) as seen by a single
// engine instance. The decode scheduler goroutine publishes frames
// into it; the render loop snapshots the current frame pointer at
// compile time, so per-pixel sampling is lock-free.
type SlotBinding struct {
	mu    sync.RWMutex
	index int
	url   string
	kind  MediaKind
	frame *image.RGBA
}

// Index returns the slot number (0..3).
func (b *SlotBinding) Index() int { return b.index }

// Assign records the slot's media identity. The actual frames arrive
// later via SetFrame once fetching/decoding completes.
func (b *SlotBinding) Assign(url string, kind MediaKind) {
	b.mu.Lock()
	b.url = url
	b.kind = kind
	b.frame = nil
	b.mu.Unlock()
}

// Clear detaches any media from the slot.
func (b *SlotBinding) Clear() {
	b.mu.Lock()
	b.url = ""
	b.kind = MediaNone
	b.frame = nil
	b.mu.Unlock()
}

// Kind returns the slot's current media kind.
func (b *SlotBinding) Kind() MediaKind {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kind
}

// URL returns the slot's current media URL.
func (b *SlotBinding) URL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.url
}

// SetFrame publishes a new current frame. The image must not be
// mutated after publishing; decoders build a fresh image per frame.
func (b *SlotBinding) SetFrame(img *image.RGBA) {
	b.mu.Lock()
	b.frame = img
	b.mu.Unlock()
}

// Frame returns the current frame, or nil if the slot is empty or the
// media has not decoded yet.
func (b *SlotBinding) Frame() *image.RGBA {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame
}
