// Package pipeline owns all render state and serializes every mutation
// onto one goroutine: patch execution, slot assignment, composite
// changes and the tick loop itself all run there. Control surfaces
// (HTTP, WebSocket, MQTT) talk to it through the exported methods,
// which post closures onto the command channel and wait.
package pipeline

import (
	"fmt"

	"github.com/patchmix/patchmix/internal/engine"
)

// RunRequest is one control-side run message: both patch sources plus
// the composite selection applied with them.
type RunRequest struct {
	PatchA              string             `json:"patchA"`
	PatchB              string             `json:"patchB"`
	CompositeMode       string             `json:"compositeMode,omitempty"`
	CompositeParameters map[string]float64 `json:"compositeParameters,omitempty"`
}

// PatchError carries one patch failure with its best-effort source
// location.
type PatchError struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	LineNumber int    `json:"lineNumber,omitempty"`
}

// PatchResult is the outcome of one patch execution attempt.
type PatchResult struct {
	Success bool        `json:"success"`
	Error   *PatchError `json:"error,omitempty"`
}

// RunResult pairs the two per-patch outcomes under one run sequence
// number so the control surface can correlate replies with requests.
type RunResult struct {
	RunID uint64      `json:"runId"`
	A     PatchResult `json:"A"`
	B     PatchResult `json:"B"`
}

// SourceRequest assigns media to a slot on both patch instances. A nil
// PlaybackSpeed means the field was omitted and playback runs at 1x;
// an explicit 0 assigns the media paused on its first frame.
type SourceRequest struct {
	Slot          string   `json:"slot"`
	MediaURL      string   `json:"mediaUrl"`
	MediaKind     string   `json:"mediaKind"`
	PlaybackSpeed *float64 `json:"playbackSpeed,omitempty"`
}

// Status is a point-in-time snapshot for the health endpoint.
type Status struct {
	Runs           uint64             `json:"runs"`
	CompositeMode  string             `json:"compositeMode"`
	CompositeBag   map[string]float64 `json:"compositeParameters"`
	Slots          []SlotStatus       `json:"slots"`
	PreviewReady   bool               `json:"previewReady"`
	ExecutedA      bool               `json:"executedA"`
	ExecutedB      bool               `json:"executedB"`
	RenderWidth    int                `json:"renderWidth"`
	RenderHeight   int                `json:"renderHeight"`
	TicksPerSecond int                `json:"ticksPerSecond"`
}

// SlotStatus describes one media slot as seen by instance A.
type SlotStatus struct {
	Slot string `json:"slot"`
	URL  string `json:"mediaUrl,omitempty"`
	Kind string `json:"mediaKind,omitempty"`
}

// ParseSlot maps "s0".."s3" to a slot index.
func ParseSlot(s string) (int, error) {
	switch s {
	case "s0":
		return 0, nil
	case "s1":
		return 1, nil
	case "s2":
		return 2, nil
	case "s3":
		return 3, nil
	}
	return 0, fmt.Errorf("unknown slot %q", s)
}

// ParseMediaKind validates a control-side media kind string.
func ParseMediaKind(s string) (engine.MediaKind, error) {
	switch engine.MediaKind(s) {
	case engine.MediaImage, engine.MediaVideo, engine.MediaAnimated:
		return engine.MediaKind(s), nil
	}
	return engine.MediaNone, fmt.Errorf("unknown media kind %q", s)
}
