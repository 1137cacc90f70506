package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var buffer = NewRingBuffer(256)

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an event in the ring buffer and fans it out to every
// live subscriber. The event name must be registered.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// Snapshot returns the buffered events in order.
func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

// Sink adapts the package-level emitter to the pipeline's event
// interface. Error-suffixed events log at error level.
type Sink struct{}

func (Sink) Emit(event string, fields map[string]interface{}) {
	level := "info"
	if strings.HasSuffix(event, ".error") {
		level = "error"
	}
	_, _ = Emit(level, event, "", fields)
}
