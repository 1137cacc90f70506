package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// patch execution
	"patch.run":   {},
	"patch.error": {},

	// composite
	"composite.set":      {},
	"composite.fallback": {},
	"composite.error":    {},

	// media slots
	"source.assign": {},
	"source.clear":  {},
	"source.speed":  {},
	"decode.error":  {},

	// preview channel
	"preview.attach": {},
	"preview.detach": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
