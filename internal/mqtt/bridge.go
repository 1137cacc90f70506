package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/pipeline"
)

// commandTimeout bounds how long one broker command may hold the
// pipeline. Runs include two patch executions, so this is generous.
const commandTimeout = 30 * time.Second

// Control is the slice of the pipeline the bridge drives.
type Control interface {
	RunBoth(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error)
	AssignSource(ctx context.Context, req pipeline.SourceRequest) error
	ClearSource(ctx context.Context, slot string) error
	SetSlotSpeed(ctx context.Context, slot string, speed float64) error
	SetComposite(ctx context.Context, mode string, params map[string]float64) error
	Status(ctx context.Context) (pipeline.Status, error)
}

// Bridge maps command topics under a shared prefix onto pipeline
// operations and publishes each outcome on the matching result topic.
//
//	<prefix>/run           -> <prefix>/run/result
//	<prefix>/source        -> <prefix>/source/result
//	<prefix>/source/clear  -> <prefix>/source/result
//	<prefix>/speed         -> <prefix>/speed/result
//	<prefix>/composite     -> <prefix>/composite/result
//	<prefix>/status        -> <prefix>/status/result
type Bridge struct {
	client  *Client
	control Control
	prefix  string
	log     zerolog.Logger
}

// NewBridge creates a bridge over an already constructed client.
func NewBridge(client *Client, control Control, prefix string) *Bridge {
	return &Bridge{
		client:  client,
		control: control,
		prefix:  prefix,
		log:     log.WithComponent("mqtt"),
	}
}

// Start subscribes to every command topic. The client must be
// connected first.
func (b *Bridge) Start() error {
	for _, op := range []string{"run", "source", "source/clear", "speed", "composite", "status"} {
		op := op
		topic := b.prefix + "/" + op
		handler := func(_ paho.Client, msg paho.Message) {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			respTopic, resp := b.dispatch(ctx, op, msg.Payload())
			if err := b.client.Publish(respTopic, resp); err != nil {
				b.log.Warn().Err(err).Str("topic", respTopic).Msg("result publish failed")
			}
		}
		if err := b.client.Subscribe(topic, handler); err != nil {
			return err
		}
		b.log.Info().Str("topic", topic).Msg("command topic subscribed")
	}
	return nil
}

type clearPayload struct {
	Slot string `json:"slot"`
}

type speedPayload struct {
	Slot  string  `json:"slot"`
	Speed float64 `json:"speed"`
}

type compositePayload struct {
	Mode       string             `json:"mode"`
	Parameters map[string]float64 `json:"parameters"`
}

// dispatch decodes one command payload, runs it against the pipeline
// and returns the result topic and body to publish.
func (b *Bridge) dispatch(ctx context.Context, op string, payload []byte) (string, []byte) {
	switch op {
	case "run":
		var req pipeline.RunRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return b.prefix + "/run/result", errorBody(err)
		}
		result, err := b.control.RunBoth(ctx, req)
		if err != nil {
			return b.prefix + "/run/result", errorBody(err)
		}
		return b.prefix + "/run/result", mustJSON(result)

	case "source":
		var req pipeline.SourceRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return b.prefix + "/source/result", errorBody(err)
		}
		return b.prefix + "/source/result", ackOrError(b.control.AssignSource(ctx, req))

	case "source/clear":
		var req clearPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return b.prefix + "/source/result", errorBody(err)
		}
		return b.prefix + "/source/result", ackOrError(b.control.ClearSource(ctx, req.Slot))

	case "speed":
		var req speedPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return b.prefix + "/speed/result", errorBody(err)
		}
		return b.prefix + "/speed/result", ackOrError(b.control.SetSlotSpeed(ctx, req.Slot, req.Speed))

	case "composite":
		var req compositePayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return b.prefix + "/composite/result", errorBody(err)
		}
		return b.prefix + "/composite/result", ackOrError(b.control.SetComposite(ctx, req.Mode, req.Parameters))

	case "status":
		status, err := b.control.Status(ctx)
		if err != nil {
			return b.prefix + "/status/result", errorBody(err)
		}
		return b.prefix + "/status/result", mustJSON(status)
	}

	return b.prefix + "/error", errorBody(&unknownOpError{Op: op})
}

type unknownOpError struct {
	Op string
}

func (e *unknownOpError) Error() string {
	return "unknown command: " + e.Op
}

func ackOrError(err error) []byte {
	if err != nil {
		return errorBody(err)
	}
	return []byte(`{"ok":true}`)
}

func errorBody(err error) []byte {
	return mustJSON(map[string]interface{}{"ok": false, "error": err.Error()})
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"ok":false,"error":"encode failure"}`)
	}
	return b
}
