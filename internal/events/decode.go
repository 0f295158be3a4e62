package events

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/benrt/internal/rpc"
)

//go:embed schema.cue
var schemaSource string

var (
	// ErrUnknownTopic is returned for wire names outside the topic set.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrInvalidPayload is returned when a payload fails schema validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Decoder validates raw payloads and decodes them into typed events.
// It is safe for concurrent use.
type Decoder struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[Topic]cue.Value
}

// NewDecoder compiles the embedded payload schema.
func NewDecoder() (*Decoder, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	d := &Decoder{ctx: ctx, schemas: make(map[Topic]cue.Value, len(topicDefs))}
	for topic, def := range topicDefs {
		v := root.LookupPath(cue.ParsePath(def))
		if !v.Exists() {
			return nil, fmt.Errorf("event schema: missing %s", def)
		}
		d.schemas[topic] = v
	}
	return d, nil
}

// MustDecoder is NewDecoder for callers that treat a broken embedded schema
// as a programming error.
func MustDecoder() *Decoder {
	d, err := NewDecoder()
	if err != nil {
		panic(err)
	}
	return d
}

// Decode validates data against name's schema and returns the typed event.
func (d *Decoder) Decode(name string, data []byte, at time.Time) (Event, error) {
	topic, ok := ParseTopic(name)
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	if err := d.validate(topic, data); err != nil {
		return Event{}, err
	}

	var payload any
	var err error
	switch topic {
	case TopicScanProgress:
		payload, err = unmarshal[rpc.ScanProgress](data)
	case TopicQueueState:
		payload, err = unmarshal[rpc.QueueState](data)
	case TopicPlayerState:
		payload, err = unmarshal[rpc.PlayerState](data)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	return Event{Topic: topic, Payload: payload, ReceivedAt: at}, nil
}

func (d *Decoder) validate(topic Topic, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.ctx.CompileBytes(data, cue.Filename(topic.String()+".json"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	if err := d.schemas[topic].Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, topic, err)
	}
	return nil
}

func unmarshal[T any](data []byte) (T, error) {
	var out T
	err := json.Unmarshal(data, &out)
	return out, err
}
