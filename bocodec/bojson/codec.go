package bojson

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gordian-engine/benor/bocodec"
	"github.com/gordian-engine/benor/boconsensus"
)

// MarshalCodec is a [bocodec.Codec] backed by encoding/json.
type MarshalCodec struct{}

var _ bocodec.Codec = MarshalCodec{}

// jsonMessage is the wire shape of a [boconsensus.Message].
type jsonMessage struct {
	K           uint32          `json:"k"`
	X           json.RawMessage `json:"x"`
	MessageType string          `json:"messageType"`
}

// jsonState is the wire shape of a [boconsensus.NodeState].
// Faulty nodes report null for everything but killed.
type jsonState struct {
	Killed  bool       `json:"killed"`
	X       *jsonValue `json:"x"`
	Decided *bool      `json:"decided"`
	K       *uint32    `json:"k"`
}

func (MarshalCodec) MarshalMessage(m boconsensus.Message) ([]byte, error) {
	var mt string
	switch m.Phase {
	case boconsensus.PhaseProposal, boconsensus.PhaseVote:
		mt = m.Phase.String()
	default:
		return nil, fmt.Errorf("cannot marshal message with phase %v", m.Phase)
	}

	x, err := jsonValue(m.Value).MarshalJSON()
	if err != nil {
		return nil, err
	}

	return json.Marshal(jsonMessage{
		K:           m.Round,
		X:           x,
		MessageType: mt,
	})
}

// UnmarshalMessage decodes b into m.
// An unrecognized messageType decodes to the zero [boconsensus.Phase],
// which nodes acknowledge and ignore.
// Any x other than the numbers 0 and 1, including a missing or null x,
// decodes to [boconsensus.Undetermined]:
// the message still counts toward quorum but not toward either tally.
func (MarshalCodec) UnmarshalMessage(b []byte, m *boconsensus.Message) error {
	var jm jsonMessage
	if err := json.Unmarshal(b, &jm); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	var p boconsensus.Phase
	switch jm.MessageType {
	case "proposal":
		p = boconsensus.PhaseProposal
	case "vote":
		p = boconsensus.PhaseVote
	}

	*m = boconsensus.Message{
		Round: jm.K,
		Value: messageValue(jm.X),
		Phase: p,
	}
	return nil
}

func (MarshalCodec) MarshalState(s boconsensus.NodeState) ([]byte, error) {
	js := jsonState{Killed: !s.Alive}
	if !s.Faulty {
		x := jsonValue(s.Value)
		decided := s.Decided

		// A node that has not started is in round 0.
		k, _ := s.Progress.Round()

		js.X = &x
		js.Decided = &decided
		js.K = &k
	}

	return json.Marshal(js)
}

func (MarshalCodec) UnmarshalState(b []byte, s *boconsensus.NodeState) error {
	var js jsonState
	if err := json.Unmarshal(b, &js); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if js.X == nil {
		*s = boconsensus.NodeState{Faulty: true}
		return nil
	}

	progress := boconsensus.NotStarted()
	if js.K != nil && *js.K > 0 {
		progress = boconsensus.ActiveRound(*js.K)
	}

	*s = boconsensus.NodeState{
		Alive:    !js.Killed,
		Value:    boconsensus.Value(*js.X),
		Decided:  js.Decided != nil && *js.Decided,
		Progress: progress,
	}
	return nil
}

func messageValue(raw json.RawMessage) boconsensus.Value {
	var x any
	if err := json.Unmarshal(raw, &x); err != nil {
		// Missing x leaves raw empty.
		return boconsensus.Undetermined
	}

	switch x {
	case float64(0):
		return boconsensus.Zero
	case float64(1):
		return boconsensus.One
	default:
		return boconsensus.Undetermined
	}
}

// jsonValue encodes Zero and One as JSON numbers
// and Undetermined as the string "?".
type jsonValue boconsensus.Value

func (v jsonValue) MarshalJSON() ([]byte, error) {
	switch boconsensus.Value(v) {
	case boconsensus.Zero:
		return []byte("0"), nil
	case boconsensus.One:
		return []byte("1"), nil
	case boconsensus.Undetermined:
		return []byte(`"?"`), nil
	default:
		return nil, fmt.Errorf("cannot marshal value %d", uint8(v))
	}
}

func (v *jsonValue) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "0":
		*v = jsonValue(boconsensus.Zero)
	case "1":
		*v = jsonValue(boconsensus.One)
	case `"?"`:
		*v = jsonValue(boconsensus.Undetermined)
	default:
		return fmt.Errorf("invalid value %s: must be 0, 1, or \"?\"", b)
	}
	return nil
}
