package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/nondejus/ilp-plugin-ethereum/ilp"
)

// packetEnvelope is the wire encoding this plugin uses for the ilp
// subprotocol's payload. A production deployment would instead carry the
// standard ASN.1 OER ILP packet format; that codec is an external
// collaborator; this envelope exists so the settlement
// engine is exercisable end to end without it.
type packetEnvelope struct {
	Prepare *ilp.Prepare `json:"prepare,omitempty"`
	Fulfill *ilp.Fulfill `json:"fulfill,omitempty"`
	Reject  *ilp.Reject  `json:"reject,omitempty"`
}

func encodeEnvelope(env packetEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("plugin: encode packet: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (packetEnvelope, error) {
	var env packetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("plugin: decode packet: %w", err)
	}
	return env, nil
}
