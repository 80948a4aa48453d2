package message

import "encoding/json"

// Envelope is the wire form the edge bridge publishes for every broker
// message: the original topic, the raw payload, and the bridge's receive
// time in Unix milliseconds.
type Envelope struct {
	Topic      string `json:"topic"`
	Payload    []byte `json:"payload"`
	ReceivedAt int64  `json:"received_at"`
}

// DecodeEnvelope parses an envelope from its wire form.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Encode returns the envelope's wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
