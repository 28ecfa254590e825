package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// jsonCodec serializes plain Go messages as JSON under the "json" codec name,
// so handlers and clients speak the Connect protocol with application/json bodies.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "unmarshal message")
	}
	return nil
}
