package apiconnect

import (
	"encoding/json"
	"fmt"
)

// Codec marshals plain Go messages as JSON. It registers under the "json"
// name, so requests use the application/json content type.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
