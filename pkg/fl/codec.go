package fl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// DecodeUpdateCBOR decodes a CBOR-encoded update as sent by constrained clients.
func DecodeUpdateCBOR(data []byte) (Update, error) {
	var u Update
	if err := cbor.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("failed to decode CBOR update: %w", err)
	}

	return u, nil
}

func EncodeUpdateCBOR(u Update) ([]byte, error) {
	data, err := cbor.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR update: %w", err)
	}

	return data, nil
}
