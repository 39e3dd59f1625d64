package transactions

import (
	"encoding/json"
	"fmt"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// MetadataVersion is the only metadata layout this build understands.
const MetadataVersion = 1

// Metadata is the versioned key/value annotation carried on a transaction. The
// ledger stores the encoded bytes without looking inside.
type Metadata struct {
	Version int               `json:"v"`
	Values  map[string]string `json:"values"`
}

// EncodeMetadata stamps the current version on values and encodes them. Empty
// values encode to nil.
func EncodeMetadata(values map[string]string) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(Metadata{Version: MetadataVersion, Values: values})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

// DecodeMetadata parses raw metadata bytes, rejecting layouts from other versions.
func DecodeMetadata(raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		return Metadata{Version: MetadataVersion, Values: map[string]string{}}, nil
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, apperrors.Validation("metadata is not valid: %v", err)
	}
	if m.Version != MetadataVersion {
		return Metadata{}, apperrors.Validation("unsupported metadata version %d", m.Version)
	}
	if m.Values == nil {
		m.Values = map[string]string{}
	}
	return m, nil
}
