package translator

import (
	"encoding/json"
	"fmt"

	"github.com/noah-isme/activity-report-api/internal/models"
)

const documentVersion = 1

type document struct {
	Version  int             `json:"version"`
	Activity models.Activity `json:"activity"`
}

// EncodeDocument serialises the canonical activity for key-value storage.
// Numeric fields are stored as given.
func EncodeDocument(a models.Activity) ([]byte, error) {
	ApplyWeek(&a)
	raw, err := json.Marshal(document{Version: documentVersion, Activity: a})
	if err != nil {
		return nil, fmt.Errorf("encode activity %s: %w", a.ID, err)
	}
	return raw, nil
}

// DecodeDocument parses a stored document. Bare activity objects written
// without the envelope are accepted too.
func DecodeDocument(raw []byte) (models.Activity, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Activity{}, fmt.Errorf("decode activity document: %w", err)
	}
	if doc.Version == 0 {
		var a models.Activity
		if err := json.Unmarshal(raw, &a); err != nil {
			return models.Activity{}, fmt.Errorf("decode activity document: %w", err)
		}
		return a, nil
	}
	if doc.Version > documentVersion {
		return models.Activity{}, fmt.Errorf("decode activity document: unsupported version %d", doc.Version)
	}
	return doc.Activity, nil
}
