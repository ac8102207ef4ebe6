package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// DecodeRaw decodes a raw JSON entity payload, keeping only the accepted
// attributes. Unknown attributes are skipped without being decoded.
func DecodeRaw(data []byte) (models.Document, error) {
	doc := models.Document{}
	err := jsonparser.ObjectEach(data, func(key []byte, raw []byte, typ jsonparser.ValueType, _ int) error {
		name := string(key)
		if !models.IsAttribute(name) {
			return nil
		}
		if typ == jsonparser.String {
			s, err := jsonparser.ParseString(raw)
			if err != nil {
				return fmt.Errorf("attribute %s: %w", name, err)
			}
			doc[name] = s
			return nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		doc[name] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrValidation, err)
	}
	return doc, nil
}

// FromJSON is DecodeRaw followed by Normalize.
func (n *Normalizer) FromJSON(ctx context.Context, data []byte, actor string, now time.Time) (models.Document, error) {
	raw, err := DecodeRaw(data)
	if err != nil {
		return nil, err
	}
	return n.Normalize(ctx, raw, actor, now)
}
