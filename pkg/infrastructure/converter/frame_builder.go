package converter

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/models"
)

// FrameBuilder assembles result frames from grid fields query payloads.
type FrameBuilder struct {
	types  TypeConverter
	logger zerolog.Logger
}

// NewFrameBuilder creates a frame builder.
func NewFrameBuilder(logger zerolog.Logger) *FrameBuilder {
	return &FrameBuilder{
		types:  New(logger),
		logger: logger,
	}
}

// Build translates a successful payload into a frame for refID.
// Field metadata drives the field list; items are appended in source order.
// A row whose arity differs from the field count fails with CodeTranslation.
// A cell that cannot be coerced to its field type becomes nil.
func (b *FrameBuilder) Build(refID string, result *models.QueryFieldsResult) (*models.ResultFrame, error) {
	if result == nil {
		return nil, errors.New(errors.CodeTranslation, "fields query returned no payload")
	}

	fields := make([]models.FieldDescriptor, len(result.FieldsMetadata))
	for i, meta := range result.FieldsMetadata {
		fields[i] = models.FieldDescriptor{
			Name:       meta.FieldName,
			Type:       b.types.InferFieldType(meta.FieldTypeName),
			SourceType: meta.FieldTypeName,
		}
	}

	rows := make([][]any, 0, len(result.Items))
	for r, item := range result.Items {
		if len(item) != len(fields) {
			return nil, errors.New(errors.CodeTranslation, "row width does not match field metadata").
				WithDetail("row", r).
				WithDetail("values", len(item)).
				WithDetail("fields", len(fields))
		}

		row := make([]any, len(fields))
		for c, cell := range item {
			v, err := b.types.NormalizeValue(cell, fields[c].Type)
			if err != nil {
				// The cell is nulled so the column keeps its inferred type.
				b.logger.Debug().
					Err(err).
					Str("ref_id", refID).
					Int("row", r).
					Str("field", fields[c].Name).
					Msg("Cell does not match field type, using null")
				v = nil
			}
			row[c] = v
		}
		rows = append(rows, row)
	}

	return &models.ResultFrame{
		RefID:  refID,
		Fields: fields,
		Rows:   rows,
	}, nil
}

// BuildFromResponse applies the envelope rule before building: an error
// envelope yields an empty frame regardless of payload content.
func (b *FrameBuilder) BuildFromResponse(refID string, resp *models.RestResponse) (*models.ResultFrame, error) {
	if resp == nil || !resp.OK() {
		return models.NewEmptyFrame(refID), nil
	}

	var result models.QueryFieldsResult
	if err := decodePayload(resp, &result); err != nil {
		return nil, errors.Wrap(err, errors.CodeTranslation, "failed to decode fields query payload")
	}
	return b.Build(refID, &result)
}

// decodePayload keeps numbers as json.Number so long values survive until
// they are normalised against their field type.
func decodePayload(resp *models.RestResponse, v any) error {
	if len(resp.Response) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Response))
	dec.UseNumber()
	return dec.Decode(v)
}
