package converter

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/infrastructure/pool"
	"github.com/TFMV/ignis/pkg/models"
)

// Metadata keys carried on records built from frames.
const (
	MetadataRefID      = "ignis.ref_id"
	MetadataSourceType = "ignis.source_type"
	MetadataFieldType  = "ignis.field_type"
)

// RecordBuilder converts frames to Arrow records and back.
type RecordBuilder struct {
	allocator memory.Allocator
	types     TypeConverter
	schemas   *pool.SchemaCache
	logger    zerolog.Logger
}

// NewRecordBuilder creates a record builder. schemas may be nil.
func NewRecordBuilder(allocator memory.Allocator, schemas *pool.SchemaCache, logger zerolog.Logger) *RecordBuilder {
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	if schemas == nil {
		schemas = pool.NewSchemaCache(100)
	}
	return &RecordBuilder{
		allocator: allocator,
		types:     New(logger),
		schemas:   schemas,
		logger:    logger,
	}
}

// Schema returns the Arrow schema of frame, with the frame's refId in the
// schema metadata.
func (b *RecordBuilder) Schema(frame *models.ResultFrame) *arrow.Schema {
	base := b.schemas.GetOrCreate(signature(frame), func() *arrow.Schema {
		fields := make([]arrow.Field, len(frame.Fields))
		for i, f := range frame.Fields {
			fields[i] = arrow.Field{
				Name:     f.Name,
				Type:     b.types.ArrowType(f.Type),
				Nullable: true,
				Metadata: arrow.NewMetadata(
					[]string{MetadataFieldType, MetadataSourceType},
					[]string{string(f.Type), f.SourceType},
				),
			}
		}
		return arrow.NewSchema(fields, nil)
	})

	md := arrow.NewMetadata([]string{MetadataRefID}, []string{frame.RefID})
	return arrow.NewSchema(base.Fields(), &md)
}

// Build converts frame to a record. The caller owns the returned record and
// must release it.
func (b *RecordBuilder) Build(frame *models.ResultFrame) (arrow.Record, error) {
	if err := frame.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeTranslation, "frame is not aligned")
	}

	schema := b.Schema(frame)
	rb := array.NewRecordBuilder(b.allocator, schema)
	defer rb.Release()

	for c, f := range frame.Fields {
		fb := rb.Field(c)
		fb.Reserve(len(frame.Rows))
		for r, row := range frame.Rows {
			if err := appendValue(fb, row[c]); err != nil {
				return nil, errors.Wrapf(err, errors.CodeTranslation, "row %d column %q", r, f.Name)
			}
		}
	}

	return rb.NewRecord(), nil
}

func appendValue(fb array.Builder, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}

	switch bldr := fb.(type) {
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		bldr.Append(bv)
	case *array.Float64Builder:
		fv, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		bldr.Append(fv)
	case *array.StringBuilder:
		sv, ok := v.(string)
		if !ok {
			sv = fmt.Sprint(v)
		}
		bldr.Append(sv)
	default:
		return fmt.Errorf("unsupported builder %T", fb)
	}
	return nil
}

// ToFrame converts a record built by Build back into a frame.
func ToFrame(rec arrow.Record) (*models.ResultFrame, error) {
	schema := rec.Schema()
	frame := &models.ResultFrame{
		RefID:  metadataValue(schema.Metadata(), MetadataRefID),
		Fields: make([]models.FieldDescriptor, schema.NumFields()),
		Rows:   make([][]any, rec.NumRows()),
	}

	for i, f := range schema.Fields() {
		fieldType := models.FieldType(metadataValue(f.Metadata, MetadataFieldType))
		if fieldType == "" {
			fieldType = fieldTypeOf(f.Type)
		}
		frame.Fields[i] = models.FieldDescriptor{
			Name:       f.Name,
			Type:       fieldType,
			SourceType: metadataValue(f.Metadata, MetadataSourceType),
		}
	}

	for r := range frame.Rows {
		frame.Rows[r] = make([]any, schema.NumFields())
	}

	for c := 0; c < int(rec.NumCols()); c++ {
		col := rec.Column(c)
		for r := 0; r < col.Len(); r++ {
			if col.IsNull(r) {
				continue
			}
			switch arr := col.(type) {
			case *array.Boolean:
				frame.Rows[r][c] = arr.Value(r)
			case *array.Float64:
				frame.Rows[r][c] = arr.Value(r)
			case *array.String:
				frame.Rows[r][c] = arr.Value(r)
			default:
				return nil, errors.New(errors.CodeTranslation, fmt.Sprintf("unsupported column type %s", col.DataType()))
			}
		}
	}

	return frame, nil
}

func fieldTypeOf(dt arrow.DataType) models.FieldType {
	switch dt.ID() {
	case arrow.BOOL:
		return models.FieldTypeBoolean
	case arrow.FLOAT64:
		return models.FieldTypeNumber
	case arrow.TIMESTAMP:
		return models.FieldTypeTime
	default:
		return models.FieldTypeString
	}
}

func metadataValue(md arrow.Metadata, key string) string {
	if idx := md.FindKey(key); idx >= 0 {
		return md.Values()[idx]
	}
	return ""
}

// signature identifies a frame's column layout independently of its refId.
func signature(frame *models.ResultFrame) string {
	var sb strings.Builder
	for i, f := range frame.Fields {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(string(f.Type))
		sb.WriteByte(':')
		sb.WriteString(f.SourceType)
	}
	return sb.String()
}
