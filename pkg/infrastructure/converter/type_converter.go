// Package converter translates grid REST results into frames and Arrow records.
package converter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog"

	"github.com/TFMV/ignis/pkg/models"
)

// TypeConverter maps grid type tags to frame and Arrow types.
type TypeConverter interface {
	// InferFieldType maps a grid type tag to a frame field type.
	InferFieldType(typeTag string) models.FieldType
	// ArrowType returns the Arrow type used for a frame field type.
	ArrowType(fieldType models.FieldType) arrow.DataType
	// NormalizeValue converts a decoded JSON cell to the representation of fieldType.
	NormalizeValue(value any, fieldType models.FieldType) (any, error)
}

type typeConverter struct {
	typeMap  map[string]models.FieldType
	arrowMap map[models.FieldType]arrow.DataType
	logger   zerolog.Logger
}

// New creates a new type converter.
func New(logger zerolog.Logger) TypeConverter {
	return &typeConverter{
		typeMap:  initializeTypeMap(),
		arrowMap: initializeArrowMap(),
		logger:   logger,
	}
}

// InferFieldType maps a grid type tag to a frame field type.
// Tags are matched on their simple class name, case-insensitively, so
// "java.lang.Long", "Long" and "long" agree. Unknown tags fall back to string.
func (tc *typeConverter) InferFieldType(typeTag string) models.FieldType {
	key := simpleTypeName(typeTag)
	if fieldType, ok := tc.typeMap[key]; ok {
		return fieldType
	}
	if key != "" {
		tc.logger.Debug().Str("type_tag", typeTag).Msg("Unknown grid type, using string")
	}
	return models.FieldTypeString
}

// InferFieldType uses the default table without logging.
func InferFieldType(typeTag string) models.FieldType {
	return defaultConverter.InferFieldType(typeTag)
}

var defaultConverter = New(zerolog.Nop())

// ArrowType returns the Arrow type used for a frame field type.
func (tc *typeConverter) ArrowType(fieldType models.FieldType) arrow.DataType {
	if dt, ok := tc.arrowMap[fieldType]; ok {
		return dt
	}
	return arrow.BinaryTypes.String
}

// NormalizeValue converts a decoded JSON cell to the representation of fieldType:
// float64 for numbers, bool for booleans, string otherwise. nil stays nil.
func (tc *typeConverter) NormalizeValue(value any, fieldType models.FieldType) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch fieldType {
	case models.FieldTypeNumber:
		return toFloat64(value)
	case models.FieldTypeBoolean:
		return toBool(value)
	default:
		return toText(value)
	}
}

func toFloat64(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", v.String(), err)
		}
		return f, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return f, nil
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to number", value)
	}
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q: %w", v, err)
		}
		return b, nil
	case float64:
		return v != 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q: %w", v.String(), err)
		}
		return f != 0, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

// toText keeps strings as they are and renders anything else as its JSON text,
// so dates, timestamps and UUIDs keep the grid's own encoding.
func toText(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot render %T as text: %w", value, err)
		}
		return string(b), nil
	}
}

// simpleTypeName lower-cases a type tag and strips its package prefix.
func simpleTypeName(typeTag string) string {
	tag := strings.TrimSpace(typeTag)
	if i := strings.LastIndexByte(tag, '.'); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.ToLower(tag)
}

// initializeTypeMap creates the grid type tag to field type mapping.
func initializeTypeMap() map[string]models.FieldType {
	return map[string]models.FieldType{
		// Boolean
		"boolean": models.FieldTypeBoolean,
		"bool":    models.FieldTypeBoolean,

		// Numeric
		"byte":    models.FieldTypeNumber,
		"double":  models.FieldTypeNumber,
		"float":   models.FieldTypeNumber,
		"integer": models.FieldTypeNumber,
		"int":     models.FieldTypeNumber,
		"long":    models.FieldTypeNumber,
		"short":   models.FieldTypeNumber,

		// String
		"string": models.FieldTypeString,

		// Date/Time, kept in the grid's textual form
		"date":      models.FieldTypeString,
		"time":      models.FieldTypeString,
		"timestamp": models.FieldTypeString,

		// UUID, java.util.UUID and IgniteUuid
		"uuid":       models.FieldTypeString,
		"igniteuuid": models.FieldTypeString,
	}
}

// initializeArrowMap creates the field type to Arrow type mapping.
func initializeArrowMap() map[models.FieldType]arrow.DataType {
	return map[models.FieldType]arrow.DataType{
		models.FieldTypeBoolean: arrow.FixedWidthTypes.Boolean,
		models.FieldTypeNumber:  arrow.PrimitiveTypes.Float64,
		models.FieldTypeString:  arrow.BinaryTypes.String,
		models.FieldTypeTime:    arrow.FixedWidthTypes.Timestamp_ms,
	}
}
