package converter

import (
	"encoding/json"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/ignis/pkg/models"
)

func TestTypeConverter(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	tc := New(logger)

	t.Run("InferFieldType", func(t *testing.T) {
		tests := []struct {
			name    string
			typeTag string
			want    models.FieldType
		}{
			{name: "boolean", typeTag: "java.lang.Boolean", want: models.FieldTypeBoolean},
			{name: "primitive boolean", typeTag: "boolean", want: models.FieldTypeBoolean},
			{name: "byte", typeTag: "java.lang.Byte", want: models.FieldTypeNumber},
			{name: "double", typeTag: "java.lang.Double", want: models.FieldTypeNumber},
			{name: "float", typeTag: "java.lang.Float", want: models.FieldTypeNumber},
			{name: "integer", typeTag: "java.lang.Integer", want: models.FieldTypeNumber},
			{name: "primitive int", typeTag: "int", want: models.FieldTypeNumber},
			{name: "long", typeTag: "java.lang.Long", want: models.FieldTypeNumber},
			{name: "short", typeTag: "java.lang.Short", want: models.FieldTypeNumber},
			{name: "string", typeTag: "java.lang.String", want: models.FieldTypeString},
			{name: "sql date", typeTag: "java.sql.Date", want: models.FieldTypeString},
			{name: "util date", typeTag: "java.util.Date", want: models.FieldTypeString},
			{name: "time", typeTag: "java.sql.Time", want: models.FieldTypeString},
			{name: "timestamp", typeTag: "java.sql.Timestamp", want: models.FieldTypeString},
			{name: "uuid", typeTag: "java.util.UUID", want: models.FieldTypeString},
			{name: "ignite uuid", typeTag: "org.apache.ignite.lang.IgniteUuid", want: models.FieldTypeString},
			{name: "decimal falls back", typeTag: "java.math.BigDecimal", want: models.FieldTypeString},
			{name: "unknown falls back", typeTag: "com.example.Person", want: models.FieldTypeString},
			{name: "empty falls back", typeTag: "", want: models.FieldTypeString},
			{name: "surrounding spaces", typeTag: "  java.lang.Long ", want: models.FieldTypeNumber},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, tc.InferFieldType(tt.typeTag))
				assert.Equal(t, tt.want, InferFieldType(tt.typeTag))
			})
		}
	})

	t.Run("ArrowType", func(t *testing.T) {
		assert.Equal(t, arrow.FixedWidthTypes.Boolean, tc.ArrowType(models.FieldTypeBoolean))
		assert.Equal(t, arrow.PrimitiveTypes.Float64, tc.ArrowType(models.FieldTypeNumber))
		assert.Equal(t, arrow.BinaryTypes.String, tc.ArrowType(models.FieldTypeString))
		assert.Equal(t, arrow.BinaryTypes.String, tc.ArrowType(models.FieldType("other")))
	})

	t.Run("NormalizeValue", func(t *testing.T) {
		tests := []struct {
			name      string
			value     any
			fieldType models.FieldType
			want      any
			wantErr   bool
		}{
			{name: "nil stays nil", value: nil, fieldType: models.FieldTypeNumber, want: nil},
			{name: "float number", value: 42.5, fieldType: models.FieldTypeNumber, want: 42.5},
			{name: "json number", value: json.Number("9007199254740993"), fieldType: models.FieldTypeNumber, want: 9007199254740992.0},
			{name: "numeric string", value: " 12 ", fieldType: models.FieldTypeNumber, want: 12.0},
			{name: "bad number", value: "abc", fieldType: models.FieldTypeNumber, wantErr: true},
			{name: "object as number", value: map[string]any{}, fieldType: models.FieldTypeNumber, wantErr: true},
			{name: "bool", value: true, fieldType: models.FieldTypeBoolean, want: true},
			{name: "bool string", value: "false", fieldType: models.FieldTypeBoolean, want: false},
			{name: "bad bool", value: "maybe", fieldType: models.FieldTypeBoolean, wantErr: true},
			{name: "string", value: "Alice", fieldType: models.FieldTypeString, want: "Alice"},
			{name: "epoch timestamp kept raw", value: json.Number("1700000000000"), fieldType: models.FieldTypeString, want: "1700000000000"},
			{name: "float as text", value: 1.5, fieldType: models.FieldTypeString, want: "1.5"},
			{name: "object as text", value: map[string]any{"a": 1.0}, fieldType: models.FieldTypeString, want: `{"a":1}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := tc.NormalizeValue(tt.value, tt.fieldType)
				if tt.wantErr {
					assert.Error(t, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})
}
