package converter

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/ignis/pkg/infrastructure/pool"
	"github.com/TFMV/ignis/pkg/models"
)

func testFrame(refID string) *models.ResultFrame {
	return &models.ResultFrame{
		RefID: refID,
		Fields: []models.FieldDescriptor{
			{Name: "NAME", Type: models.FieldTypeString, SourceType: "java.lang.String"},
			{Name: "AGE", Type: models.FieldTypeNumber, SourceType: "java.lang.Integer"},
			{Name: "ACTIVE", Type: models.FieldTypeBoolean, SourceType: "java.lang.Boolean"},
		},
		Rows: [][]any{
			{"Alice", 31.0, true},
			{"Bob", nil, false},
			{nil, 7.0, nil},
		},
	}
}

func TestRecordBuilder_Build(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewRecordBuilder(mem, nil, zerolog.New(zerolog.NewTestWriter(t)))
	rec, err := b.Build(testFrame("A"))
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, int64(3), rec.NumCols())

	schema := rec.Schema()
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(0).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, schema.Field(1).Type)
	assert.Equal(t, arrow.FixedWidthTypes.Boolean, schema.Field(2).Type)
	assert.Equal(t, "A", metadataValue(schema.Metadata(), MetadataRefID))
	assert.Equal(t, "java.lang.Integer", metadataValue(schema.Field(1).Metadata, MetadataSourceType))

	names := rec.Column(0).(*array.String)
	assert.Equal(t, "Alice", names.Value(0))
	assert.True(t, names.IsNull(2))

	ages := rec.Column(1).(*array.Float64)
	assert.Equal(t, 31.0, ages.Value(0))
	assert.True(t, ages.IsNull(1))
}

func TestRecordBuilder_RoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := NewRecordBuilder(mem, nil, zerolog.Nop())
	frame := testFrame("A")

	rec, err := b.Build(frame)
	require.NoError(t, err)
	defer rec.Release()

	back, err := ToFrame(rec)
	require.NoError(t, err)
	assert.Equal(t, frame, back)
}

func TestRecordBuilder_EmptyFrame(t *testing.T) {
	b := NewRecordBuilder(memory.NewGoAllocator(), nil, zerolog.Nop())

	rec, err := b.Build(models.NewEmptyFrame("Z"))
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(0), rec.NumCols())
	assert.Equal(t, int64(0), rec.NumRows())

	back, err := ToFrame(rec)
	require.NoError(t, err)
	assert.Equal(t, "Z", back.RefID)
	assert.True(t, back.Empty())
}

func TestRecordBuilder_RejectsMisalignedFrame(t *testing.T) {
	b := NewRecordBuilder(memory.NewGoAllocator(), nil, zerolog.Nop())
	frame := &models.ResultFrame{
		RefID:  "A",
		Fields: []models.FieldDescriptor{{Name: "N", Type: models.FieldTypeNumber}},
		Rows:   [][]any{{1.0, 2.0}},
	}

	_, err := b.Build(frame)
	assert.Error(t, err)
}

func TestRecordBuilder_RejectsWrongCellType(t *testing.T) {
	b := NewRecordBuilder(memory.NewGoAllocator(), nil, zerolog.Nop())
	frame := &models.ResultFrame{
		RefID:  "A",
		Fields: []models.FieldDescriptor{{Name: "N", Type: models.FieldTypeNumber}},
		Rows:   [][]any{{"one"}},
	}

	_, err := b.Build(frame)
	assert.Error(t, err)
}

func TestRecordBuilder_SharesSchemaAcrossRefIDs(t *testing.T) {
	schemas := pool.NewSchemaCache(8)
	b := NewRecordBuilder(memory.NewGoAllocator(), schemas, zerolog.Nop())

	s1 := b.Schema(testFrame("A"))
	s2 := b.Schema(testFrame("B"))

	assert.Equal(t, 1, schemas.Size())
	assert.True(t, s1.Field(0).Equal(s2.Field(0)))
	assert.Equal(t, "A", metadataValue(s1.Metadata(), MetadataRefID))
	assert.Equal(t, "B", metadataValue(s2.Metadata(), MetadataRefID))
}

func TestIPCRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := NewRecordBuilder(mem, nil, zerolog.Nop())
	frame := testFrame("A")

	rec, err := b.Build(frame)
	require.NoError(t, err)
	defer rec.Release()

	data, err := EncodeIPC(rec, mem)
	require.NoError(t, err)

	back, err := DecodeIPCFrame(data, mem)
	require.NoError(t, err)
	assert.Equal(t, frame, back)

	_, err = DecodeIPCFrame([]byte("garbage"), mem)
	assert.Error(t, err)
}

func TestEncodeIPCDoesNotAliasPooledBuffers(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := NewRecordBuilder(mem, nil, zerolog.Nop())

	recA, err := b.Build(testFrame("A"))
	require.NoError(t, err)
	defer recA.Release()
	recB, err := b.Build(testFrame("B"))
	require.NoError(t, err)
	defer recB.Release()

	dataA, err := EncodeIPC(recA, mem)
	require.NoError(t, err)
	snapshot := append([]byte(nil), dataA...)

	_, err = EncodeIPC(recB, mem)
	require.NoError(t, err)
	assert.Equal(t, snapshot, dataA)

	back, err := DecodeIPCFrame(dataA, mem)
	require.NoError(t, err)
	assert.Equal(t, "A", back.RefID)
}
