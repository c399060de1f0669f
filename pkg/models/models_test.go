package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTargetJSON(t *testing.T) {
	raw := `{"refId":"A","cacheName":"person","format":"TIMESERIES","timeColumn":"ts","query":"select * from person"}`

	var target QueryTarget
	require.NoError(t, json.Unmarshal([]byte(raw), &target))

	assert.Equal(t, "A", target.RefID)
	assert.Equal(t, "person", target.CacheName)
	assert.Equal(t, FormatTimeSeries, target.Format)
	assert.Equal(t, "ts", target.TimeColumn)
	assert.Equal(t, "select * from person", target.Query)
}

func TestResultFrame(t *testing.T) {
	t.Run("empty frame", func(t *testing.T) {
		frame := NewEmptyFrame("A")
		assert.True(t, frame.Empty())
		assert.NoError(t, frame.Validate())
	})

	t.Run("aligned rows", func(t *testing.T) {
		frame := &ResultFrame{
			RefID: "A",
			Fields: []FieldDescriptor{
				{Name: "NAME", Type: FieldTypeString},
				{Name: "AGE", Type: FieldTypeNumber},
			},
			Rows: [][]any{{"Alice", 31.0}, {"Bob", nil}},
		}
		assert.False(t, frame.Empty())
		assert.NoError(t, frame.Validate())
		assert.Equal(t, []any{31.0, nil}, frame.Column(1))
		assert.Nil(t, frame.Column(2))
	})

	t.Run("misaligned row", func(t *testing.T) {
		frame := &ResultFrame{
			RefID:  "A",
			Fields: []FieldDescriptor{{Name: "NAME", Type: FieldTypeString}},
			Rows:   [][]any{{"Alice", "extra"}},
		}
		assert.Error(t, frame.Validate())
	})

	t.Run("rows without fields", func(t *testing.T) {
		frame := &ResultFrame{RefID: "A", Rows: [][]any{{}}}
		assert.Error(t, frame.Validate())
	})
}

func TestQueryResponseFrame(t *testing.T) {
	resp := &QueryResponse{Frames: []*ResultFrame{NewEmptyFrame("A"), NewEmptyFrame("B")}}

	frame, ok := resp.Frame("B")
	require.True(t, ok)
	assert.Equal(t, "B", frame.RefID)

	_, ok = resp.Frame("C")
	assert.False(t, ok)

	var nilResp *QueryResponse
	_, ok = nilResp.Frame("A")
	assert.False(t, ok)
}

func TestRestResponse(t *testing.T) {
	t.Run("success envelope", func(t *testing.T) {
		raw := `{"successStatus":0,"error":null,"response":{"fieldsMetadata":[{"fieldName":"NAME","fieldTypeName":"java.lang.String"}],"items":[["Alice"]],"last":true,"queryId":7}}`

		var resp RestResponse
		require.NoError(t, json.Unmarshal([]byte(raw), &resp))
		assert.True(t, resp.OK())

		var result QueryFieldsResult
		require.NoError(t, resp.Decode(&result))
		require.Len(t, result.FieldsMetadata, 1)
		assert.Equal(t, "java.lang.String", result.FieldsMetadata[0].FieldTypeName)
		assert.Equal(t, [][]any{{"Alice"}}, result.Items)
		assert.True(t, result.Last)
		assert.Equal(t, int64(7), result.QueryID)
	})

	t.Run("error envelope", func(t *testing.T) {
		raw := `{"successStatus":1,"error":"Failed to handle request","response":null}`

		var resp RestResponse
		require.NoError(t, json.Unmarshal([]byte(raw), &resp))
		assert.False(t, resp.OK())
	})

	t.Run("error text with zero status", func(t *testing.T) {
		resp := RestResponse{SuccessStatus: 0, Error: "partial"}
		assert.False(t, resp.OK())
	})

	t.Run("missing payload", func(t *testing.T) {
		resp := RestResponse{}
		var result QueryFieldsResult
		assert.NoError(t, resp.Decode(&result))
		assert.Empty(t, result.Items)
	})
}
