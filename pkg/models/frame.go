package models

import "fmt"

// FieldType is the inferred type of a result column.
type FieldType string

const (
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeNumber  FieldType = "number"
	FieldTypeString  FieldType = "string"
	// FieldTypeTime is never inferred from grid metadata; hosts may convert to it.
	FieldTypeTime FieldType = "time"
)

// FieldDescriptor describes one column of a frame.
type FieldDescriptor struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	SourceType string    `json:"sourceType,omitempty"`
}

// ResultFrame is the columnar result of one query target.
type ResultFrame struct {
	RefID  string            `json:"refId"`
	Fields []FieldDescriptor `json:"fields"`
	Rows   [][]any           `json:"rows"`
}

// NewEmptyFrame returns the zero-field, zero-row frame used when a target fails.
func NewEmptyFrame(refID string) *ResultFrame {
	return &ResultFrame{
		RefID:  refID,
		Fields: []FieldDescriptor{},
		Rows:   [][]any{},
	}
}

// Empty reports whether the frame has neither fields nor rows.
func (f *ResultFrame) Empty() bool {
	return len(f.Fields) == 0 && len(f.Rows) == 0
}

// Validate checks that every row is aligned with the field list.
func (f *ResultFrame) Validate() error {
	if len(f.Fields) == 0 {
		if len(f.Rows) != 0 {
			return fmt.Errorf("frame %q has %d rows but no fields", f.RefID, len(f.Rows))
		}
		return nil
	}
	for i, row := range f.Rows {
		if len(row) != len(f.Fields) {
			return fmt.Errorf("frame %q row %d has %d values, expected %d", f.RefID, i, len(row), len(f.Fields))
		}
	}
	return nil
}

// Column returns the values of column i in row order.
func (f *ResultFrame) Column(i int) []any {
	if i < 0 || i >= len(f.Fields) {
		return nil
	}
	col := make([]any, len(f.Rows))
	for r, row := range f.Rows {
		col[r] = row[i]
	}
	return col
}
