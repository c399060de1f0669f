package models

import "encoding/json"

// RestResponse is the envelope every grid REST command answers with.
type RestResponse struct {
	SuccessStatus int             `json:"successStatus"`
	Error         string          `json:"error"`
	SessionToken  string          `json:"sessionToken,omitempty"`
	Response      json.RawMessage `json:"response"`
}

// OK reports whether the command succeeded: zero status and no error text.
func (r *RestResponse) OK() bool {
	return r.SuccessStatus == 0 && r.Error == ""
}

// Decode unmarshals the payload into v.
func (r *RestResponse) Decode(v any) error {
	if len(r.Response) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(r.Response, v)
}

// FieldMetadata describes one column of a fields query result.
type FieldMetadata struct {
	FieldName     string `json:"fieldName"`
	FieldTypeName string `json:"fieldTypeName"`
	SchemaName    string `json:"schemaName,omitempty"`
	TypeName      string `json:"typeName,omitempty"`
}

// QueryFieldsResult is the payload of the qryfldexe command.
type QueryFieldsResult struct {
	FieldsMetadata []FieldMetadata `json:"fieldsMetadata"`
	Items          [][]any         `json:"items"`
	Last           bool            `json:"last"`
	QueryID        int64           `json:"queryId"`
}
