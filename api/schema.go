package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/qri-io/jsonschema"
)

const maxBody = 1 << 20

var (
	contractSchema = mustSchema(`{
		"type": "object",
		"required": ["total_amount", "currency"],
		"properties": {
			"total_amount": {"type": "integer", "minimum": 1},
			"currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
			"start_date": {"type": "string"},
			"notes": {"type": "string", "maxLength": 2000}
		},
		"additionalProperties": false
	}`)

	proposalSchema = mustSchema(`{
		"type": "object",
		"required": ["offered_qty"],
		"properties": {
			"offered_qty": {"type": "integer", "minimum": 1},
			"notes": {"type": "string", "maxLength": 2000}
		},
		"additionalProperties": false
	}`)

	approveSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"approved_qty": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`)

	sessionSchema = mustSchema(`{
		"type": "object",
		"required": ["phone"],
		"properties": {
			"phone": {"type": "string"}
		}
	}`)

	verifySchema = mustSchema(`{
		"type": "object",
		"required": ["code"],
		"properties": {
			"code": {"type": "string", "pattern": "^[0-9]{6}$"}
		}
	}`)
)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return rs
}

// decodeValid validates the request body against schema and decodes it into
// dst. An empty body is treated as {}. It writes the 400 response itself
// and reports false when the body is rejected.
func decodeValid(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSON(w, errorResponse{Error: "unreadable body"}, http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeJSON(w, errorResponse{Error: "invalid request"}, http.StatusBadRequest)
		return false
	}

	keyErrs, err := schema.ValidateBytes(r.Context(), body)
	if err != nil {
		writeJSON(w, errorResponse{Error: "invalid request"}, http.StatusBadRequest)
		return false
	}
	if len(keyErrs) > 0 {
		details := make([]string, 0, len(keyErrs))
		for _, ke := range keyErrs {
			details = append(details, fmt.Sprintf("%s: %s", ke.PropertyPath, ke.Message))
		}
		writeJSON(w, errorResponse{Error: "invalid request", Details: details}, http.StatusBadRequest)
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request"}, http.StatusBadRequest)
		return false
	}
	return true
}
