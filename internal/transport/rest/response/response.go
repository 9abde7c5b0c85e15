package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the success body of every booking endpoint:
// {"data": ..., "meta": {"request_id": "...", "warnings": [...]}}
type Envelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta describes the response rather than the resource.
type Meta struct {
	RequestID string    `json:"request_id,omitempty"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Warning flags a state the caller should act on even though the call
// succeeded, e.g. a seat held beyond the option's limits.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// Page is a keyset page; NextCursor is empty on the last page.
type Page struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// ErrorBody: {"error":{"code":"...","message":"...","meta":{...},"request_id":"..."}}
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// JSON writes v without the envelope; /healthz uses it.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data writes payload in the success envelope. An empty meta is omitted.
func Data(w http.ResponseWriter, status int, payload any, meta Meta) {
	env := Envelope{Data: payload}
	if meta.RequestID != "" || len(meta.Warnings) > 0 {
		env.Meta = &meta
	}
	JSON(w, status, env)
}

func Fail(w http.ResponseWriter, status int, code, message string, meta map[string]string, requestID string) {
	JSON(w, status, ErrorBody{
		Error: ErrorPayload{
			Code:      code,
			Message:   message,
			Meta:      meta,
			RequestID: requestID,
		},
	})
}
