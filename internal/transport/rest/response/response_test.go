package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestData_OmitsEmptyMeta(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusOK, map[string]int{"n": 1}, Meta{})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"n":1}}`, rr.Body.String())
}

func TestData_CarriesWarnings(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusCreated, nil, Meta{
		RequestID: "req-1",
		Warnings:  []Warning{{Code: "booking.over_capacity", Message: "contact an administrator", Count: 2}},
	})

	require.Equal(t, http.StatusCreated, rr.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NotNil(t, env.Meta)
	assert.Equal(t, "req-1", env.Meta.RequestID)
	require.Len(t, env.Meta.Warnings, 1)
	assert.Equal(t, 2, env.Meta.Warnings[0].Count)
	assert.Contains(t, rr.Body.String(), `"data":null`)
}

func TestFail(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(rr, http.StatusConflict, "option.full", "full", map[string]string{"option_id": "x"}, "req-2")

	require.Equal(t, http.StatusConflict, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "option.full", body.Error.Code)
	assert.Equal(t, "req-2", body.Error.RequestID)
	assert.Equal(t, "x", body.Error.Meta["option_id"])
}
