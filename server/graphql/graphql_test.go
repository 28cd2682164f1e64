package graphql

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandler_UnknownOperationReturnsError(t *testing.T) {
	h := NewHandler(zap.NewNop(), nil)
	body, _ := json.Marshal(Request{OperationName: "doesNotExist"})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "unknown operation")
}

func TestHandler_MalformedBodyReturnsError(t *testing.T) {
	h := NewHandler(zap.NewNop(), nil)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
}
