package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_Classified(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, nil, fmt.Errorf("search: %w", QuotaExceeded()))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeQuotaExceeded, body.Error)
	assert.NotEmpty(t, body.Message)
}

func TestWrite_Unclassified(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, nil, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeInternal, body.Error)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Upstream(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.Status)
}
