package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()

	RespondError(zap.NewNop(), w, http.StatusBadRequest, "No file uploaded")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"No file uploaded"}`, w.Body.String())
}

func TestRespondJSONLogsEncodeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	w := httptest.NewRecorder()

	RespondJSON(zap.New(core), w, http.StatusOK, map[string]any{"ch": make(chan int)})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "failed to encode response", entry.Message)
	assert.EqualValues(t, http.StatusOK, entry.ContextMap()["status"])
}

func TestRespondJSONToleratesNilLogger(t *testing.T) {
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		RespondJSON(nil, w, http.StatusOK, map[string]any{"ch": make(chan int)})
	})
}
