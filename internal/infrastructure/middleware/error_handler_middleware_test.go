package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/logger"
)

func errorHandledRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.Use(ErrorHandlerMiddleware(logger.NewContextLogger(zap.NewNop())))

	router.GET("/app-error", func(c *gin.Context) {
		c.Error(apperrors.NewNotFoundError("room"))
	})
	router.GET("/plain-error", func(c *gin.Context) {
		c.Error(assert.AnError)
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return router
}

func TestErrorHandlerMapsAppError(t *testing.T) {
	router := errorHandledRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app-error", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Error)
}

func TestErrorHandlerFallsBackTo500(t *testing.T) {
	router := errorHandledRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain-error", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryMiddlewareCatchesPanic(t *testing.T) {
	router := errorHandledRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	router := errorHandledRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/app-error", nil)
	req.Header.Set("X-Request-ID", "req-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app-error", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
