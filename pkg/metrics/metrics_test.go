package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLifecycle(t *testing.T) {
	before := testutil.ToFloat64(lifecycleOperationsTotal.WithLabelValues("upload", "success"))

	RecordLifecycle("upload", "success", 20*time.Millisecond)
	RecordLifecycle("upload", "success", 30*time.Millisecond)

	after := testutil.ToFloat64(lifecycleOperationsTotal.WithLabelValues("upload", "success"))
	assert.Equal(t, before+2, after)
}

func TestRecordStoreOperation(t *testing.T) {
	okBefore := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("local", "put", "success"))
	errBefore := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("local", "put", "error"))

	RecordStoreOperation("local", "put", time.Millisecond, true)
	RecordStoreOperation("local", "put", time.Millisecond, false)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(storeOperationsTotal.WithLabelValues("local", "put", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(storeOperationsTotal.WithLabelValues("local", "put", "error")))
}

func TestRecordUploadBytesIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(uploadedBytesTotal)
	RecordUploadBytes(0)
	RecordUploadBytes(-5)
	RecordUploadBytes(10)
	assert.Equal(t, before+10, testutil.ToFloat64(uploadedBytesTotal))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	router.GET("/api/files/:name", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/files/:name", "204"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/files/report.pdf", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/files/:name", "204")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	SetPendingIntents(3)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "fileshare_pending_intents 3"))
}
