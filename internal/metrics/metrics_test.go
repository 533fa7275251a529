package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{410, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "transferguard_goroutines") {
		t.Error("Expected metrics output to contain transferguard_goroutines")
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/account", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/v1/account", "4xx"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/account", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/v1/account", "4xx"))

	assert.Equal(t, before+1, after)
}

func TestSample(t *testing.T) {
	sample(sql.DBStats{OpenConnections: 3, Idle: 1, InUse: 2, WaitCount: 7, WaitDuration: 2 * time.Second})

	assert.Equal(t, 3.0, testutil.ToFloat64(DBOpenConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(DBIdleConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(DBInUseConnections))
	assert.Equal(t, 7.0, testutil.ToFloat64(DBWaitCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(DBWaitDuration))
}
