package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	handler, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(handler)
	r.GET("/transfers/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	serve(r, httptest.NewRequest(http.MethodGet, "/transfers/"+uuid.NewString(), nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/transfers/"+uuid.NewString(), nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	return reader
}

func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics(t *testing.T) {
	reader := setupTestMeter(t)
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests := findMetricByName(rm, "http.server.requests")
	require.NotNil(t, requests)
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(attrRoute)
		byRoute[route.AsString()] += dp.Value
	}
	assert.Equal(t, int64(2), byRoute["/transfers/:id"], "paths collapse to their route")
	assert.Equal(t, int64(1), byRoute["unknown"])

	assert.NotNil(t, findMetricByName(rm, "http.server.request.duration"))
	assert.NotNil(t, findMetricByName(rm, "http.server.response.body.size"))
}

func TestTracing_AnnotatesSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	actor := shared.Actor{ID: uuid.New(), TenantID: uuid.New()}
	r := gin.New()
	r.Use(RequestID(), Tracing("stockflow-test", true), func(c *gin.Context) {
		c.Set(ActorKey, actor)
		c.Next()
	}, SpanAnnotator())
	r.GET("/inventory/levels", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/inventory/levels", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	serve(r, req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "req-1", attrs["request_id"])
	assert.Equal(t, actor.TenantID.String(), attrs["tenant_id"])
	assert.Equal(t, actor.ID.String(), attrs["user_id"])
}

func TestTracing_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(Tracing("stockflow-test", false), SpanAnnotator())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProfiling_LabelsRequestContext(t *testing.T) {
	tenant := uuid.New()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ActorKey, shared.Actor{ID: uuid.New(), TenantID: tenant})
		c.Next()
	}, Profiling(true))

	var operation, tenantLabel string
	r.GET("/transfers/:id", func(c *gin.Context) {
		operation, _ = pprof.Label(c.Request.Context(), "operation")
		tenantLabel, _ = pprof.Label(c.Request.Context(), "tenant_id")
		c.Status(http.StatusOK)
	})
	serve(r, httptest.NewRequest(http.MethodGet, "/transfers/abc", nil))

	assert.Equal(t, "GET /transfers/:id", operation)
	assert.Equal(t, tenant.String(), tenantLabel)
}
