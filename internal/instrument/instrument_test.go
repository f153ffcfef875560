package instrument

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type codedError struct{ status int }

func (e codedError) Error() string   { return "coded" }
func (e codedError) HTTPStatus() int { return e.status }

func TestGetInstrumenter_DefaultsToNoop(t *testing.T) {
	_, span := GetInstrumenter(context.Background()).StartSpan(context.Background(), "records", "insert")
	defer span.End()
	assert.IsType(t, &NoopSpan{}, span)
	assert.Empty(t, span.TraceID())
}

func TestLogInstrumenter_SpanCarriesTraceID(t *testing.T) {
	ctx := WithInstrumenter(context.Background(), NewLogInstrumenter("trace-1", zap.NewNop()))
	_, span := GetInstrumenter(ctx).StartSpan(ctx, "approval", "approve")
	span.SetEntity("people", 1)
	span.SetStatus("error")
	span.End()
	assert.Equal(t, "trace-1", span.TraceID())
}

func TestMiddleware_TraceHeader(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(zap.NewNop()))
	app.Get("/ping", func(c *fiber.Ctx) error {
		_, span := GetInstrumenter(c.UserContext()).StartSpan(c.UserContext(), "test", "ping")
		defer span.End()
		return c.SendString(span.TraceID())
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	require.NoError(t, err)
	generated := resp.Header.Get(TraceHeader)
	_, err = uuid.Parse(generated)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, generated, string(body))

	incoming := uuid.New().String()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(TraceHeader, incoming)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, incoming, resp.Header.Get(TraceHeader))

	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(TraceHeader, "not a uuid")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.NotEqual(t, "not a uuid", resp.Header.Get(TraceHeader))
}

func TestMiddleware_CountsErrorStatus(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(statusOf(err)).SendString(err.Error())
		},
	})
	app.Use(Middleware(zap.NewNop()))
	app.Get("/conflict", func(c *fiber.Ctx) error { return codedError{status: 409} })
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/conflict", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `formflow_http_requests_total{method="GET",route="/conflict",status="409"}`)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 422, statusOf(codedError{status: 422}))
	assert.Equal(t, 404, statusOf(fiber.ErrNotFound))
	assert.Equal(t, 500, statusOf(io.EOF))
}

func TestMetricsHandler(t *testing.T) {
	FormsDefined.Inc()
	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "formflow_forms_defined_total"), "metric missing from exposition")
}

func TestRecordWrites_LabelledByOperationOnly(t *testing.T) {
	_, err := RecordWrites.GetMetricWithLabelValues("insert")
	assert.NoError(t, err)
	_, err = RecordWrites.GetMetricWithLabelValues("people", "insert")
	assert.Error(t, err)
}
