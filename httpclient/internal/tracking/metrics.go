// Package tracking records OpenTelemetry metrics and spans for outbound client attempts.
package tracking

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Meter and tracer name for HTTP client instrumentation
	instrumentationName = "restkit/http-client"

	// Metric names following OpenTelemetry semantic conventions
	metricHTTPRequestDuration = "http.client.request.duration" // Histogram in seconds
	metricHTTPActiveRequests  = "http.client.active_requests"  // UpDownCounter
	metricHTTPRetries         = "http.client.retries"          // Counter

	// Attribute keys per OTel semantic conventions
	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrURLScheme          = "url.scheme"
	attrServerAddress      = "server.address"
	attrErrorType          = "error.type"
)

// HTTP request duration histogram buckets per OTel semantic conventions
var httpDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

var (
	httpMeter     metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	httpDurationHistogram   metric.Float64Histogram
	httpActiveRequestsGauge metric.Int64UpDownCounter
	httpRetryCounter        metric.Int64Counter
)

// Attempt describes one transport attempt for the duration histogram.
type Attempt struct {
	Method string
	Scheme string
	Host   string
	// StatusCode is zero when no response was received.
	StatusCode int
	// ErrorType classifies failures without a response, e.g. "network" or "timeout".
	ErrorType string
	Duration  time.Duration
}

// logMetricError logs a metric initialization error to stderr.
// Metric failures must not break requests.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize HTTP client metric %s: %v\n", metricName, err)
	}
}

// initHTTPMeter creates the meter and instruments from the global meter provider.
func initHTTPMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if httpMeter != nil {
		return
	}

	httpMeter = otel.Meter(instrumentationName)

	var err error
	httpDurationHistogram, err = httpMeter.Float64Histogram(
		metricHTTPRequestDuration,
		metric.WithDescription("Duration of HTTP client request attempts"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpDurationBuckets...),
	)
	logMetricError(metricHTTPRequestDuration, err)

	httpActiveRequestsGauge, err = httpMeter.Int64UpDownCounter(
		metricHTTPActiveRequests,
		metric.WithDescription("Number of in-flight HTTP client request attempts"),
		metric.WithUnit("{request}"),
	)
	logMetricError(metricHTTPActiveRequests, err)

	httpRetryCounter, err = httpMeter.Int64Counter(
		metricHTTPRetries,
		metric.WithDescription("Number of HTTP client retries after network failures"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricHTTPRetries, err)

	metricsInited = true
}

func ensureHTTPMeterInitialized() {
	meterOnce.Do(initHTTPMeter)
}

// AttemptStarted increments the in-flight gauge. Call the returned func when the attempt ends.
func AttemptStarted(ctx context.Context, method, scheme string) func() {
	ensureHTTPMeterInitialized()
	attrs := buildBaseAttributes(method, scheme)
	if httpActiveRequestsGauge == nil {
		return func() {}
	}
	httpActiveRequestsGauge.Add(ctx, 1, metric.WithAttributes(attrs...))
	return func() {
		httpActiveRequestsGauge.Add(ctx, -1, metric.WithAttributes(attrs...))
	}
}

// RecordAttempt records the duration of one attempt.
func RecordAttempt(ctx context.Context, a Attempt) {
	ensureHTTPMeterInitialized()
	if httpDurationHistogram != nil {
		httpDurationHistogram.Record(ctx, a.Duration.Seconds(), metric.WithAttributes(buildDurationAttributes(a)...))
	}
}

// RecordRetry counts a retry scheduled after a network failure.
func RecordRetry(ctx context.Context, method string) {
	ensureHTTPMeterInitialized()
	if httpRetryCounter != nil {
		httpRetryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(attrHTTPRequestMethod, method)))
	}
}

func buildBaseAttributes(method, scheme string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrHTTPRequestMethod, method),
		attribute.String(attrURLScheme, scheme),
	}
}

func buildDurationAttributes(a Attempt) []attribute.KeyValue {
	attrs := buildBaseAttributes(a.Method, a.Scheme)
	if a.Host != "" {
		attrs = append(attrs, attribute.String(attrServerAddress, a.Host))
	}
	if a.StatusCode > 0 {
		attrs = append(attrs, attribute.Int(attrHTTPResponseStatus, a.StatusCode))
	}
	if errorType := classifyAttempt(a.StatusCode, a.ErrorType); errorType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errorType))
	}
	return attrs
}

// classifyAttempt returns the error.type attribute value:
// the status code for 4xx/5xx responses, the failure type when no response arrived,
// and "" for successful attempts.
func classifyAttempt(statusCode int, errorType string) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return errorType
}

// IsInitialized returns true if client metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state. Tests only.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	httpMeter = nil
	httpDurationHistogram = nil
	httpActiveRequestsGauge = nil
	httpRetryCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
