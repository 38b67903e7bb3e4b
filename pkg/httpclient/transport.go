// Package httpclient provides composable http.RoundTripper decorators for
// outbound portal calls: request id injection, request logging, and
// OpenTelemetry instrumentation.
package httpclient

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Transport decorates an http.RoundTripper.
type Transport func(http.RoundTripper) http.RoundTripper

// Wrap applies transports to base in reverse order, so the first listed
// transport is the outermost.
func Wrap(base http.RoundTripper, transports ...Transport) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(transports) - 1; i >= 0; i-- {
		base = transports[i](base)
	}
	return base
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// RequestID returns a transport that ensures every outbound request carries
// an X-Request-ID header. An existing header is kept; otherwise a new UUID
// v4 is generated.
func RequestID() Transport {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("X-Request-ID") == "" {
				r = r.Clone(r.Context())
				r.Header.Set("X-Request-ID", uuid.New().String())
			}
			return next.RoundTrip(r)
		})
	}
}

// LogRequests returns a transport that logs each request with the zap
// logger carried in the request context.
func LogRequests() Transport {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			lg := zctx.From(r.Context())
			start := time.Now()
			resp, err := next.RoundTrip(r)
			elapsed := time.Since(start)
			if err != nil {
				lg.Warn("HTTP request failed",
					zap.String("method", r.Method),
					zap.String("url", r.URL.String()),
					zap.Duration("duration", elapsed),
					zap.Error(err),
				)
				return nil, err
			}
			lg.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Duration("duration", elapsed),
			)
			return resp, nil
		})
	}
}

// Instrument returns a transport that records OpenTelemetry spans and
// metrics for outbound requests. Nil providers fall back to the globals.
func Instrument(tp trace.TracerProvider, mp metric.MeterProvider) Transport {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return otelhttp.NewTransport(next,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}
