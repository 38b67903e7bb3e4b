package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func passingCheck() CheckFunc {
	return func(_ context.Context) error {
		return nil
	}
}

func failingCheck(msg string) CheckFunc {
	return func(_ context.Context) error {
		return errors.New(msg)
	}
}

func TestMonitor_StartsHealthy(t *testing.T) {
	m := New()
	m.Add("portal", time.Second, failingCheck("not probed yet"))

	assert.True(t, m.Healthy())
	assert.Empty(t, m.Failures())
}

func TestMonitor_FailureThreshold(t *testing.T) {
	m := New()
	m.Add("portal", time.Second, failingCheck("connection refused"))
	c := m.checks[0]
	ctx := context.Background()

	// Two failures stay under the threshold of three.
	c.run(ctx)
	c.run(ctx)
	assert.True(t, m.Healthy())

	c.run(ctx)
	assert.False(t, m.Healthy())
	assert.Equal(t, map[string]string{"portal": "connection refused"}, m.Failures())
}

func TestMonitor_Recovery(t *testing.T) {
	failing := true
	m := New()
	m.Add("portal", time.Second, func(_ context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	c := m.checks[0]
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	c.run(ctx)
	assert.False(t, m.Healthy())

	// One success recovers (successThreshold = 1).
	failing = false
	c.run(ctx)
	assert.True(t, m.Healthy())
	assert.Empty(t, m.Failures())
}

func TestMonitor_OneFailingAmongMany(t *testing.T) {
	m := New()
	m.Add("portal", time.Second, passingCheck())
	m.Add("risk", time.Second, failingCheck("service unavailable"))
	ctx := context.Background()

	for range 3 {
		m.checks[1].run(ctx)
	}

	assert.False(t, m.Healthy())
	failures := m.Failures()
	assert.Contains(t, failures, "risk")
	assert.NotContains(t, failures, "portal")
}

func TestMonitor_StopIdempotent(t *testing.T) {
	m := New()
	m.Add("portal", time.Second, passingCheck())

	m.Start(context.Background(), 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := New()
	m.Add("portal", time.Second, failingCheck("err"))
	m.Add("risk", time.Second, passingCheck())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.Healthy()
				m.Failures()
			}
		}()
	}
	wg.Wait()
	m.Stop()
}

func TestEndpointCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/up":
			w.WriteHeader(http.StatusOK)
		case "/auth":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	assert.NoError(t, EndpointCheck(srv.Client(), srv.URL+"/up")(ctx))
	// 4xx means the service is alive, just not friendly.
	assert.NoError(t, EndpointCheck(srv.Client(), srv.URL+"/auth")(ctx))

	err := EndpointCheck(srv.Client(), srv.URL+"/boom")(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestEndpointCheck_TransportFailure(t *testing.T) {
	err := EndpointCheck(nil, "http://127.0.0.1:1/up")(context.Background())
	assert.Error(t, err)
}
