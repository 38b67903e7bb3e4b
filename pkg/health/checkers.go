package health

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
)

// EndpointCheck returns a CheckFunc that issues a GET against url and
// reports unhealthy on transport failure or a 5xx status. 4xx counts as
// reachable: an auth or routing problem is still a live service.
func EndpointCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, "create request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return errors.Wrap(err, "probe")
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errors.Errorf("endpoint returned status %d", resp.StatusCode)
		}
		return nil
	}
}
