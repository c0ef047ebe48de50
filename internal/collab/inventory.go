package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/knmi/sdsrules/pkg/errs"
)

// HTTPInventoryClient is an InventoryClient talking to the out-of-scope
// station-inventory web service over plain net/http, the same client
// construction the teacher module uses for its lightweight REST
// integrations (a shared *http.Client with a bounded timeout, no SDK).
type HTTPInventoryClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPInventoryClient builds a client against baseURL.
func NewHTTPInventoryClient(baseURL string) *HTTPInventoryClient {
	return &HTTPInventoryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// StationInfo fetches station metadata for network/station.
func (c *HTTPInventoryClient) StationInfo(ctx context.Context, network, station string) (map[string]any, error) {
	u := fmt.Sprintf("%s/stations/%s/%s", c.baseURL, url.PathEscape(network), url.PathEscape(station))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request %s: %v", errs.ErrIoError, u, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", errs.ErrIoError, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: fetch %s: status %d", errs.ErrIoError, u, resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode response from %s: %v", errs.ErrIoError, u, err)
	}
	return info, nil
}
