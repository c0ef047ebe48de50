package collab

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/knmi/sdsrules/pkg/errs"
	"github.com/knmi/sdsrules/pkg/sds"
)

// RestGridArchive is a GridArchive backed by an iRODS-style REST gateway:
// the archive's grid_archive.zone configuration addresses a federated,
// PID-assigning remote archive reachable only over HTTP from this process,
// so unlike the object store and catalogs there is no native Go client
// library for it in the teacher's dependency set. go-resty/v2 is promoted
// from an indirect teacher dependency to a direct one here, following the
// same fluent request-builder style the teacher's HTTP clients use.
type RestGridArchive struct {
	client    *resty.Client
	zone      string
	keyPrefix string
}

// RestGridOptions configures NewRestGridArchive.
type RestGridOptions struct {
	BaseURL   string
	Zone      string
	KeyPrefix string
	AuthToken string
}

// NewRestGridArchive builds a client for the configured grid zone.
func NewRestGridArchive(opts RestGridOptions) *RestGridArchive {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json")
	if opts.AuthToken != "" {
		client.SetAuthToken(opts.AuthToken)
	}
	return &RestGridArchive{client: client, zone: opts.Zone, keyPrefix: opts.KeyPrefix}
}

func (g *RestGridArchive) path(d sds.Descriptor) string {
	return fmt.Sprintf("/zones/%s/objects/%s", g.zone, d.ObjectKey(g.keyPrefix))
}

// Exists reports whether the remote zone holds the object.
func (g *RestGridArchive) Exists(ctx context.Context, d sds.Descriptor) (bool, error) {
	resp, err := g.client.R().SetContext(ctx).Head(g.path(d))
	if err != nil {
		return false, fmt.Errorf("%w: head %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("%w: head %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return true, nil
}

// Get downloads the object body to localPath.
func (g *RestGridArchive) Get(ctx context.Context, d sds.Descriptor, localPath string) error {
	resp, err := g.client.R().SetContext(ctx).SetOutput(localPath).Get(g.path(d))
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: get %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return nil
}

// Put uploads the descriptor's local file to the zone.
func (g *RestGridArchive) Put(ctx context.Context, d sds.Descriptor, checksum string) error {
	resp, err := g.client.R().SetContext(ctx).
		SetHeader("X-Checksum", checksum).
		SetFile("file", d.FilePath()).
		Put(g.path(d))
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: put %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return nil
}

// Delete removes the object from the zone.
func (g *RestGridArchive) Delete(ctx context.Context, d sds.Descriptor) error {
	resp, err := g.client.R().SetContext(ctx).Delete(g.path(d))
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("%w: delete %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return nil
}

type pidResponse struct {
	PID string `json:"pid"`
}

// AssignPID requests a new persistent identifier for the object, asserting
// it is already present in the zone.
func (g *RestGridArchive) AssignPID(ctx context.Context, d sds.Descriptor) (string, error) {
	var out pidResponse
	resp, err := g.client.R().SetContext(ctx).SetResult(&out).Post(g.path(d) + "/pid")
	if err != nil {
		return "", fmt.Errorf("%w: assign pid %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: assign pid %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return out.PID, nil
}

// GetPID returns the object's previously assigned PID, or "" if none.
func (g *RestGridArchive) GetPID(ctx context.Context, d sds.Descriptor) (string, error) {
	var out pidResponse
	resp, err := g.client.R().SetContext(ctx).SetResult(&out).Get(g.path(d) + "/pid")
	if err != nil {
		return "", fmt.Errorf("%w: get pid %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: get pid %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return out.PID, nil
}

// Replicate requests the zone copy the object to a federated remote root
// (another zone's base URL), the mechanism behind the file_replicated
// condition and replicate action.
func (g *RestGridArchive) Replicate(ctx context.Context, d sds.Descriptor, remoteRoot string) error {
	resp, err := g.client.R().SetContext(ctx).
		SetBody(map[string]string{"target": remoteRoot}).
		Post(g.path(d) + "/replicate")
	if err != nil {
		return fmt.Errorf("%w: replicate %s to %s: %v", errs.ErrIoError, g.path(d), remoteRoot, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: replicate %s to %s: status %d", errs.ErrIoError, g.path(d), remoteRoot, resp.StatusCode())
	}
	return nil
}

// FederatedExists checks object presence on a named remote root rather than
// this client's own zone.
func (g *RestGridArchive) FederatedExists(ctx context.Context, d sds.Descriptor, remoteRoot string) (bool, error) {
	resp, err := g.client.R().SetContext(ctx).
		SetQueryParam("remote", remoteRoot).
		Head(g.path(d) + "/federated")
	if err != nil {
		return false, fmt.Errorf("%w: federated exists %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("%w: federated exists %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return true, nil
}

// FederatedGetPID returns the PID assigned to the object on a remote root.
func (g *RestGridArchive) FederatedGetPID(ctx context.Context, d sds.Descriptor, remoteRoot string) (string, error) {
	var out pidResponse
	resp, err := g.client.R().SetContext(ctx).
		SetQueryParam("remote", remoteRoot).
		SetResult(&out).
		Get(g.path(d) + "/federated/pid")
	if err != nil {
		return "", fmt.Errorf("%w: federated get pid %s: %v", errs.ErrIoError, g.path(d), err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: federated get pid %s: status %d", errs.ErrIoError, g.path(d), resp.StatusCode())
	}
	return out.PID, nil
}
