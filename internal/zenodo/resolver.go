package zenodo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ResolveLatestVersion maps a concept identifier to the identifier of its
// latest version. The public landing page of a concept redirects to the
// landing page of the latest version; the redirect is captured, not followed.
func (c *Client) ResolveLatestVersion(ctx context.Context, reference int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.siteURL(fmt.Sprintf("/record/%d", reference)), nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.do(c.probeClient(), req)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusFound {
		return 0, newAPIError(OpResolve, resp)
	}

	location := resp.Header.Get("Location")
	latest, err := parseRecordID(location)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	c.logger.Debug("resolved concept", "concept", reference, "latest", latest)
	return latest, nil
}

// probeClient returns a copy of the HTTP client that hands redirects back
// to the caller instead of following them.
func (c *Client) probeClient() *http.Client {
	probe := *c.httpClient
	probe.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &probe
}

// parseRecordID extracts the trailing integer path segment of a landing page
// location such as https://zenodo.org/record/518011 (or /records/518011).
func parseRecordID(location string) (int64, error) {
	if location == "" {
		return 0, fmt.Errorf("redirect without location")
	}
	u, err := url.Parse(location)
	if err != nil {
		return 0, fmt.Errorf("parsing location %q: %w", location, err)
	}
	segment := path.Base(strings.TrimRight(u.Path, "/"))
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("location %q does not end in a record id", location)
	}
	return id, nil
}
