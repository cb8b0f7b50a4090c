package zenodo

import (
	"context"
	"fmt"
	"net/http"
)

// createOutcome classifies the answer to a new-version request.
type createOutcome int

const (
	outcomeCreated createOutcome = iota
	// The reference is unknown as a version; it may be a concept.
	outcomeNeedsResolution
	outcomeFailed
)

// CreateDraft creates a new draft version of the published record reference
// and returns a session bound to it.
//
// reference may name a specific version or a concept. The two cannot be told
// apart up front, so the version endpoint is tried first and a 404 triggers
// resolution of reference as a concept, followed by one more attempt with the
// latest version it points to.
func (c *Client) CreateDraft(ctx context.Context, reference int64) (*Draft, error) {
	return c.createDraft(ctx, reference, map[int64]bool{})
}

func (c *Client) createDraft(ctx context.Context, reference int64, tried map[int64]bool) (*Draft, error) {
	tried[reference] = true

	outcome, draft, err := c.requestNewVersion(ctx, reference)
	switch outcome {
	case outcomeCreated:
		c.logger.Info("draft created", "reference", reference, "draft", draft.String())
		return draft, nil
	case outcomeNeedsResolution:
		latest, rerr := c.ResolveLatestVersion(ctx, reference)
		if rerr != nil {
			return nil, rerr
		}
		if tried[latest] {
			return nil, err
		}
		return c.createDraft(ctx, latest, tried)
	default:
		return nil, err
	}
}

// requestNewVersion performs a single new-version call.
func (c *Client) requestNewVersion(ctx context.Context, reference int64) (createOutcome, *Draft, error) {
	url := c.apiURL(fmt.Sprintf("/deposit/depositions/%d/actions/newversion", reference))
	req, err := c.newRequest(ctx, http.MethodPost, url, nil)
	if err != nil {
		return outcomeFailed, nil, err
	}

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return outcomeFailed, nil, err
	}
	defer drainAndClose(resp)

	switch {
	case isSuccess(resp):
	case resp.StatusCode == http.StatusNotFound:
		return outcomeNeedsResolution, nil, newAPIError(OpCreateDraft, resp)
	default:
		return outcomeFailed, nil, newAPIError(OpCreateDraft, resp)
	}

	var body deposition
	if err := decodeJSON(resp, &body); err != nil {
		return outcomeFailed, nil, fmt.Errorf("%s: %w", OpCreateDraft, err)
	}
	if body.Links.LatestDraft == "" {
		return outcomeFailed, nil, fmt.Errorf("%w: response has no latest_draft link", ErrDraftCreation)
	}
	return outcomeCreated, newDraft(c, body.Links.LatestDraft), nil
}
