package zenodo

import (
	"context"
	"errors"
)

// Upload publishes a new version of record reference carrying the file at
// path and the given version string.
//
// When the client has dedup enabled and the file is already attached
// unchanged, the draft is discarded and a *DraftDiscardedError is returned.
// If discarding fails, that error is returned instead. Any other failure is
// returned as is and leaves the draft on the server.
func Upload(ctx context.Context, c *Client, reference int64, path, version string) (*PublishResult, error) {
	draft, err := c.CreateDraft(ctx, reference)
	if err != nil {
		return nil, err
	}

	if _, err := draft.AddFile(ctx, path); err != nil {
		var present *FilePresentError
		if !errors.As(err, &present) {
			return nil, err
		}
		if derr := draft.Discard(ctx); derr != nil {
			return nil, derr
		}
		c.logger.Info("draft discarded", "draft", draft.String(), "filename", present.Filename)
		return nil, &DraftDiscardedError{Draft: draft.String(), Err: err}
	}

	if err := draft.SetVersion(ctx, version); err != nil {
		return nil, err
	}

	result, err := draft.Publish(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("version published", "id", result.ID, "doi", result.DOI)
	return result, nil
}
