package deposit

import (
	"fmt"

	"zenodo-upload/internal/model"
)

// GetHistory returns the most recent publication attempts, newest first.
func (s *Service) GetHistory(limit int) ([]*model.Publication, error) {
	pubs, err := s.database.ListPublications(limit)
	if err != nil {
		return nil, fmt.Errorf("listing publications: %w", err)
	}
	return pubs, nil
}
