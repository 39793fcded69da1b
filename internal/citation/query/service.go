package query

import (
	"context"
	"errors"
	"fmt"

	"contrava/internal/citation/models"
	"contrava/internal/citation/store"
	dErrors "contrava/pkg/domain-errors"
	"contrava/pkg/requestcontext"
)

// Service executes filtered, paginated list queries against the record
// store. It holds no state beyond the store handle; each query resolves its
// period bounds from the request-scoped clock at execution time.
type Service struct {
	records store.RecordStore
}

// New constructs the query service.
func New(records store.RecordStore) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	return &Service{records: records}, nil
}

// ResultPage is one page of matches plus the total match count the UI needs
// for "N of M" displays. Pages are consistent per fetch; no cross-page
// consistency is guaranteed if writes occur between fetches.
type ResultPage struct {
	Records    []*models.Record `json:"records"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalCount int              `json:"totalCount"`
}

// List returns the page of records matching the filter. Pages past the end
// of the result set return an empty list with the correct total, not an
// error.
func (s *Service) List(ctx context.Context, filter Filter) (*ResultPage, error) {
	scan, page, err := filter.resolve(requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	records, total, err := s.records.Scan(ctx, scan, page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("scan records page %d", page.Number))
	}

	return &ResultPage{
		Records:    records,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalCount: total,
	}, nil
}
