// Package stats derives period-bucketed figures from the record store for
// dashboard consumption.
//
// Figures are always computed on demand from the store, never cached, so no
// aggregate can silently diverge from the records. The per-status walks run
// concurrently under one errgroup; the first store failure cancels the rest.
package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"contrava/internal/citation/models"
	"contrava/internal/citation/query"
	"contrava/internal/citation/store"
	dErrors "contrava/pkg/domain-errors"
	"contrava/pkg/requestcontext"
)

// scanPageSize is the page size used for the internal store walks.
const scanPageSize = 500

// Summary holds the derived figures for one period.
type Summary struct {
	// TotalCount is the number of citations issued in the period.
	TotalCount int `json:"totalCount"`
	// TotalBilled sums base plus penalty over every citation in the period.
	TotalBilled int64 `json:"totalBilled"`
	// Collected covers records whose fine was captured: PAYEE, plus
	// ARCHIVEE records that were archived from PAYEE.
	CollectedCount  int   `json:"collectedCount"`
	CollectedAmount int64 `json:"collectedAmount"`
	// Outstanding covers records still collectible: CONSTATEE and VALIDEE.
	OutstandingCount  int   `json:"outstandingCount"`
	OutstandingAmount int64 `json:"outstandingAmount"`
	// CollectionRate is collected over billed, in percent. Zero when
	// nothing was billed.
	CollectionRate float64 `json:"collectionRate"`
	// StatusBreakdown gives per-status counts and their share of the
	// period total, in percent.
	StatusBreakdown map[models.Status]StatusShare `json:"statusBreakdown"`
}

// StatusShare is one slice of the status breakdown.
type StatusShare struct {
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Service computes summaries. Read-only; it never writes to the store.
type Service struct {
	records store.RecordStore
}

// New constructs the statistics service.
func New(records store.RecordStore) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	return &Service{records: records}, nil
}

var allStatuses = []models.Status{
	models.StatusConstatee,
	models.StatusValidee,
	models.StatusPayee,
	models.StatusContestee,
	models.StatusAnnulee,
	models.StatusArchivee,
}

// Summarize computes the figures for the given period preset against the
// request-scoped clock. An empty result set yields all-zero figures.
func (s *Service) Summarize(ctx context.Context, period query.PeriodPreset) (*Summary, error) {
	if period == query.PeriodCustom {
		return nil, dErrors.New(dErrors.CodeInvalidFilter, "statistics do not accept custom periods")
	}
	if _, err := query.ParsePeriodPreset(string(period)); err != nil {
		return nil, err
	}

	var from, to *time.Time
	if period != "" && period != query.PeriodAll {
		start, end := query.PeriodBounds(period, requestcontext.Now(ctx))
		from, to = &start, &end
	}

	summary := &Summary{StatusBreakdown: make(map[models.Status]StatusShare)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, status := range allStatuses {
		status := status
		g.Go(func() error {
			bucket, err := s.walkStatus(gctx, from, to, status)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			summary.TotalCount += bucket.count
			summary.TotalBilled += bucket.billed
			summary.CollectedCount += bucket.collectedCount
			summary.CollectedAmount += bucket.collectedAmount
			summary.OutstandingCount += bucket.outstandingCount
			summary.OutstandingAmount += bucket.outstandingAmount
			summary.StatusBreakdown[status] = StatusShare{Count: bucket.count}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "aggregate statistics")
	}

	if summary.TotalBilled > 0 {
		summary.CollectionRate = 100 * float64(summary.CollectedAmount) / float64(summary.TotalBilled)
	}
	if summary.TotalCount > 0 {
		for status, share := range summary.StatusBreakdown {
			share.Percent = 100 * float64(share.Count) / float64(summary.TotalCount)
			summary.StatusBreakdown[status] = share
		}
	}
	return summary, nil
}

type bucket struct {
	count             int
	billed            int64
	collectedCount    int
	collectedAmount   int64
	outstandingCount  int
	outstandingAmount int64
}

// walkStatus pages through every record of one status in the period and
// accumulates its figures.
func (s *Service) walkStatus(ctx context.Context, from, to *time.Time, status models.Status) (bucket, error) {
	var b bucket
	filter := store.ScanFilter{From: from, To: to, Status: &status}

	for pageNum := 1; ; pageNum++ {
		records, _, err := s.records.Scan(ctx, filter, store.Page{Number: pageNum, Size: scanPageSize})
		if err != nil {
			return bucket{}, err
		}
		if len(records) == 0 {
			return b, nil
		}
		for _, rec := range records {
			b.count++
			b.billed += rec.OutstandingTotal()
			switch {
			case rec.Status == models.StatusPayee,
				rec.Status == models.StatusArchivee && rec.Payment != nil:
				b.collectedCount++
				b.collectedAmount += rec.Payment.Amount
			case rec.Status.Open():
				b.outstandingCount++
				b.outstandingAmount += rec.OutstandingTotal()
			}
		}
	}
}
