package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"contrava/internal/citation/models"
	"contrava/internal/citation/store/memory"
	id "contrava/pkg/domain"
	dErrors "contrava/pkg/domain-errors"
	"contrava/pkg/requestcontext"
)

// fixedNow is a Wednesday: 2025-06-11. ISO week starts Monday 2025-06-09.
var fixedNow = time.Date(2025, 6, 11, 15, 4, 5, 0, time.UTC)

func TestPeriodBounds(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		period PeriodPreset
		start  time.Time
		end    time.Time
	}{
		{
			name:   "day is the local calendar day",
			now:    fixedNow,
			period: PeriodDay,
			start:  time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "week starts on Monday",
			now:    fixedNow,
			period: PeriodWeek,
			start:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "sunday belongs to the week begun the previous Monday",
			now:    time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC), // Sunday
			period: PeriodWeek,
			start:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "month is the calendar month",
			now:    fixedNow,
			period: PeriodMonth,
			start:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "year is the calendar year",
			now:    fixedNow,
			period: PeriodYear,
			start:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "month boundary at new year",
			now:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			period: PeriodMonth,
			start:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			end:    time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := PeriodBounds(tt.period, tt.now)
			assert.True(t, start.Equal(tt.start), "start: got %v want %v", start, tt.start)
			assert.True(t, end.Equal(tt.end), "end: got %v want %v", end, tt.end)
		})
	}
}

func TestParsePeriodPreset(t *testing.T) {
	t.Run("empty defaults to all", func(t *testing.T) {
		p, err := ParsePeriodPreset("")
		require.NoError(t, err)
		assert.Equal(t, PeriodAll, p)
	})

	t.Run("unknown preset is an invalid filter", func(t *testing.T) {
		_, err := ParsePeriodPreset("fortnight")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFilter))
	})
}

type QueryServiceSuite struct {
	suite.Suite
	store   *memory.InMemory
	service *Service
	ctx     context.Context
}

func TestQueryServiceSuite(t *testing.T) {
	suite.Run(t, new(QueryServiceSuite))
}

func (s *QueryServiceSuite) SetupTest() {
	s.store = memory.NewInMemory()
	var err error
	s.service, err = New(s.store)
	s.Require().NoError(err)
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
}

func (s *QueryServiceSuite) seedRecord(pvNumber, driverName string, issuedAt time.Time) *models.Record {
	rec, err := models.NewRecord(id.NewRecordID(), pvNumber, "DK-204-AB", "drv-1", driverName, "agt-1", "pct-1", "Corniche Ouest", 25000, nil, issuedAt, "system")
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, rec))
	return rec
}

func (s *QueryServiceSuite) markPaid(rec *models.Record) {
	paid := rec.Clone()
	paid.ApplyPayment(models.Payment{Method: "ESPECES", Amount: paid.OutstandingTotal()}, fixedNow, "clerk:1")
	s.Require().NoError(s.store.Put(s.ctx, paid, rec.Status))
}

func (s *QueryServiceSuite) TestFilterValidation() {
	s.Run("custom without bounds", func() {
		_, err := s.service.List(s.ctx, Filter{Period: PeriodCustom, Page: 1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidFilter))
	})

	s.Run("custom start after end", func() {
		start := fixedNow
		end := fixedNow.Add(-time.Hour)
		_, err := s.service.List(s.ctx, Filter{Period: PeriodCustom, CustomStart: &start, CustomEnd: &end, Page: 1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidFilter))
	})

	s.Run("bounds without custom period", func() {
		start := fixedNow
		_, err := s.service.List(s.ctx, Filter{Period: PeriodMonth, CustomStart: &start, Page: 1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidFilter))
	})

	s.Run("page below one", func() {
		_, err := s.service.List(s.ctx, Filter{Page: 0})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidFilter))
	})

	s.Run("negative page size", func() {
		_, err := s.service.List(s.ctx, Filter{Page: 1, PageSize: -5})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidFilter))
	})

	s.Run("page size clamps to the maximum", func() {
		result, err := s.service.List(s.ctx, Filter{Page: 1, PageSize: 5000})
		s.Require().NoError(err)
		s.Equal(MaxPageSize, result.PageSize)
	})

	s.Run("page size defaults", func() {
		result, err := s.service.List(s.ctx, Filter{Page: 1})
		s.Require().NoError(err)
		s.Equal(DefaultPageSize, result.PageSize)
	})
}

func (s *QueryServiceSuite) TestPeriodFiltering() {
	inMonth := s.seedRecord("PV-100", "Moussa Ba", fixedNow.AddDate(0, 0, -3))
	s.seedRecord("PV-101", "Awa Diallo", fixedNow.AddDate(0, -2, 0))

	result, err := s.service.List(s.ctx, Filter{Period: PeriodMonth, Page: 1})
	s.Require().NoError(err)
	s.Equal(1, result.TotalCount)
	s.Require().Len(result.Records, 1)
	s.Equal(inMonth.ID, result.Records[0].ID)

	all, err := s.service.List(s.ctx, Filter{Period: PeriodAll, Page: 1})
	s.Require().NoError(err)
	s.Equal(2, all.TotalCount)
}

func (s *QueryServiceSuite) TestStatusAndTextFiltering() {
	paid := s.seedRecord("PV-200", "Moussa Ba", fixedNow.Add(-time.Hour))
	s.markPaid(paid)
	s.seedRecord("PV-201", "Awa Diallo", fixedNow.Add(-2*time.Hour))

	s.Run("single status", func() {
		status := models.StatusPayee
		result, err := s.service.List(s.ctx, Filter{Status: &status, Page: 1})
		s.Require().NoError(err)
		s.Equal(1, result.TotalCount)
		s.Equal(paid.ID, result.Records[0].ID)
	})

	s.Run("free text is case-insensitive", func() {
		result, err := s.service.List(s.ctx, Filter{FreeText: "MOUSSA", Page: 1})
		s.Require().NoError(err)
		s.Equal(1, result.TotalCount)
	})

	s.Run("free text matches pv number", func() {
		result, err := s.service.List(s.ctx, Filter{FreeText: "pv-201", Page: 1})
		s.Require().NoError(err)
		s.Equal(1, result.TotalCount)
	})
}

func (s *QueryServiceSuite) TestStablePagination() {
	for i := 0; i < 5; i++ {
		s.markPaid(s.seedRecord(fmt.Sprintf("PV-3%02d", i), "Moussa Ba", fixedNow.Add(-time.Duration(i+1)*time.Hour)))
	}

	status := models.StatusPayee
	seen := make(map[string]bool)
	var prev *models.Record
	for pageNum := 1; pageNum <= 3; pageNum++ {
		result, err := s.service.List(s.ctx, Filter{Period: PeriodMonth, Status: &status, Page: pageNum, PageSize: 2})
		s.Require().NoError(err)
		s.Equal(5, result.TotalCount)
		if pageNum < 3 {
			s.Len(result.Records, 2)
		} else {
			s.Len(result.Records, 1)
		}
		for _, rec := range result.Records {
			s.False(seen[rec.PVNumber], "record %s appeared twice", rec.PVNumber)
			seen[rec.PVNumber] = true
			if prev != nil {
				s.False(rec.IssuedAt.After(prev.IssuedAt), "descending issuedAt across pages")
			}
			prev = rec
		}
	}
	s.Len(seen, 5)

	s.Run("past-the-end page", func() {
		result, err := s.service.List(s.ctx, Filter{Period: PeriodMonth, Status: &status, Page: 9, PageSize: 2})
		s.Require().NoError(err)
		s.Empty(result.Records)
		s.Equal(5, result.TotalCount)
	})
}
