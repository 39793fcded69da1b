// Package query translates caller-facing filter specifications into bounded,
// paginated scans against the record store.
//
// Period presets resolve against the request-scoped clock, so every date
// range the service ever computes is deterministic under test. One code path
// serves every list screen; there are no per-period special cases.
package query

import (
	"strings"
	"time"

	"contrava/internal/citation/models"
	"contrava/internal/citation/store"
	dErrors "contrava/pkg/domain-errors"
)

// PeriodPreset is a named, clock-derived date range.
type PeriodPreset string

const (
	PeriodDay    PeriodPreset = "day"
	PeriodWeek   PeriodPreset = "week"
	PeriodMonth  PeriodPreset = "month"
	PeriodYear   PeriodPreset = "year"
	PeriodAll    PeriodPreset = "all"
	PeriodCustom PeriodPreset = "custom"
)

// ParsePeriodPreset validates a preset wire value. Empty defaults to all.
func ParsePeriodPreset(s string) (PeriodPreset, error) {
	switch PeriodPreset(s) {
	case "":
		return PeriodAll, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll, PeriodCustom:
		return PeriodPreset(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidFilter, "unknown period preset %q", s)
	}
}

const (
	// DefaultPageSize applies when the caller does not specify one.
	DefaultPageSize = 20
	// MaxPageSize is the hard cap; larger requests clamp to it.
	MaxPageSize = 100
)

// Filter is a caller-facing list specification. Period and CustomStart/End
// are mutually exclusive: bounds may only be supplied with PeriodCustom.
type Filter struct {
	Period      PeriodPreset
	CustomStart *time.Time
	CustomEnd   *time.Time
	// Status restricts to one status; nil means all.
	Status *models.Status
	// FreeText is matched case-insensitively as a substring of pvNumber,
	// driver name, and vehicle plate.
	FreeText string
	// Page is 1-based.
	Page int
	// PageSize defaults to DefaultPageSize and clamps to MaxPageSize.
	// Negative values are rejected.
	PageSize int
}

// resolve normalizes the filter against the given clock reading. Returns
// InvalidFilter for contradictory or malformed specifications.
func (f Filter) resolve(now time.Time) (store.ScanFilter, store.Page, error) {
	period := f.Period
	if period == "" {
		period = PeriodAll
	}

	if period != PeriodCustom && (f.CustomStart != nil || f.CustomEnd != nil) {
		return store.ScanFilter{}, store.Page{}, dErrors.New(dErrors.CodeInvalidFilter, "custom bounds require period=custom")
	}

	var from, to *time.Time
	switch period {
	case PeriodCustom:
		if f.CustomStart == nil || f.CustomEnd == nil {
			return store.ScanFilter{}, store.Page{}, dErrors.New(dErrors.CodeInvalidFilter, "period=custom requires both start and end")
		}
		if f.CustomEnd.Before(*f.CustomStart) {
			return store.ScanFilter{}, store.Page{}, dErrors.New(dErrors.CodeInvalidFilter, "custom start must not be after custom end")
		}
		from, to = f.CustomStart, f.CustomEnd
	case PeriodAll:
		// Unbounded.
	default:
		start, end := PeriodBounds(period, now)
		from, to = &start, &end
	}

	if f.Page < 1 {
		return store.ScanFilter{}, store.Page{}, dErrors.New(dErrors.CodeInvalidFilter, "page must be >= 1")
	}
	if f.PageSize < 0 {
		return store.ScanFilter{}, store.Page{}, dErrors.New(dErrors.CodeInvalidFilter, "pageSize must not be negative")
	}
	size := f.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	scan := store.ScanFilter{
		From:     from,
		To:       to,
		Status:   f.Status,
		FreeText: strings.ToLower(strings.TrimSpace(f.FreeText)),
	}
	return scan, store.Page{Number: f.Page, Size: size}, nil
}

// PeriodBounds computes the [start, end) range of a calendar preset around
// the given instant, in that instant's location. Weeks are ISO weeks,
// starting Monday.
func PeriodBounds(period PeriodPreset, now time.Time) (time.Time, time.Time) {
	loc := now.Location()
	year, month, day := now.Date()

	switch period {
	case PeriodDay:
		start := time.Date(year, month, day, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	case PeriodWeek:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday belongs to the week that started the previous Monday
		}
		start := time.Date(year, month, day, 0, 0, 0, 0, loc).AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7)
	case PeriodMonth:
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	case PeriodYear:
		start := time.Date(year, 1, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	default:
		return time.Time{}, time.Time{}
	}
}
