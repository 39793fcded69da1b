package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"contrava/internal/citation/models"
	"contrava/internal/citation/query"
	"contrava/internal/citation/service"
	dErrors "contrava/pkg/domain-errors"
)

// IssueRequest is the HTTP request body for POST /records.
type IssueRequest struct {
	PVNumber      string `json:"pvNumber"`
	VehiclePlate  string `json:"vehiclePlate"`
	DriverRef     string `json:"driverRef"`
	DriverName    string `json:"driverName"`
	AgentRef      string `json:"agentRef"`
	PrecinctRef   string `json:"precinctRef"`
	Location      string `json:"location"`
	BaseAmount    int64  `json:"baseAmount"`
	PenaltyAmount *int64 `json:"penaltyAmount"`
}

// Validate checks required fields and amount signs before the state machine
// sees the request.
func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.PVNumber = strings.TrimSpace(r.PVNumber)
	if r.PVNumber == "" {
		return dErrors.New(dErrors.CodeBadRequest, "pvNumber is required")
	}
	r.VehiclePlate = strings.TrimSpace(r.VehiclePlate)
	if r.VehiclePlate == "" {
		return dErrors.New(dErrors.CodeBadRequest, "vehiclePlate is required")
	}
	if r.BaseAmount <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "baseAmount must be positive")
	}
	if r.PenaltyAmount != nil && *r.PenaltyAmount < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "penaltyAmount must not be negative")
	}
	return nil
}

// ToDomain converts the body into the lifecycle engine request.
func (r *IssueRequest) ToDomain() service.IssueRequest {
	return service.IssueRequest{
		PVNumber:      r.PVNumber,
		VehiclePlate:  r.VehiclePlate,
		DriverRef:     strings.TrimSpace(r.DriverRef),
		DriverName:    r.DriverName,
		AgentRef:      strings.TrimSpace(r.AgentRef),
		PrecinctRef:   strings.TrimSpace(r.PrecinctRef),
		Location:      strings.TrimSpace(r.Location),
		BaseAmount:    r.BaseAmount,
		PenaltyAmount: r.PenaltyAmount,
	}
}

// PaymentRequest is the HTTP request body for POST /records/{id}/payment.
type PaymentRequest struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Notes     string `json:"notes"`
}

// Validate checks the fields the transport can decide alone; amount
// matching stays with the state machine, which knows the outstanding total.
func (r *PaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Method = strings.TrimSpace(r.Method)
	if r.Method == "" {
		return dErrors.New(dErrors.CodeBadRequest, "method is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	return nil
}

// ToDomain converts the body into the lifecycle engine request.
func (r *PaymentRequest) ToDomain() service.PaymentRequest {
	return service.PaymentRequest{
		Method:    r.Method,
		Reference: strings.TrimSpace(r.Reference),
		Amount:    r.Amount,
		Notes:     strings.TrimSpace(r.Notes),
	}
}

// parseListFilter builds a query filter from GET /records query parameters.
func parseListFilter(r *http.Request) (query.Filter, error) {
	q := r.URL.Query()
	var filter query.Filter

	period, err := query.ParsePeriodPreset(q.Get("period"))
	if err != nil {
		return query.Filter{}, err
	}
	filter.Period = period

	if filter.CustomStart, err = parseTimeParam(q.Get("start"), "start"); err != nil {
		return query.Filter{}, err
	}
	if filter.CustomEnd, err = parseTimeParam(q.Get("end"), "end"); err != nil {
		return query.Filter{}, err
	}

	// "all" and an absent parameter both mean no status restriction.
	if raw := q.Get("status"); raw != "" && !strings.EqualFold(raw, "all") {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return query.Filter{}, dErrors.Newf(dErrors.CodeInvalidFilter, "unknown status %q", raw)
		}
		filter.Status = &status
	}

	filter.FreeText = strings.TrimSpace(q.Get("q"))

	filter.Page = 1
	if raw := q.Get("page"); raw != "" {
		if filter.Page, err = parseIntParam(raw, "page"); err != nil {
			return query.Filter{}, err
		}
	}
	if filter.PageSize, err = parseIntParam(q.Get("pageSize"), "pageSize"); err != nil {
		return query.Filter{}, err
	}
	return filter, nil
}

func parseTimeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeInvalidFilter, "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

func parseIntParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInvalidFilter, "%s must be an integer", name)
	}
	return n, nil
}
