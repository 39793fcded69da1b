package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"contrava/internal/citation/models"
	"contrava/internal/citation/payref"
	"contrava/internal/citation/store/memory"
	"contrava/internal/directory"
	id "contrava/pkg/domain"
	dErrors "contrava/pkg/domain-errors"
	"contrava/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemory
	payrefs *payref.InMemory
	dir     *directory.InMemory
	svc     *Service
	ctx     context.Context
	now     time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.NewInMemory()
	s.payrefs = payref.NewInMemory()
	s.dir = directory.NewInMemory()
	s.dir.AddDriver(directory.Driver{Ref: "DRV-77", FullName: "Jean Moreau"})
	s.dir.AddAgent(directory.Agent{Ref: "AGT-12", FullName: "Agent Caron"})

	var err error
	s.svc, err = New(s.store,
		WithPayRefStore(s.payrefs),
		WithDirectory(s.dir),
	)
	s.Require().NoError(err)
	s.svc.sleep = func(context.Context, time.Duration) error { return nil }

	s.now = time.Date(2025, 6, 11, 15, 4, 5, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithActor(s.ctx, "greffier-1")
}

func (s *ServiceSuite) issue(pvNumber string) *models.Record {
	rec, err := s.svc.Issue(s.ctx, IssueRequest{
		PVNumber:     pvNumber,
		VehiclePlate: "AB-123-CD",
		DriverRef:    "DRV-77",
		AgentRef:     "AGT-12",
		PrecinctRef:  "PRE-04",
		Location:     "Avenue de la Gare",
		BaseAmount:   35000,
	})
	s.Require().NoError(err)
	return rec
}

func (s *ServiceSuite) TestIssueStartsConstatee() {
	rec := s.issue("PV-2025-0001")

	s.Equal(models.StatusConstatee, rec.Status)
	s.Equal("Jean Moreau", rec.DriverName, "display name comes from the directory")
	s.Equal(s.now, rec.IssuedAt)
	s.Require().Len(rec.History, 1)
	s.Equal("greffier-1", rec.History[0].Actor)
}

func (s *ServiceSuite) TestIssueDuplicatePVNumberConflicts() {
	s.issue("PV-2025-0002")

	_, err := s.svc.Issue(s.ctx, IssueRequest{
		PVNumber:     "pv-2025-0002",
		VehiclePlate: "EF-456-GH",
		BaseAmount:   35000,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestIssueUnknownDriverIsBadRequest() {
	_, err := s.svc.Issue(s.ctx, IssueRequest{
		PVNumber:     "PV-2025-0003",
		VehiclePlate: "AB-123-CD",
		DriverRef:    "DRV-missing",
		BaseAmount:   35000,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestIssueRejectsNonPositiveBase() {
	_, err := s.svc.Issue(s.ctx, IssueRequest{
		PVNumber:     "PV-2025-0004",
		VehiclePlate: "AB-123-CD",
		BaseAmount:   0,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestValidateThenCancel() {
	rec := s.issue("PV-2025-0005")

	rec, err := s.svc.Validate(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusValidee, rec.Status)

	rec, err = s.svc.Cancel(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAnnulee, rec.Status)
	s.Len(rec.History, 3)
}

func (s *ServiceSuite) TestContestedRecordOnlyCancels() {
	rec := s.issue("PV-2025-0006")

	rec, err := s.svc.Contest(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusContestee, rec.Status)

	_, err = s.svc.Validate(s.ctx, rec.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{Method: "ESPECES", Amount: 35000})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	rec, err = s.svc.Cancel(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAnnulee, rec.Status)
}

func (s *ServiceSuite) TestCashPaymentWithPenalty() {
	penalty := int64(10000)
	rec, err := s.svc.Issue(s.ctx, IssueRequest{
		PVNumber:      "PV-2025-0007",
		VehiclePlate:  "AB-123-CD",
		DriverRef:     "DRV-77",
		BaseAmount:    35000,
		PenaltyAmount: &penalty,
	})
	s.Require().NoError(err)

	rec, err = s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{
		Method: "ESPECES",
		Amount: 45000,
	})
	s.Require().NoError(err)

	s.Equal(models.StatusPayee, rec.Status)
	s.Require().NotNil(rec.Payment)
	s.Equal(int64(45000), rec.Payment.Amount)
	s.Equal(s.now, rec.Payment.RecordedAt)
}

func (s *ServiceSuite) TestAmountMismatchLeavesRecordUntouched() {
	rec := s.issue("PV-2025-0008")

	_, err := s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{
		Method: "CARTE",
		Amount: 34999,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeAmountMismatch))

	got, err := s.svc.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusConstatee, got.Status)
	s.Nil(got.Payment)
	s.Len(got.History, 1)
}

func (s *ServiceSuite) TestRetriedPaymentWithSameReferenceIsAlreadyPaid() {
	rec := s.issue("PV-2025-0009")

	req := PaymentRequest{Method: "VIREMENT", Reference: "TRX-881", Amount: 35000}
	_, err := s.svc.RecordPayment(s.ctx, rec.ID, req)
	s.Require().NoError(err)

	_, err = s.svc.RecordPayment(s.ctx, rec.ID, req)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyPaid))
}

func (s *ServiceSuite) TestReferenceHeldOnOpenRecordIsConflict() {
	rec := s.issue("PV-2025-0016")

	// Another writer holds the reference but has not committed yet; the
	// record is still payable, so the loser gets a retryable conflict.
	reserved, err := s.payrefs.Reserve(s.ctx, rec.ID, "TRX-900")
	s.Require().NoError(err)
	s.Require().True(reserved)

	_, err = s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{
		Method:    "VIREMENT",
		Reference: "TRX-900",
		Amount:    35000,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestFailedPaymentReleasesReference() {
	rec := s.issue("PV-2025-0010")

	_, err := s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{
		Method:    "VIREMENT",
		Reference: "TRX-882",
		Amount:    1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeAmountMismatch))

	// The reference must be reusable once the rejected attempt is corrected.
	_, err = s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{
		Method:    "VIREMENT",
		Reference: "TRX-882",
		Amount:    35000,
	})
	s.NoError(err)
}

func (s *ServiceSuite) TestPaymentRequiresMethod() {
	rec := s.issue("PV-2025-0011")

	_, err := s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{Amount: 35000})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestArchiveRoundTrip() {
	rec := s.issue("PV-2025-0012")
	rec, err := s.svc.RecordPayment(s.ctx, rec.ID, PaymentRequest{Method: "CARTE", Amount: 35000})
	s.Require().NoError(err)

	rec, err = s.svc.Archive(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusArchivee, rec.Status)
	s.NotNil(rec.ArchivedAt)

	// Retried archive after a committed first attempt succeeds unchanged.
	again, err := s.svc.Archive(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusArchivee, again.Status)
	s.Len(again.History, len(rec.History))

	rec, err = s.svc.Unarchive(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPayee, rec.Status, "restores the pre-archival status")
	s.Nil(rec.ArchivedAt)
	s.NotNil(rec.Payment, "payment survives the round trip")

	// Retried unarchive is a no-op success as well.
	again, err = s.svc.Unarchive(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPayee, again.Status)
	s.Len(again.History, len(rec.History))
}

func (s *ServiceSuite) TestArchiveOpenRecordIsInvalidState() {
	rec := s.issue("PV-2025-0013")

	_, err := s.svc.Archive(s.ctx, rec.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestUnarchiveNeverArchivedIsInvalidState() {
	rec := s.issue("PV-2025-0014")

	_, err := s.svc.Unarchive(s.ctx, rec.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestGetUnknownRecordIsNotFound() {
	_, err := s.svc.Get(s.ctx, id.NewRecordID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGetByPVNumberIsCaseInsensitive() {
	rec := s.issue("PV-2025-0015")

	got, err := s.svc.GetByPVNumber(s.ctx, "pv-2025-0015")
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestConcurrentPaymentsExactlyOneWins(t *testing.T) {
	st := memory.NewInMemory()
	svc, err := New(st, WithPayRefStore(payref.NewInMemory()))
	require.NoError(t, err)
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 11, 15, 0, 0, 0, time.UTC))
	rec, err := svc.Issue(ctx, IssueRequest{
		PVNumber:     "PV-2025-9000",
		VehiclePlate: "AB-123-CD",
		BaseAmount:   35000,
	})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, rec.ID, PaymentRequest{Method: "CARTE", Amount: 35000})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		rejected++
		assert.True(t,
			dErrors.HasCode(err, dErrors.CodeInvalidState) ||
				dErrors.HasCode(err, dErrors.CodeAlreadyPaid) ||
				dErrors.HasCode(err, dErrors.CodeConflict),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok, "exactly one payment must commit")
	assert.Equal(t, writers-1, rejected)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPayee, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, int64(35000), got.Payment.Amount)
}

func TestConflictExhaustionSurfacesConflict(t *testing.T) {
	st := memory.NewInMemory()
	svc, err := New(st)
	require.NoError(t, err)
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 11, 15, 0, 0, 0, time.UTC))
	rec, err := svc.Issue(ctx, IssueRequest{
		PVNumber:     "PV-2025-9001",
		VehiclePlate: "AB-123-CD",
		BaseAmount:   35000,
	})
	require.NoError(t, err)

	// Storm the same record: every loser of a CAS round re-reads a record
	// whose validation still passes, so losers either retry into success or
	// eventually report Conflict. None may corrupt the record.
	const writers = 6
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, rec.ID)
			if err != nil {
				assert.True(t,
					dErrors.HasCode(err, dErrors.CodeInvalidState) ||
						dErrors.HasCode(err, dErrors.CodeConflict),
					"unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidee, got.Status)
}
