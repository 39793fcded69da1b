// Package postgres provides the PostgreSQL-backed RecordStore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"contrava/internal/citation/models"
	"contrava/internal/citation/store"
	id "contrava/pkg/domain"
	"contrava/pkg/platform/sentinel"
	platformtx "contrava/pkg/platform/tx"
)

// Schema creates the tables this store needs. Applied by cmd/server on
// startup when a DSN is configured; safe to re-run.
const Schema = `
CREATE TABLE IF NOT EXISTS citation_records (
	id                  UUID PRIMARY KEY,
	pv_number           TEXT NOT NULL,
	vehicle_plate       TEXT NOT NULL,
	driver_ref          TEXT NOT NULL DEFAULT '',
	driver_name         TEXT NOT NULL DEFAULT '',
	agent_ref           TEXT NOT NULL DEFAULT '',
	precinct_ref        TEXT NOT NULL DEFAULT '',
	location            TEXT NOT NULL DEFAULT '',
	base_amount         BIGINT NOT NULL,
	penalty_amount      BIGINT,
	issued_at           TIMESTAMPTZ NOT NULL,
	status              TEXT NOT NULL,
	payment_id          UUID,
	payment_method      TEXT,
	payment_reference   TEXT,
	payment_amount      BIGINT,
	payment_notes       TEXT,
	payment_recorded_at TIMESTAMPTZ,
	archived_at         TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS citation_records_pv_number_key
	ON citation_records (LOWER(pv_number));
CREATE INDEX IF NOT EXISTS citation_records_issued_at_idx
	ON citation_records (issued_at DESC, id ASC);

CREATE TABLE IF NOT EXISTS citation_status_history (
	record_id   UUID NOT NULL REFERENCES citation_records (id),
	position    INT NOT NULL,
	status      TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	at          TIMESTAMPTZ NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (record_id, position)
);
`

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// PostgresStore persists citation records in PostgreSQL. The store is pure
// I/O; transition rules belong in the service layer. History rows are
// append-only: Put only ever inserts positions the table does not have yet.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// begin joins the transaction carried by the context when one is present,
// so a caller can group several writes atomically. The owned flag reports
// whether the store must finish the transaction itself.
func (s *PostgresStore) begin(ctx context.Context) (*sql.Tx, bool, error) {
	if ambient, ok := platformtx.From(ctx); ok {
		return ambient, false, nil
	}
	t, err := s.db.BeginTx(ctx, nil)
	return t, true, err
}

// EnsureSchema applies the table definitions.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const recordColumns = `id, pv_number, vehicle_plate, driver_ref, driver_name, agent_ref, precinct_ref,
	location, base_amount, penalty_amount, issued_at, status,
	payment_id, payment_method, payment_reference, payment_amount, payment_notes, payment_recorded_at,
	archived_at`

// Create inserts a new record together with its initial history entries.
func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	tx, owned, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	if owned {
		defer func() { _ = tx.Rollback() }()
	}

	query := `
		INSERT INTO citation_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err = tx.ExecContext(ctx, query, recordArgs(record)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create record: %w", err)
	}

	if err := insertHistory(ctx, tx, record); err != nil {
		return err
	}
	if owned {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit create: %w", err)
		}
	}
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM citation_records WHERE id = $1`
	return s.getOne(ctx, query, recordID.String())
}

// GetByPVNumber returns the record with the given citation number, or
// ErrNotFound. Lookup is case-insensitive like the unique index.
func (s *PostgresStore) GetByPVNumber(ctx context.Context, pvNumber string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM citation_records WHERE LOWER(pv_number) = LOWER($1)`
	return s.getOne(ctx, query, strings.TrimSpace(pvNumber))
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (*models.Record, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	if err := s.loadHistory(ctx, []*models.Record{record}); err != nil {
		return nil, err
	}
	return record, nil
}

// Put replaces the stored record if and only if its status still equals
// expectedStatus. The guard is a conditional UPDATE so concurrent transition
// attempts on one record resolve to exactly one winner.
func (s *PostgresStore) Put(ctx context.Context, record *models.Record, expectedStatus models.Status) error {
	tx, owned, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	if owned {
		defer func() { _ = tx.Rollback() }()
	}

	query := `
		UPDATE citation_records SET
			penalty_amount = $3,
			status = $4,
			payment_id = $5,
			payment_method = $6,
			payment_reference = $7,
			payment_amount = $8,
			payment_notes = $9,
			payment_recorded_at = $10,
			archived_at = $11
		WHERE id = $1 AND status = $2
	`
	var payID, payMethod, payRef, payNotes sql.NullString
	var payAmount sql.NullInt64
	var payAt sql.NullTime
	if p := record.Payment; p != nil {
		payID = sql.NullString{String: p.ID.String(), Valid: true}
		payMethod = sql.NullString{String: p.Method, Valid: true}
		payRef = sql.NullString{String: p.Reference, Valid: p.Reference != ""}
		payNotes = sql.NullString{String: p.Notes, Valid: p.Notes != ""}
		payAmount = sql.NullInt64{Int64: p.Amount, Valid: true}
		payAt = sql.NullTime{Time: p.RecordedAt, Valid: true}
	}
	result, err := tx.ExecContext(ctx, query,
		record.ID.String(),
		string(expectedStatus),
		nullInt64(record.PenaltyAmount),
		string(record.Status),
		payID, payMethod, payRef, payAmount, payNotes, payAt,
		nullTime(record.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a lost race from a missing record.
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT TRUE FROM citation_records WHERE id = $1`, record.ID.String()).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("put existence check: %w", err)
		}
		return sentinel.ErrConflict
	}

	if err := insertHistory(ctx, tx, record); err != nil {
		return err
	}
	if owned {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit put: %w", err)
		}
	}
	return nil
}

// Scan returns one page of matching records ordered by issuedAt descending,
// id ascending, plus the total match count. The count rides along as a
// window function so page retrieval stays a single round trip.
func (s *PostgresStore) Scan(ctx context.Context, filter store.ScanFilter, page store.Page) ([]*models.Record, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.From != nil {
		conds = append(conds, "issued_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "issued_at < "+arg(*filter.To))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}
	if filter.FreeText != "" {
		pattern := "%" + escapeLike(filter.FreeText) + "%"
		p := arg(pattern)
		conds = append(conds, fmt.Sprintf("(pv_number ILIKE %[1]s OR driver_name ILIKE %[1]s OR vehicle_plate ILIKE %[1]s)", p))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM citation_records
		%s
		ORDER BY issued_at DESC, id ASC
		LIMIT %s OFFSET %s
	`, recordColumns, where, arg(page.Size), arg(page.Offset()))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	var (
		records []*models.Record
		total   int
	)
	for rows.Next() {
		record, count, err := scanRecordWithCount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, record)
		total = count
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan rows: %w", err)
	}

	if len(records) == 0 {
		// Past-the-end pages lose the window count; fetch it separately.
		countQuery := "SELECT COUNT(*) FROM citation_records " + where
		if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("scan count: %w", err)
		}
		return []*models.Record{}, total, nil
	}

	if err := s.loadHistory(ctx, records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// loadHistory attaches history entries to the given records in one query.
func (s *PostgresStore) loadHistory(ctx context.Context, records []*models.Record) error {
	ids := make([]string, len(records))
	byID := make(map[string]*models.Record, len(records))
	for i, rec := range records {
		ids[i] = rec.ID.String()
		byID[rec.ID.String()] = rec
	}

	query := `
		SELECT record_id, status, from_status, at, actor
		FROM citation_status_history
		WHERE record_id = ANY($1)
		ORDER BY record_id, position
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			recordID string
			entry    models.HistoryEntry
			from     string
		)
		if err := rows.Scan(&recordID, &entry.Status, &from, &entry.At, &entry.Actor); err != nil {
			return fmt.Errorf("scan history row: %w", err)
		}
		entry.From = models.Status(from)
		rec := byID[recordID]
		rec.History = append(rec.History, entry)
	}
	return rows.Err()
}

// insertHistory appends history rows the table does not have yet. Positions
// already present are left untouched, which keeps the trail append-only even
// when a Put retries.
func insertHistory(ctx context.Context, tx *sql.Tx, record *models.Record) error {
	query := `
		INSERT INTO citation_status_history (record_id, position, status, from_status, at, actor)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id, position) DO NOTHING
	`
	for i, entry := range record.History {
		_, err := tx.ExecContext(ctx, query,
			record.ID.String(), i, string(entry.Status), string(entry.From), entry.At, entry.Actor,
		)
		if err != nil {
			return fmt.Errorf("insert history entry %d: %w", i, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	record, _, err := scanInto(row, false)
	return record, err
}

func scanRecordWithCount(row rowScanner) (*models.Record, int, error) {
	return scanInto(row, true)
}

func scanInto(row rowScanner, withCount bool) (*models.Record, int, error) {
	var (
		rec        models.Record
		recID      string
		penalty    sql.NullInt64
		status     string
		payID      sql.NullString
		payMethod  sql.NullString
		payRef     sql.NullString
		payAmount  sql.NullInt64
		payNotes   sql.NullString
		payAt      sql.NullTime
		archivedAt sql.NullTime
		total      int
	)

	dest := []any{
		&recID, &rec.PVNumber, &rec.VehiclePlate, &rec.DriverRef, &rec.DriverName, &rec.AgentRef, &rec.PrecinctRef,
		&rec.Location, &rec.BaseAmount, &penalty, &rec.IssuedAt, &status,
		&payID, &payMethod, &payRef, &payAmount, &payNotes, &payAt,
		&archivedAt,
	}
	if withCount {
		dest = append(dest, &total)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}

	parsedID, err := id.ParseRecordID(recID)
	if err != nil {
		return nil, 0, fmt.Errorf("stored record id: %w", err)
	}
	rec.ID = parsedID
	rec.Status = models.Status(status)
	if penalty.Valid {
		v := penalty.Int64
		rec.PenaltyAmount = &v
	}
	if archivedAt.Valid {
		at := archivedAt.Time
		rec.ArchivedAt = &at
	}
	if payID.Valid {
		var paymentID id.PaymentID
		if err := paymentID.UnmarshalText([]byte(payID.String)); err != nil {
			return nil, 0, fmt.Errorf("stored payment id: %w", err)
		}
		rec.Payment = &models.Payment{
			ID:         paymentID,
			Method:     payMethod.String,
			Reference:  payRef.String,
			Amount:     payAmount.Int64,
			Notes:      payNotes.String,
			RecordedAt: payAt.Time,
		}
	}
	return &rec, total, nil
}

func recordArgs(record *models.Record) []any {
	var payID, payMethod, payRef, payNotes sql.NullString
	var payAmount sql.NullInt64
	var payAt sql.NullTime
	if p := record.Payment; p != nil {
		payID = sql.NullString{String: p.ID.String(), Valid: true}
		payMethod = sql.NullString{String: p.Method, Valid: true}
		payRef = sql.NullString{String: p.Reference, Valid: p.Reference != ""}
		payNotes = sql.NullString{String: p.Notes, Valid: p.Notes != ""}
		payAmount = sql.NullInt64{Int64: p.Amount, Valid: true}
		payAt = sql.NullTime{Time: p.RecordedAt, Valid: true}
	}
	return []any{
		record.ID.String(),
		record.PVNumber,
		record.VehiclePlate,
		record.DriverRef,
		record.DriverName,
		record.AgentRef,
		record.PrecinctRef,
		record.Location,
		record.BaseAmount,
		nullInt64(record.PenaltyAmount),
		record.IssuedAt,
		string(record.Status),
		payID, payMethod, payRef, payAmount, payNotes, payAt,
		nullTime(record.ArchivedAt),
	}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
