package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ksh277/Travleap-sub004/internal/core/domain"
)

// MySQLAdapter persists reservations, inventory counters and the audit
// trail. Every status transition is a conditional UPDATE on the expected
// prior status; RowsAffected == 0 surfaces as domain.ErrStaleState so
// concurrent transition attempts resolve to exactly one winner.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateReservation(ctx context.Context, res *domain.Reservation) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET available = available - ?, version = version + 1, updated_at = NOW()
		WHERE category = ? AND item_id = ? AND available >= ?`,
		res.Quantity, res.Category, res.ResourceID, res.Quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement inventory: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrInsufficientStock
	}

	endDate := sql.NullTime{Time: res.EndDate, Valid: !res.EndDate.IsZero()}
	insert, err := tx.ExecContext(ctx, `
		INSERT INTO reservations
			(booking_number, user_id, vendor_id, category, resource_id, unit_id,
			 start_date, end_date, quantity, total_amount, currency,
			 status, payment_status, hold_expires_at, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		res.BookingNumber, res.UserID, res.VendorID, res.Category, res.ResourceID, res.UnitID,
		res.StartDate, endDate, res.Quantity, res.TotalAmount, res.Currency,
		res.Status, res.PaymentStatus, res.HoldExpiresAt, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if id, err := insert.LastInsertId(); err == nil {
		res.ID = id
	}

	return tx.Commit()
}

const reservationColumns = `
	id, booking_number, user_id, vendor_id, category, resource_id, unit_id,
	start_date, end_date, quantity, total_amount, currency,
	status, payment_status, hold_expires_at, created_at, updated_at, cancelled_at, version`

func (m *MySQLAdapter) GetReservation(ctx context.Context, bookingNumber string) (*domain.Reservation, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE booking_number = ?`, bookingNumber)

	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	return res, nil
}

func (m *MySQLAdapter) ConfirmReservation(ctx context.Context, bookingNumber string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, payment_status = ?, hold_expires_at = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE booking_number = ? AND status = ?`,
		domain.ReservationStatusConfirmed, domain.PaymentStatusPaid,
		bookingNumber, domain.ReservationStatusHold,
	)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrStaleState
	}
	return nil
}

func (m *MySQLAdapter) CancelReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error {
	return m.resolveReservation(ctx, bookingNumber, reason, now, domain.ReservationStatusCancelled)
}

func (m *MySQLAdapter) ExpireReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error {
	return m.resolveReservation(ctx, bookingNumber, reason, now, domain.ReservationStatusExpired)
}

// resolveReservation moves a hold to cancelled or expired, restores the
// inventory it consumed and appends the audit record, all in one
// transaction so a crash cannot leave the status flipped with the stock
// still decremented.
func (m *MySQLAdapter) resolveReservation(ctx context.Context, bookingNumber, reason string, now time.Time, next domain.ReservationStatus) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE booking_number = ? FOR UPDATE`, bookingNumber)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrReservationNotFound
	}
	if err != nil {
		return fmt.Errorf("lock reservation row: %w", err)
	}

	paymentStatus := res.PaymentStatus
	cancelledAt := sql.NullTime{}
	action := domain.EventActionCancel
	switch next {
	case domain.ReservationStatusCancelled:
		cancelledAt = sql.NullTime{Time: now, Valid: true}
	case domain.ReservationStatusExpired:
		paymentStatus = domain.PaymentStatusExpired
		action = domain.EventActionExpired
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, payment_status = ?, hold_expires_at = NULL,
		    cancelled_at = ?, version = version + 1, updated_at = NOW()
		WHERE booking_number = ? AND status = ?`,
		next, paymentStatus, cancelledAt, bookingNumber, domain.ReservationStatusHold,
	)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrStaleState
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory
		SET available = available + ?, version = version + 1, updated_at = NOW()
		WHERE category = ? AND item_id = ?`,
		res.Quantity, res.Category, res.ResourceID,
	)
	if err != nil {
		return fmt.Errorf("restore inventory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO booking_audit (booking_number, action, reason, hold_expires_at, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		bookingNumber, action, reason, res.HoldExpiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = ? AND payment_status = ? AND hold_expires_at < ?
		ORDER BY hold_expires_at ASC
		LIMIT ?`,
		domain.ReservationStatusHold, domain.PaymentStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired holds: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired hold: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, category, itemID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := m.db.QueryRowContext(ctx, `
		SELECT category, item_id, available, version, created_at, updated_at
		FROM inventory WHERE category = ? AND item_id = ?`, category, itemID,
	).Scan(&inv.Category, &inv.ItemID, &inv.Available, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInventoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var res domain.Reservation
	var unitID sql.NullString
	var endDate, holdExpiresAt, cancelledAt sql.NullTime

	err := row.Scan(
		&res.ID, &res.BookingNumber, &res.UserID, &res.VendorID,
		&res.Category, &res.ResourceID, &unitID,
		&res.StartDate, &endDate, &res.Quantity, &res.TotalAmount, &res.Currency,
		&res.Status, &res.PaymentStatus, &holdExpiresAt,
		&res.CreatedAt, &res.UpdatedAt, &cancelledAt, &res.Version,
	)
	if err != nil {
		return nil, err
	}

	res.UnitID = unitID.String
	if endDate.Valid {
		res.EndDate = endDate.Time
	}
	if holdExpiresAt.Valid {
		t := holdExpiresAt.Time
		res.HoldExpiresAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		res.CancelledAt = &t
	}
	return &res, nil
}
