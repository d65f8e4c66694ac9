package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-subs/internal/models"
)

const transactionColumns = `id, user_uid, plan_id, channel_id, subscription_id, amount,
			      currency, order_id, payment_id, status, invoice_ref, action, created_at`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*models.Transaction, error) {
	var item models.Transaction
	if err := row.Scan(&item.ID, &item.UserUID, &item.PlanID, &item.ChannelID,
		&item.SubscriptionID, &item.Amount, &item.Currency, &item.OrderID,
		&item.PaymentID, &item.Status, &item.InvoiceRef, &item.Action,
		&item.CreatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateTransaction вставляет новую транзакцию в статусе created и возвращает её ID.
func (s *Storage) CreateTransaction(ctx context.Context, tx models.Transaction) (int, error) {
	const op = "storage.CreateTransaction"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO transactions (user_uid, plan_id, channel_id, amount, currency,
			      order_id, payment_id, status, invoice_ref, action)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		tx.UserUID, tx.PlanID, tx.ChannelID, tx.Amount, tx.Currency,
		tx.OrderID, tx.PaymentID, tx.Status, tx.InvoiceRef, tx.Action).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// FindTransactionByOrderID находит транзакцию по внешнему ID заказа.
// Второе возвращаемое значение false означает отсутствие заказа.
func (s *Storage) FindTransactionByOrderID(ctx context.Context, orderID string) (*models.Transaction, bool, error) {
	const op = "storage.FindTransactionByOrderID"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + transactionColumns + `
			  FROM transactions WHERE order_id = $1`
	result, err := scanTransaction(s.DB.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, true, nil
}

// CaptureTransactionIf переводит транзакцию created -> captured и фиксирует
// ID платежа. Возвращает количество изменённых строк: 0 означает, что заказ
// уже был захвачен параллельным подтверждением (вебхук против клиента).
func (s *Storage) CaptureTransactionIf(ctx context.Context, orderID, paymentID string) (int, error) {
	const op = "storage.CaptureTransactionIf"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE transactions
		      SET status = 'captured', payment_id = $1
		      WHERE order_id = $2 AND status = 'created'`
	result, err := s.DB.ExecContext(ctx, query, paymentID, orderID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// LinkTransactionSubscription связывает захваченную транзакцию с подпиской,
// которую она активировала.
func (s *Storage) LinkTransactionSubscription(ctx context.Context, txID, subscriptionID int) error {
	const op = "storage.LinkTransactionSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE transactions
		      SET subscription_id = $1
		      WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, subscriptionID, txID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetTransactionInvoice сохраняет ссылку на инвойс шлюза.
func (s *Storage) SetTransactionInvoice(ctx context.Context, txID int, invoiceRef string) error {
	const op = "storage.SetTransactionInvoice"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE transactions
		      SET invoice_ref = $1
		      WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, invoiceRef, txID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ReceiptExists проверяет занятость номера квитанции среди транзакций.
func (s *Storage) ReceiptExists(ctx context.Context, receipt string) (bool, error) {
	const op = "storage.ReceiptExists"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE invoice_ref = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, receipt).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
