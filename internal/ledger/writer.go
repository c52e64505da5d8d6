// Package ledger durably records every balance mutation, successful or
// failed, to the storage backend and mirrors it to an append-only file.
package ledger

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/credits/internal/clock"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/storage"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Writer is the sole writer of Transaction and LedgerEntry records.
// Durability of the balance state takes precedence over the file mirror:
// a file write failure is logged and never rolls anything back.
type Writer struct {
	backend storage.Backend
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	sink    *fileSink
}

// NewWriter opens the file mirror at path. An empty path disables it.
func NewWriter(backend storage.Backend, log *zap.Logger, clk clock.Clock, genID *snowflake.Node, path string) (*Writer, error) {
	w := &Writer{
		backend: backend,
		log:     log.Named("ledger.writer"),
		clock:   clk,
		genID:   genID,
	}
	if path != "" {
		sink, err := newFileSink(path)
		if err != nil {
			return nil, err
		}
		w.sink = sink
	}
	return w, nil
}

// Close flushes the file mirror.
func (w *Writer) Close() error {
	if w.sink == nil {
		return nil
	}
	return w.sink.Close()
}

// NewTransactionID mints a sortable transaction id for callers that did
// not supply an idempotency key.
func (w *Writer) NewTransactionID() string {
	return ulid.Make().String()
}

// RecordTransaction appends the transaction and its ledger entry. A
// duplicate id is an idempotent replay: the previously recorded
// transaction is returned with replayed=true and no new effect.
func (w *Writer) RecordTransaction(ctx context.Context, tx *creditdomain.Transaction, correlationID string) (*creditdomain.Transaction, bool, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = w.clock.Now()
	}
	if err := w.backend.AppendTransaction(ctx, tx); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			prior, getErr := w.backend.GetTransaction(ctx, tx.ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return prior, true, nil
		}
		return nil, false, err
	}

	entry := &creditdomain.LedgerEntry{
		ID:            w.genID.Generate().Int64(),
		Category:      creditdomain.LedgerCategoryTransaction,
		UserID:        tx.UserID,
		CorrelationID: correlationID,
		Message:       "credit " + string(tx.Kind),
		Details: datatypes.JSONMap{
			"transaction_id":  tx.ID,
			"amount":          tx.Amount,
			"available_after": tx.AvailableAfter,
			"reserved_after":  tx.ReservedAfter,
		},
		CreatedAt: w.clock.Now(),
	}
	if err := w.backend.AppendLedgerEntry(ctx, entry); err != nil {
		// The authoritative transaction is already recorded.
		w.log.Warn("ledger entry write failed",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}

	w.mirror(fileRecord{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Kind:          string(tx.Kind),
		Amount:        tx.Amount,
		BalanceAfter:  &balanceAfter{Available: tx.AvailableAfter, Reserved: tx.ReservedAfter},
		Description:   tx.Description,
		CreatedAt:     tx.CreatedAt,
		Category:      string(creditdomain.LedgerCategoryTransaction),
	})
	return tx, false, nil
}

// RecordError writes an error-category entry for a failed operation. The
// trail must be complete regardless of what the caller does with the
// error it also receives, so failures here are only logged.
func (w *Writer) RecordError(ctx context.Context, userID, operation string, amount int64, opErr error, correlationID string) {
	now := w.clock.Now()
	entry := &creditdomain.LedgerEntry{
		ID:            w.genID.Generate().Int64(),
		Category:      creditdomain.LedgerCategoryError,
		UserID:        userID,
		CorrelationID: correlationID,
		Message:       operation + " failed",
		Details: datatypes.JSONMap{
			"operation": operation,
			"amount":    amount,
			"error":     opErr.Error(),
		},
		CreatedAt: now,
	}
	if err := w.backend.AppendLedgerEntry(ctx, entry); err != nil {
		w.log.Warn("error ledger entry write failed",
			zap.String("user_id", userID),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}

	w.mirror(fileRecord{
		UserID:      userID,
		Kind:        operation,
		Amount:      amount,
		Description: opErr.Error(),
		CreatedAt:   now,
		Category:    string(creditdomain.LedgerCategoryError),
	})
}

// RecordSystem writes a system-category entry (scheduler runs, reloads).
func (w *Writer) RecordSystem(ctx context.Context, message string, details map[string]any) {
	now := w.clock.Now()
	entry := &creditdomain.LedgerEntry{
		ID:        w.genID.Generate().Int64(),
		Category:  creditdomain.LedgerCategorySystem,
		Message:   message,
		Details:   datatypes.JSONMap(details),
		CreatedAt: now,
	}
	if err := w.backend.AppendLedgerEntry(ctx, entry); err != nil {
		w.log.Warn("system ledger entry write failed", zap.String("message", message), zap.Error(err))
	}

	w.mirror(fileRecord{
		Description: message,
		CreatedAt:   now,
		Category:    string(creditdomain.LedgerCategorySystem),
		Details:     details,
	})
}

func (w *Writer) mirror(record fileRecord) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Append(record); err != nil {
		w.log.Warn("ledger file append failed", zap.Error(err))
	}
}
