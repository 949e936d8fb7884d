package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs fn inside a session transaction. The session-bound context is the tx handle.
type TxManager struct {
	client *mongo.Client
}

func NewTxManager(client *mongo.Client) *TxManager {
	return &TxManager{client: client}
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	sess, err := m.client.StartSession()
	if err != nil {
		return domain.ErrOperationFailed
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, fn(sc, sc)
	})
	return err
}

// opCtx picks the context a repository call runs under.
func opCtx(ctx context.Context, tx repository.Tx) (context.Context, error) {
	switch v := tx.(type) {
	case nil:
		return ctx, nil
	case context.Context:
		return v, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrAlreadyExists
	default:
		return domain.ErrOperationFailed
	}
}

func mapReadErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return domain.ErrReadDatabaseRow
}

func clampLimit(limit, def int) int64 {
	if limit <= 0 {
		return int64(def)
	}
	return int64(limit)
}
