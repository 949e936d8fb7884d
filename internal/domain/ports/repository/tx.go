package repository

import (
	"context"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn within a single store transaction, handing the backend
// specific handle to repositories through tx.
//
// Repositories MUST accept a nil tx (non-transactional path). The concrete type of tx is
// infra-defined (pgx.Tx for Postgres, a session-bound context for MongoDB).
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
