package sqladapter

import (
	"context"

	"github.com/sinhashubham95/connpool"
)

// NewFactory adapts db into the connpool.Factory capability the pool
// constructs new connections through.
func NewFactory(db *DB) connpool.Factory {
	return func(ctx context.Context) (connpool.Connection, error) {
		return db.Connect(ctx)
	}
}
