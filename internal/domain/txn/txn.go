// Package txn declares the transaction boundary used by domain services.
package txn

import "context"

// Manager runs fn inside a single storage transaction. The transaction is
// carried by the context passed to fn; repositories pick it up from there.
// If fn returns an error every write made through that context is rolled back.
// Nested calls join the outer transaction.
type Manager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
