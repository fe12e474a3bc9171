package feed

import "context"

// Optimistic describes one optimistic local change and its remote
// confirmation. S is whatever the change needs to undo itself.
type Optimistic[S any] struct {
	// Apply captures the snapshot and performs the local change atomically.
	Apply func() (S, error)
	// Confirm performs the remote call.
	Confirm func(ctx context.Context, snapshot S) error
	// Revert undoes the local change after Confirm failed.
	Revert func(snapshot S, cause error)
	// Settle runs after a successful confirmation. Optional.
	Settle func(ctx context.Context, snapshot S)
}

// Optimistically runs op: the local change is visible before the remote call
// starts and is reverted when it fails. An Apply error aborts before any
// remote call is made.
func Optimistically[S any](ctx context.Context, op Optimistic[S]) error {
	snapshot, err := op.Apply()
	if err != nil {
		return err
	}
	if err := op.Confirm(ctx, snapshot); err != nil {
		if op.Revert != nil {
			op.Revert(snapshot, err)
		}
		return err
	}
	if op.Settle != nil {
		op.Settle(ctx, snapshot)
	}
	return nil
}
