package chunkstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// DeleteFileWithRetry deletes a file's chunks, retrying until the store
// reports success or tries run out. Backends whose delete is not atomic
// converge to an all-or-nothing outcome from the caller's view.
func DeleteFileWithRetry(ctx context.Context, store Store, vectorStoreID, fileID string, tries uint) error {
	if tries == 0 {
		tries = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := store.DeleteFile(ctx, vectorStoreID, fileID)
		if err != nil && !errdefs.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	if err != nil {
		RecordDeleteRetryExhausted()
	}
	return err
}
