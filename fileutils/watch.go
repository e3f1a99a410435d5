package fileutils

import (
	"context"
	"time"
)

// WatchFile polls the file at path every interval and emits on the returned
// channel whenever its content hash changes. The channel is closed when ctx
// is done.
func WatchFile(ctx context.Context, path string, interval time.Duration, onErr func(err error)) (<-chan struct{}, error) {
	lastHash, err := ComputeFileHash(path)
	if err != nil {
		return nil, err
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				newHash, err := ComputeFileHash(path)
				if err != nil {
					onErr(err)
					continue
				}
				if newHash == lastHash {
					continue
				}
				lastHash = newHash

				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
