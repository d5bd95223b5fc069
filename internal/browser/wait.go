package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrTargetUnavailable means the target never answered within the retry budget.
var ErrTargetUnavailable = errors.New("target application unavailable")

// WaitForTarget polls url with GET until it answers with a status below 400,
// up to retries times spaced by interval.
func WaitForTarget(ctx context.Context, url string, retries int, interval time.Duration, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if retries < 1 {
		retries = 1
	}
	client := &http.Client{Timeout: 5 * time.Second}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		lastErr = probe(ctx, client, url)
		if lastErr == nil {
			log.Info("target is up", zap.String("url", url))
			return nil
		}
		log.Info("waiting for target",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.Error(lastErr))
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrTargetUnavailable, url, retries, lastErr)
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
