package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnectFunc は1回分の接続試行です。
type ConnectFunc func(ctx context.Context) error

// ConnectWithRetry は接続に成功するまで固定間隔で無期限にリトライします。
// ctx がキャンセルされた場合のみ諦めます。
func ConnectWithRetry(ctx context.Context, name string, interval time.Duration, logger logrus.FieldLogger, connect ConnectFunc) error {
	for attempt := 1; ; attempt++ {
		err := connect(ctx)
		if err == nil {
			logger.WithFields(logrus.Fields{
				"backend": name,
				"attempt": attempt,
			}).Info("connected to store")
			return nil
		}

		logger.WithError(err).WithFields(logrus.Fields{
			"backend": name,
			"attempt": attempt,
		}).Warnf("failed to connect to %s, retrying in %s", name, interval)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect to %s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
}
