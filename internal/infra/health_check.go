package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on disk,
// so a supervisor can restart the bot with the new build.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		logger := log.WithField("context", "monitor")

		exeFilename, err := os.Executable()
		if err != nil {
			logger.WithField("error", err.Error()).Warn("cant resolve executable path")
			return
		}
		stat, err := os.Stat(exeFilename)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("cant stat executable")
			return
		}
		originalTime := stat.ModTime()

		ticker := time.NewTicker(checkExecInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(exeFilename)
				if err != nil {
					logger.WithField("error", err.Error()).Debug("cant stat executable on tick")
					continue
				}
				if !originalTime.Equal(stat.ModTime()) {
					select {
					case ch <- struct{}{}:
					case <-ctx.Done():
					}
					return
				}
			}
		}
	}()
	return ch
}
