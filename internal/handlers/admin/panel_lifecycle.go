package admin

import (
	"context"
	"time"
)

func (a *Admin) startPanelCleanup(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(panelCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.cleanupExpiredPanels(ctx)
			}
		}
	}()
}

func (a *Admin) cleanupExpiredPanels(ctx context.Context) {
	before := a.now().Add(-panelSessionTTL)
	sessions, err := a.store.ListAdminPanelSessions(ctx)
	if err != nil {
		a.getLogEntry().WithField("error", err.Error()).Error("failed to load panel sessions")
		return
	}
	for _, session := range sessions {
		if !session.UpdatedAt.Before(before) {
			continue
		}
		if err := a.closePanelSession(ctx, session); err != nil {
			a.getLogEntry().WithField("error", err.Error()).Warn("failed to drop expired panel session")
		}
	}
}
