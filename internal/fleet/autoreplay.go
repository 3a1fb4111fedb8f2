package fleet

import (
	"context"
	"log"
	"sync"

	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/metrics"
)

// SessionUpdater transitions sessions on the backend.
type SessionUpdater interface {
	UpdateSessionStatus(ctx context.Context, id, status string) (*backend.Session, error)
}

// AutoReplayer starts replay sessions once the backend marks them READY.
// Each session id is started at most once; a failed start is retried on
// the next reconciliation pass.
type AutoReplayer struct {
	updater   SessionUpdater
	onSuccess func(ctx context.Context, session backend.Session)
	onFailure func(session backend.Session, err error)
	logger    *log.Logger

	mu     sync.Mutex
	played map[string]struct{}
	wg     sync.WaitGroup
}

// NewAutoReplayer creates a reconciler. Callbacks may be nil.
func NewAutoReplayer(
	updater SessionUpdater,
	onSuccess func(ctx context.Context, session backend.Session),
	onFailure func(session backend.Session, err error),
	logger *log.Logger,
) *AutoReplayer {
	if logger == nil {
		logger = log.Default()
	}
	return &AutoReplayer{
		updater:   updater,
		onSuccess: onSuccess,
		onFailure: onFailure,
		logger:    logger,
		played:    make(map[string]struct{}),
	}
}

// Reconcile claims every eligible session and starts it in the background.
// It returns the claimed session ids.
func (a *AutoReplayer) Reconcile(ctx context.Context, sessions []backend.Session) []string {
	var claimed []backend.Session

	a.mu.Lock()
	for _, s := range sessions {
		if !s.IsReplay || s.Status != backend.StatusReady {
			continue
		}
		if _, done := a.played[s.ID]; done {
			continue
		}
		a.played[s.ID] = struct{}{}
		claimed = append(claimed, s)
	}
	a.mu.Unlock()

	ids := make([]string, 0, len(claimed))
	for _, s := range claimed {
		ids = append(ids, s.ID)
		a.wg.Add(1)
		go a.start(ctx, s)
	}
	return ids
}

func (a *AutoReplayer) start(ctx context.Context, session backend.Session) {
	defer a.wg.Done()

	a.logger.Printf("AUTOREPLAY: starting replay session %s on device %s", session.ID, session.DeviceID)
	if _, err := a.updater.UpdateSessionStatus(ctx, session.ID, backend.StatusPlaying); err != nil {
		a.mu.Lock()
		delete(a.played, session.ID)
		a.mu.Unlock()

		metrics.AutoReplays.WithLabelValues("failed").Inc()
		a.logger.Printf("AUTOREPLAY: failed to start session %s: %v", session.ID, err)
		if a.onFailure != nil {
			a.onFailure(session, err)
		}
		return
	}

	metrics.AutoReplays.WithLabelValues("started").Inc()
	if a.onSuccess != nil {
		a.onSuccess(ctx, session)
	}
}

// Played reports whether id has been claimed.
func (a *AutoReplayer) Played(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.played[id]
	return ok
}

// Wait blocks until in-flight starts finish.
func (a *AutoReplayer) Wait() {
	a.wg.Wait()
}

func autoReplayStartedToast(session backend.Session) Toast {
	name := "device"
	if session.Device != nil && session.Device.Title != "" {
		name = session.Device.Title
	}
	return info("Replay started", "Auto-playing replay session on "+name)
}

func autoReplayFailedToast() Toast {
	return failure("Auto-play failed", "Failed to automatically start replay session")
}
