package workers

import (
	"context"
	"log"
	"time"

	"gramscout/storage"
)

// HeartbeatWorker stamps the ops store on an interval so the TUI can tell a
// live daemon from a dead one.
type HeartbeatWorker struct {
	ops       *storage.OpsStore
	component string
}

func NewHeartbeatWorker(ops *storage.OpsStore, component string) *HeartbeatWorker {
	return &HeartbeatWorker{ops: ops, component: component}
}

func (w *HeartbeatWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.beat()
	for {
		select {
		case <-ctx.Done():
			log.Println("Heartbeat worker stopping")
			return
		case <-ticker.C:
			w.beat()
		}
	}
}

func (w *HeartbeatWorker) beat() {
	if err := w.ops.Heartbeat(w.component); err != nil {
		log.Printf("Heartbeat: write failed: %v", err)
	}
}
