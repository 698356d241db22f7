package orchestration

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/querysynth/core"
)

// ProgressEvent is emitted once per loop iteration, and once more when a
// task is cancelled.
type ProgressEvent struct {
	TaskID       string    `json:"task_id"`
	Iteration    int       `json:"iteration"`
	State        State     `json:"state"`
	Action       string    `json:"action,omitempty"`
	FixAttempts  int       `json:"fix_attempts"`
	ErrorSummary string    `json:"error_summary,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProgressCallback receives progress events. Callbacks run on the task's
// goroutine and should return quickly.
type ProgressCallback func(ProgressEvent)

// progressHub holds callbacks copy-on-write so concurrent tasks read the
// list without locking.
type progressHub struct {
	callbacks atomic.Pointer[[]ProgressCallback]
}

func (h *progressHub) add(cb ProgressCallback) {
	for {
		old := h.callbacks.Load()
		var next []ProgressCallback
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, cb)
		if h.callbacks.CompareAndSwap(old, &next) {
			return
		}
	}
}

// emit delivers ev to every callback. A panicking callback is logged and
// does not affect the task or the other callbacks.
func (h *progressHub) emit(ev ProgressEvent, logger core.Logger) {
	cbs := h.callbacks.Load()
	if cbs == nil {
		return
	}
	for _, cb := range *cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("Progress callback panicked", map[string]interface{}{
						"operation": "emit_progress",
						"task_id":   ev.TaskID,
						"iteration": ev.Iteration,
						"panic":     fmt.Sprintf("%v", r),
					})
				}
			}()
			cb(ev)
		}()
	}
}
