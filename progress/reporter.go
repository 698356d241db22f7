// Package progress publishes synthesis progress events to NATS so other
// processes can follow a long-running task iteration by iteration.
//
// Reporting is best-effort: a NATS server that cannot be reached yields a
// no-op reporter, and a failed publish is counted and logged but never
// surfaces to the synthesis loop.
package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/orchestration"
	"github.com/itsneelabh/querysynth/telemetry"
)

// EventType is the envelope type of every published message
const EventType = "synthesis.progress"

// Publisher is the subset of *nats.Conn the reporter needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope wraps a progress event on the wire
type Envelope struct {
	Type   string                      `json:"type"`
	TaskID string                      `json:"task_id"`
	Event  orchestration.ProgressEvent `json:"event"`
}

// Reporter publishes progress events on <subject>.<task id>.
type Reporter struct {
	publisher Publisher
	conn      *nats.Conn
	subject   string
	noop      bool
	published atomic.Int64
	dropped   atomic.Int64
	logger    core.Logger
}

// NewNATSReporter connects to url. If the connection fails the returned
// reporter is a no-op; it never returns an error.
func NewNATSReporter(url, subject string, logger core.Logger) *Reporter {
	r := &Reporter{subject: subject}
	r.SetLogger(logger)

	nc, err := nats.Connect(url,
		nats.Name("querysynth"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		r.logger.Warn("NATS connection failed, progress reporting disabled", map[string]interface{}{
			"operation": "progress_connect",
			"url":       url,
			"error":     err.Error(),
		})
		r.noop = true
		return r
	}

	r.logger.Info("NATS connected, publishing progress", map[string]interface{}{
		"operation": "progress_connect",
		"subject":   subject + ".*",
	})
	r.conn = nc
	r.publisher = nc
	return r
}

// NewReporter publishes through an existing publisher
func NewReporter(publisher Publisher, subject string, logger core.Logger) *Reporter {
	r := &Reporter{publisher: publisher, subject: subject, noop: publisher == nil}
	r.SetLogger(logger)
	return r
}

// SetLogger sets the logger
func (r *Reporter) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
	} else {
		r.logger = core.ComponentLogger(logger, "querysynth/progress")
	}
}

// Attach registers the reporter as a progress callback of o
func (r *Reporter) Attach(o *orchestration.Orchestrator) {
	o.OnProgress(r.Report)
}

// Enabled reports whether events actually leave the process
func (r *Reporter) Enabled() bool {
	return !r.noop
}

// Report publishes one event.
func (r *Reporter) Report(ev orchestration.ProgressEvent) {
	if r.noop {
		r.logger.Debug("Progress (no-op)", map[string]interface{}{
			"operation": "progress_report",
			"task_id":   ev.TaskID,
			"iteration": ev.Iteration,
			"state":     string(ev.State),
		})
		return
	}

	data, err := json.Marshal(Envelope{Type: EventType, TaskID: ev.TaskID, Event: ev})
	if err != nil {
		r.drop(ev, "marshal", err)
		return
	}
	if err := r.publisher.Publish(SubjectFor(r.subject, ev.TaskID), data); err != nil {
		r.drop(ev, "publish", err)
		return
	}
	r.published.Add(1)
}

func (r *Reporter) drop(ev orchestration.ProgressEvent, reason string, err error) {
	r.dropped.Add(1)
	telemetry.Counter(telemetry.MetricProgressDropped, "reason", reason)
	r.logger.Warn("Progress event dropped", map[string]interface{}{
		"operation": "progress_report",
		"task_id":   ev.TaskID,
		"iteration": ev.Iteration,
		"reason":    reason,
		"error":     err.Error(),
	})
}

// Stats returns how many events were published and dropped
func (r *Reporter) Stats() (published, dropped int64) {
	return r.published.Load(), r.dropped.Load()
}

// Close drains the NATS connection
func (r *Reporter) Close() {
	if r.noop || r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn("NATS drain failed", map[string]interface{}{
			"operation": "progress_close",
			"error":     err.Error(),
		})
	}
}

// SubjectFor returns the subject events of taskID are published on
func SubjectFor(base, taskID string) string {
	return base + "." + taskID
}

// TaskIDFromSubject extracts the task id from "<base>.<task id>"
func TaskIDFromSubject(base, subject string) (string, error) {
	prefix := base + "."
	if !strings.HasPrefix(subject, prefix) {
		return "", fmt.Errorf("subject %q is not under %q", subject, base)
	}
	id := strings.TrimPrefix(subject, prefix)
	if id == "" || strings.Contains(id, ".") {
		return "", fmt.Errorf("subject %q has no single task id segment", subject)
	}
	return id, nil
}

// Decode parses a published message
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode progress envelope: %w", err)
	}
	if env.Type != EventType {
		return nil, fmt.Errorf("unexpected envelope type %q", env.Type)
	}
	return &env, nil
}
