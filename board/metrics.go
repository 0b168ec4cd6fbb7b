package board

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "boardsync/board"

type commitMetrics struct {
	logger        *log.Logger
	start         time.Time
	span          trace.Span
	gateDuration  time.Duration
	applyDuration time.Duration
	taskID        string
	fromStatus    string
	toStatus      string
	outcome       string
}

func newCommitMetrics(ctx context.Context, logger *log.Logger) (*commitMetrics, context.Context) {
	m := &commitMetrics{logger: logger, start: time.Now()}
	ctx, m.span = otel.Tracer(tracerName).Start(ctx, "board.drag.commit")
	return m, ctx
}

func (m *commitMetrics) ObserveGate(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.gateDuration = duration
}

func (m *commitMetrics) ObserveApply(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.applyDuration = duration
}

func (m *commitMetrics) SetMove(taskID, from, to string) {
	m.taskID = taskID
	m.fromStatus = from
	m.toStatus = to
}

func (m *commitMetrics) SetOutcome(outcome string) {
	if outcome == "" {
		return
	}
	m.outcome = outcome
}

func (m *commitMetrics) Log(err error) {
	if m == nil {
		return
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("board.task_id", m.taskID),
			attribute.String("board.from_status", m.fromStatus),
			attribute.String("board.to_status", m.toStatus),
			attribute.String("board.outcome", m.outcome),
		)
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, m.outcome)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"op":       "drag.commit",
		"outcome":  m.outcome,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.taskID != "" {
		fields["task_id"] = m.taskID
	}
	if m.fromStatus != "" {
		fields["from_status"] = m.fromStatus
	}
	if m.toStatus != "" {
		fields["to_status"] = m.toStatus
	}
	if m.gateDuration > 0 {
		fields["gate_ms"] = durationToMillis(m.gateDuration)
	}
	if m.applyDuration > 0 {
		fields["apply_ms"] = durationToMillis(m.applyDuration)
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("board.commit.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
