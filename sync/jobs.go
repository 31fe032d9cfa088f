package sync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Task type names for the queue-driven hooks.
const (
	TaskTypeInboundEvent  = "scoresync:event"
	TaskTypeReconcileTick = "scoresync:reconcile"
)

// NewInboundEventTask wraps an inbound event as a queue task.
func NewInboundEventTask(event InboundEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInboundEvent, payload), nil
}

// NewReconcileTickTask is the periodic tick task registered with the
// scheduler.
func NewReconcileTickTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReconcileTick, nil)
}

// Worker binds the two hook handlers to queue tasks. It is run with
// concurrency one so at most one tick is ever in flight.
type Worker struct {
	Handler    EventHandler
	Reconciler ScoreReconciler
}

// Register wires the worker's handlers into a task mux.
func (w Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeInboundEvent, w.ProcessInboundEvent)
	mux.HandleFunc(TaskTypeReconcileTick, w.ProcessReconcileTick)
}

// ProcessInboundEvent handles one queued analytics event. Transport
// failures are logged and consumed: outbound writes are best-effort with
// retry only, so the task is not requeued.
func (w Worker) ProcessInboundEvent(ctx context.Context, t *asynq.Task) error {
	var event InboundEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logrus.WithError(err).Error("malformed inbound event payload")
		return err
	}
	if err := w.Handler.HandleEvent(event, ctx); err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			logrus.WithError(err).Warn("contact upsert abandoned")
			return nil
		}
		return err
	}
	return nil
}

// ProcessReconcileTick handles one scheduled reconciliation tick.
func (w Worker) ProcessReconcileTick(ctx context.Context, _ *asynq.Task) error {
	_, err := w.Reconciler.RunTick(ctx)
	return err
}
