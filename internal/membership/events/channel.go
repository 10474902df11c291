package events

import (
	"context"
	"log/slog"

	"rmr/internal/membership/metrics"
	"rmr/internal/membership/models"
)

const defaultBuffer = 256

// ChannelPublisher queues events for a Worker. Publish blocks while the
// buffer is full and gives up when ctx ends.
type ChannelPublisher struct {
	ch chan models.StatusChanged
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &ChannelPublisher{ch: make(chan models.StatusChanged, buffer)}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event models.StatusChanged) error {
	select {
	case p.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox is the receive side handed to a Worker.
func (p *ChannelPublisher) Inbox() <-chan models.StatusChanged {
	return p.ch
}

// Worker forwards queued events to a sink. A failed delivery is logged and
// counted; it never stops the worker.
type Worker struct {
	sink    Sink
	inbox   <-chan models.StatusChanged
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewWorker(sink Sink, inbox <-chan models.StatusChanged, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger, metrics: m}
}

// Run delivers until ctx is done, then returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event models.StatusChanged) {
	if err := w.sink.Send(ctx, event); err != nil {
		w.metrics.IncEvent(w.sink.Name(), "error")
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "status event delivery failed",
				"event_id", event.EventID, "client_id", event.ClientID, "sink", w.sink.Name(), "error", err)
		}
		return
	}
	w.metrics.IncEvent(w.sink.Name(), "sent")
}
