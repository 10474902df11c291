package events

import (
	"context"
	"log/slog"

	"rmr/internal/membership/metrics"
	"rmr/internal/membership/models"
	"rmr/pkg/platform/circuit"
)

// LogSink writes events to the structured log. It is the sink when no
// brokers are configured and the fallback while the Kafka circuit is open.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, event models.StatusChanged) error {
	if s.logger == nil {
		return nil
	}
	args := []any{
		"event_id", event.EventID,
		"client_id", event.ClientID,
		"old_active", event.OldActive,
		"new_active", event.NewActive,
	}
	if event.EvidenceDate != nil {
		args = append(args, "evidence_date", event.EvidenceDate.String())
	}
	s.logger.InfoContext(ctx, "membership status changed", args...)
	return nil
}

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// KafkaSink publishes events keyed by client id, so one client's transitions
// stay ordered within a partition.
type KafkaSink struct {
	producer Producer
	breaker  *circuit.Breaker
	fallback Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type KafkaOption func(*KafkaSink)

// WithFallback sets where events go while the circuit is open.
func WithFallback(s Sink) KafkaOption {
	return func(k *KafkaSink) { k.fallback = s }
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *KafkaSink) { k.breaker = b }
}

func WithSinkLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaSink) { k.logger = logger }
}

func WithSinkMetrics(m *metrics.Metrics) KafkaOption {
	return func(k *KafkaSink) { k.metrics = m }
}

func NewKafkaSink(producer Producer, opts ...KafkaOption) *KafkaSink {
	k := &KafkaSink{producer: producer, breaker: circuit.New("status-events")}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KafkaSink) Name() string { return "kafka" }

// Send always tries Kafka first. While the breaker is open a failed send is
// handed to the fallback and reported as delivered; otherwise the error is
// returned so the caller can retry.
func (k *KafkaSink) Send(ctx context.Context, event models.StatusChanged) error {
	value, err := Encode(event)
	if err != nil {
		return err
	}
	headers := map[string]string{
		"event_type": EventType,
		"event_id":   event.EventID.String(),
	}

	err = k.producer.Produce(ctx, string(event.ClientID), value, headers)
	if err == nil {
		if _, change := k.breaker.RecordSuccess(); change.Closed {
			k.metrics.SetBreakerOpen(false)
			k.log(ctx, slog.LevelInfo, "status event producer recovered")
		}
		return nil
	}

	useFallback, change := k.breaker.RecordFailure()
	if change.Opened {
		k.metrics.SetBreakerOpen(true)
		k.log(ctx, slog.LevelWarn, "status event producer circuit opened", "error", err)
	}
	if useFallback && k.fallback != nil {
		k.metrics.IncEvent(k.Name(), "fallback")
		return k.fallback.Send(ctx, event)
	}
	return err
}

func (k *KafkaSink) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if k.logger != nil {
		k.logger.Log(ctx, level, msg, append(args, "breaker", k.breaker.Name())...)
	}
}
