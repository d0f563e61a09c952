package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/resilience"
)

// Queue carries ingestion jobs to a worker queue group and broadcasts
// slot-updated events to every process.
type Queue struct {
	conn          *nats.Conn
	ingestSubject string
	slotSubject   string
	workerGroup   string
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	IngestSubject        string
	SlotSubject          string
	WorkerGroup          string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("lifeforge-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		ingestSubject: defaultString(options.IngestSubject, "rag.documents.ingest"),
		slotSubject:   defaultString(options.SlotSubject, "rag.slots.updated"),
		workerGroup:   defaultString(options.WorkerGroup, "rag-workers"),
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIngestJob(ctx context.Context, job domain.IngestJob) error {
	return q.publishJSON(ctx, q.ingestSubject, job)
}

func (q *Queue) PublishSlotUpdated(ctx context.Context, event domain.SlotUpdated) error {
	return q.publishJSON(ctx, q.slotSubject, event)
}

func (q *Queue) publishJSON(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	call := func(_ context.Context) error {
		return q.conn.Publish(subject, data)
	}

	op := publishOp(subject)
	if q.executor != nil {
		err = q.executor.Execute(ctx, op, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return queueError(op, err)
}

// SubscribeIngestJobs consumes jobs as a member of the worker queue group
// until ctx is done.
func (q *Queue) SubscribeIngestJobs(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error {
	return q.subscribe(ctx, q.ingestSubject, q.workerGroup, ingestJobHandler(handler))
}

// SubscribeSlotUpdates receives every slot-updated event not published by
// instanceID until ctx is done.
func (q *Queue) SubscribeSlotUpdates(ctx context.Context, instanceID string, handler func(context.Context, domain.SlotUpdated) error) error {
	return q.subscribe(ctx, q.slotSubject, "", slotUpdateHandler(instanceID, handler))
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) error {
	callback := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			q.logger.Error("nats_handler_failed", "subject", subject, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, callback)
	} else {
		sub, err = q.conn.Subscribe(subject, callback)
	}
	op := subscribeOp(subject)
	if err != nil {
		return queueError(op, err)
	}

	if err := q.conn.Flush(); err != nil {
		return queueError(op+" flush", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return queueError(op+" drain", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return queueError(op+" flush after drain", err)
	}
	return nil
}

func ingestJobHandler(handler func(context.Context, domain.IngestJob) error) func(context.Context, []byte) error {
	return func(ctx context.Context, data []byte) error {
		var job domain.IngestJob
		if err := json.Unmarshal(data, &job); err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "decode ingest job", err)
		}
		if err := domain.ValidateSlot(job.Slot); err != nil {
			return err
		}
		if job.StorageKey == "" {
			return domain.WrapError(domain.ErrInvalidInput, "decode ingest job", errors.New("storage key is required"))
		}
		return handler(ctx, job)
	}
}

func slotUpdateHandler(instanceID string, handler func(context.Context, domain.SlotUpdated) error) func(context.Context, []byte) error {
	return func(ctx context.Context, data []byte) error {
		var event domain.SlotUpdated
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "decode slot update", err)
		}
		if event.InstanceID == instanceID {
			return nil
		}
		return handler(ctx, event)
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
