package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/infrastructure/resilience"
)

// publishOp names a publish in retry logs, breaker metrics and errors.
func publishOp(subject string) string { return "publish " + subject }

func subscribeOp(subject string) string { return "subscribe " + subject }

// isConnectionError reports failures that clear once the client reconnects.
func isConnectionError(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, nats.ErrDisconnected)
}

// classifyPublishError decides retries and breaker accounting for a failed
// job or slot-update publish.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrConnectionDraining):
		// The process is shutting down.
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrMaxPayload):
		// The message is too big for the server; the server itself is fine.
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isConnectionError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// queueError maps a NATS failure onto domain kinds. Connection loss and an
// open circuit are temporary; an oversized message is invalid input.
func queueError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case errors.Is(err, nats.ErrMaxPayload):
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	case resilience.IsCircuitOpen(err), isConnectionError(err):
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
