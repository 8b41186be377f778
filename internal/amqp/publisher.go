package amqp

import (
	"context"
	"errors"

	"fintrack/internal/core"
)

type messagePublisher interface {
	PublishTransactionSync(ctx context.Context, msg *TransactionSyncMessage) error
}

// Publisher sends one message per transaction. A message the broker took is
// an accepted transaction.
type Publisher struct {
	client messagePublisher
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish stops at the first failure once the circuit breaker opens; rows
// after it are left for the next pass.
func (p *Publisher) Publish(ctx context.Context, list []core.Transaction) ([]string, error) {
	accepted := make([]string, 0, len(list))
	var errs []error
	for _, t := range list {
		err := p.client.PublishTransactionSync(ctx, NewTransactionSyncMessage(t))
		if err == nil {
			accepted = append(accepted, t.ID)
			continue
		}
		errs = append(errs, err)
		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
			break
		}
	}
	return accepted, errors.Join(errs...)
}
