package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"zerocode-chat/internal/model"
	"zerocode-chat/internal/pkg/logging"
	"zerocode-chat/internal/platform/rabbitmq"
)

const defaultRetryDelay = 2 * time.Second

var errMalformedEnvelope = errors.New("malformed archive envelope")

type ArchiveRepository interface {
	CreateBatch(messages []model.ArchivedMessage) error
}

// ArchiveWorker drains the archive queue into MySQL.
type ArchiveWorker struct {
	conn      *amqp.Connection
	repo      ArchiveRepository
	queueName string
	logger    zerolog.Logger

	// retryDelay spaces out the single redelivery of a failed message.
	retryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewArchiveWorker(conn *amqp.Connection, repo ArchiveRepository, queueName string) *ArchiveWorker {
	return &ArchiveWorker{
		conn:       conn,
		repo:       repo,
		queueName:  queueName,
		retryDelay: defaultRetryDelay,
		logger:     logging.Component("archive_worker").With().Str("queue", queueName).Logger(),
	}
}

func (w *ArchiveWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn().Msg("delivery channel closed")
					return
				}
				w.process(workerCtx, d)
			}
		}
	}()

	w.logger.Info().Msg("archive worker started")
	return nil
}

// process settles one delivery. A store failure is requeued once, after retryDelay;
// a redelivered message that fails again is dropped, as is a malformed payload.
func (w *ArchiveWorker) process(ctx context.Context, d amqp.Delivery) {
	err := w.handle(d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	requeue := !errors.Is(err, errMalformedEnvelope) && !d.Redelivered
	w.logger.Error().Err(err).Bool("redelivered", d.Redelivered).Bool("requeue", requeue).Msg("archive delivery failed")
	if requeue {
		// Interrupted by shutdown, the message still goes back to the broker.
		_ = sleepWithContext(ctx, w.retryDelay)
	}
	_ = d.Nack(false, requeue)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *ArchiveWorker) handle(body []byte) error {
	var envelope model.ArchiveEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}
	if envelope.OwnerID == "" {
		return fmt.Errorf("%w: missing owner", errMalformedEnvelope)
	}
	return w.repo.CreateBatch(envelope.Rows())
}

func (w *ArchiveWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
