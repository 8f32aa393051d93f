package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/watch2earn/cinema-server/internal/repository/events"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

type message struct {
	queue string
	body  []byte
}

// Publisher buffers events in memory and ships them from a single worker, so
// callers holding room locks never wait on the broker.
type Publisher struct {
	url    string
	queue  chan message
	logger *slog.Logger
	dial   func(url string) (*amqp.Connection, error)
}

func NewPublisher(url string, bufferSize int, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:    url,
		queue:  make(chan message, bufferSize),
		logger: logger,
		dial:   amqp.Dial,
	}
}

func (p *Publisher) PublishVotingClosed(ctx context.Context, event *events.VotingClosedEvent) {
	p.enqueue(ctx, events.VotingClosedQueue, event)
}

func (p *Publisher) PublishRoomClosed(ctx context.Context, event *events.RoomClosedEvent) {
	p.enqueue(ctx, events.RoomClosedQueue, event)
}

func (p *Publisher) Pending() int {
	return len(p.queue)
}

func (p *Publisher) enqueue(ctx context.Context, queue string, event any) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to marshal event", "queue", queue, "error", err)
		return
	}

	select {
	case p.queue <- message{queue: queue, body: body}:
	default:
		p.logger.WarnContext(ctx, "event buffer full, dropping event", "queue", queue)
	}
}

// Run keeps a broker connection alive and drains the buffer until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := p.dial(p.url)
		if err != nil {
			p.logger.WarnContext(ctx, "failed to dial broker", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}

			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		err = p.publishLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		p.logger.WarnContext(ctx, "publish loop ended, reconnecting", "error", err)
	}
}

func (p *Publisher) publishLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	for _, queue := range []string{events.VotingClosedQueue, events.RoomClosedQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			p.flush(ch)
			return nil
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case msg := <-p.queue:
			if err := p.publish(ctx, ch, msg); err != nil {
				// put it back so the next connection retries it
				select {
				case p.queue <- msg:
				default:
				}

				return err
			}
		}
	}
}

func (p *Publisher) flush(ch *amqp.Channel) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case msg := <-p.queue:
			if err := p.publish(ctx, ch, msg); err != nil {
				p.logger.Warn("failed to flush event", "queue", msg.queue, "error", err)
				return
			}
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ch *amqp.Channel, msg message) error {
	return ch.PublishWithContext(ctx, "", msg.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         msg.body,
	})
}
