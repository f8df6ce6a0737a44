package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const (
	defaultDialTimeout = 10 * time.Second
	amqpHeartbeat      = 10 * time.Second
)

// ErrReconnecting is returned when another caller is already redialing the
// broker. The event is dropped rather than queued behind the dial.
var ErrReconnecting = errors.New("notify: amqp reconnect in progress")

// AMQPPublisher publishes events as JSON to a direct exchange, using the
// event type as routing key. It reconnects lazily after connection loss.
//
// mu only guards the connection fields. Dialing happens outside the lock
// with the dialing flag set, so a broker that accepts TCP but never answers
// the handshake costs one caller its deadline instead of stalling everyone.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	dialing  bool
	closed   bool
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("notify: amqp url is required")
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = "pothole.reports"
	}

	p := &AMQPPublisher{url: url, exchange: exchange}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	if _, err := p.ensureChannel(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Notify publishes the event. The ctx deadline bounds any reconnect
// handshake; publishing itself is not context aware in streadway/amqp.
func (p *AMQPPublisher) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := p.ensureChannel(ctx)
	if err != nil {
		return err
	}

	routingKey := string(event.Type)
	err = ch.Publish(p.exchange, routingKey, false, false, msg)
	if err != nil && isConnClosedErr(err) {
		p.discard(ch)
		retry, connErr := p.ensureChannel(ctx)
		if connErr != nil {
			return fmt.Errorf("notify: publish: %w (reconnect failed: %v)", err, connErr)
		}
		err = retry.Publish(p.exchange, routingKey, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// ensureChannel returns the live channel, dialing when there is none.
func (p *AMQPPublisher) ensureChannel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, amqp.ErrClosed
	}
	if p.channel != nil && p.conn != nil && !p.conn.IsClosed() {
		ch := p.channel
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing {
		p.mu.Unlock()
		return nil, ErrReconnecting
	}
	p.dialing = true
	p.closeLocked()
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		return nil, err
	}
	if p.closed {
		_ = ch.Close()
		_ = conn.Close()
		return nil, amqp.ErrClosed
	}
	p.conn = conn
	p.channel = ch
	return ch, nil
}

// discard drops ch if it is still the current channel.
func (p *AMQPPublisher) discard(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == ch {
		p.closeLocked()
	}
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.Warn().Err(chErr).Msg("amqp: close channel")
			err = chErr
		}
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.Warn().Err(connErr).Msg("amqp: close connection")
			if err == nil {
				err = connErr
			}
		}
		p.conn = nil
	}
	return err
}

// dial connects with a handshake timeout taken from the ctx deadline. The
// timeout covers both the TCP connect and the AMQP handshake; streadway
// clears the socket deadline once the connection is open.
func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, nil, context.DeadlineExceeded
		}
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: amqpHeartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("notify: amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("notify: amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("notify: declare exchange: %w", err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
