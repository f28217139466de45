// Package broker is the AMQP-backed RPC port implementation: every
// client Call declares a private, auto-delete reply queue, publishes
// the request to the target routing key, and awaits exactly one
// correlated reply before the queue is torn down. The server side
// declares one durable queue per route with a dead-letter exchange,
// dispatching each consumed message to the handler registered for its
// route.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

// DLX is the dead-letter exchange every durable route queue attaches to.
const DLX = "rpc.dlx"

type Attributes struct {
	Vhost       string
	MaxChannels int
	TimeoutSecs int
}

type Client struct {
	conn  *amqp.Connection
	attrs Attributes
}

func DialClient(url string, attrs Attributes) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, apperr.Wrap(apperr.LowLevelConn, "dial amqp", err)
	}
	return &Client{conn: conn, attrs: attrs}, nil
}

func (c *Client) SupportsRetry() bool { return true }

func (c *Client) Close() error { return c.conn.Close() }

// Conn exposes the underlying connection so a caller can build a Server
// sharing it instead of dialing twice.
func (c *Client) Conn() *amqp.Connection { return c.conn }

func (c *Client) Call(ctx context.Context, req rpcport.ClientRequest, ttl time.Duration) (rpcport.Reply, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return rpcport.Reply{}, apperr.Wrap(apperr.LowLevelConn, "open channel", err)
	}
	defer ch.Close()

	replyQ, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return rpcport.Reply{}, apperr.Wrap(apperr.LowLevelConn, "declare reply queue", err)
	}

	msgs, err := ch.Consume(replyQ.Name, "", true, true, false, false, nil)
	if err != nil {
		return rpcport.Reply{}, apperr.Wrap(apperr.LowLevelConn, "consume reply queue", err)
	}

	corrID := fmt.Sprintf("%d-%d", req.UsrID, req.Time.UnixNano())
	err = ch.PublishWithContext(ctx, "", req.Route, false, false, amqp.Publishing{
		ContentType:   "application/octet-stream",
		CorrelationId: corrID,
		ReplyTo:       replyQ.Name,
		Body:          req.Message,
		Timestamp:     req.Time,
	})
	if err != nil {
		return rpcport.Reply{}, apperr.Wrap(apperr.RpcPublishFailure, "publish "+req.Route, err)
	}

	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	timer := time.NewTimer(ttl)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return rpcport.Reply{}, apperr.Wrap(apperr.ReplyTimeout, "context canceled awaiting reply", ctx.Err())
		case <-timer.C:
			return rpcport.Reply{}, apperr.New(apperr.ReplyTimeout, "timeout")
		case d, ok := <-msgs:
			if !ok {
				return rpcport.Reply{}, apperr.New(apperr.LowLevelConn, "reply channel closed")
			}
			if d.CorrelationId != corrID {
				continue // stray reply from a previous call on a reused channel
			}
			return rpcport.Reply{Message: d.Body}, nil
		}
	}
}

// Server consumes one durable queue per registered route.
type Server struct {
	conn     *amqp.Connection
	mu       sync.RWMutex
	handlers map[string]rpcport.Handler
}

func NewServer(conn *amqp.Connection) *Server {
	return &Server{conn: conn, handlers: make(map[string]rpcport.Handler)}
}

func (s *Server) Register(route string, h rpcport.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[route] = h
}

func (s *Server) Serve(ctx context.Context) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return apperr.Wrap(apperr.LowLevelConn, "open channel", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(DLX, "fanout", true, false, false, false, nil); err != nil {
		return apperr.Wrap(apperr.LowLevelConn, "declare dlx", err)
	}

	s.mu.RLock()
	routes := make([]string, 0, len(s.handlers))
	for r := range s.handlers {
		routes = append(routes, r)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, route := range routes {
		q, err := ch.QueueDeclare(route, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": DLX,
		})
		if err != nil {
			return apperr.Wrap(apperr.LowLevelConn, "declare queue "+route, err)
		}
		msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			return apperr.Wrap(apperr.LowLevelConn, "consume "+route, err)
		}
		wg.Add(1)
		go s.consumeLoop(ctx, &wg, route, msgs, ch)
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (s *Server) consumeLoop(ctx context.Context, wg *sync.WaitGroup, route string, msgs <-chan amqp.Delivery, ch *amqp.Channel) {
	defer wg.Done()
	s.mu.RLock()
	h := s.handlers[route]
	s.mu.RUnlock()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			reply, err := h(ctx, rpcport.ClientRequest{Route: route, Message: d.Body, Time: d.Timestamp})
			if err != nil {
				d.Nack(false, false)
				continue
			}
			if d.ReplyTo != "" {
				_ = ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
					CorrelationId: d.CorrelationId,
					Body:          reply.Message,
				})
			}
			d.Ack(false)
		}
	}
}
