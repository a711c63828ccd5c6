package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/frame"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/tracing"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

var (
	// ErrClosed is returned by Post after the connection is gone
	ErrClosed = errors.New("bridge connection closed")
	// ErrBufferFull is returned when the writer cannot keep up
	ErrBufferFull = errors.New("bridge send buffer full")
)

// DialOptions configures a Client
type DialOptions struct {
	// Receive is called for every inbound envelope
	Receive func(channel.Envelope)
	// Scheduler, when set, runs Receive on the frame loop instead of the
	// connection's reader goroutine
	Scheduler frame.Scheduler
	Header    http.Header
	Dialer    *websocket.Dialer
	// PingInterval keeps idle connections alive; zero disables pings
	PingInterval time.Duration
	Logger       *logging.Logger
}

// Client is one window's connection to a bridge session. It implements
// channel.Transport.
type Client struct {
	conn    *websocket.Conn
	opts    DialOptions
	logger  *logging.Logger
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	errMu   sync.Mutex
	lastErr error
}

var _ channel.Transport = (*Client)(nil)

// Dial joins the bridge session at rawURL (see URL)
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	tracing.InjectHeader(ctx, header)
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Client{
		conn:   conn,
		opts:   opts,
		logger: logger.Named("bridge"),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Post wraps data in a bridge frame addressed to targetOrigin. It never
// blocks.
func (c *Client) Post(data []byte, targetOrigin string) error {
	raw, err := EncodeFrame(Frame{TargetOrigin: targetOrigin, Data: append([]byte(nil), data...)})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, nil after a local Close
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Close ends the connection and waits for its goroutines
func (c *Client) Close() error {
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

func (c *Client) shutdown(cause error) {
	c.once.Do(func() {
		c.errMu.Lock()
		c.lastErr = cause
		c.errMu.Unlock()
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("bridge read ended", zap.Error(err))
				}
			}
			c.shutdown(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		f, err := DecodeFrame(raw)
		if err != nil {
			c.logger.Debug("bridge frame dropped", zap.Error(err))
			continue
		}
		c.deliver(channel.Envelope{Origin: f.Origin, Source: f.Source, Data: f.Data})
	}
}

func (c *Client) deliver(env channel.Envelope) {
	if c.opts.Receive == nil {
		return
	}
	if c.opts.Scheduler != nil {
		receive := c.opts.Receive
		c.opts.Scheduler.Post(func() { receive(env) })
		return
	}
	c.opts.Receive(env)
}

func (c *Client) writeLoop() {
	defer c.wg.Done()

	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown(err)
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}
