// Package upstream implements the upstream streaming client (C4):
// dialing the provider's secure WebSocket stream, sending the
// subscription frame within a hard deadline, decoding inbound frames
// into vessel.Record values, and reconnecting on transport failure. It
// is grounded on the teacher's input/websocket client-mode dial/read/
// reconnect loop (clientConnectLoop, clientReadLoop,
// calculateReconnectDelay), generalized from a generic Discoverable
// input component to this domain's fixed upstream contract.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frye/ais-to-nmea0183/config"
	"github.com/frye/ais-to-nmea0183/errors"
	"github.com/frye/ais-to-nmea0183/metric"
	"github.com/frye/ais-to-nmea0183/pkg/retry"
	"github.com/frye/ais-to-nmea0183/pkg/security"
	"github.com/frye/ais-to-nmea0183/pkg/timestamp"
	"github.com/frye/ais-to-nmea0183/pkg/tlsutil"
	"github.com/frye/ais-to-nmea0183/vessel"
)

// subscribeDeadline is the hard 3-second deadline spec.md §4.4 places on
// sending the subscription frame after the transport opens.
const subscribeDeadline = 3 * time.Second

// initialBackoff and maxBackoff bound the reconnect delay per spec.md §5:
// a fixed 1-second backoff that implementations may extend exponentially
// but must cap at 30 seconds.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// reconnectBackoff governs how the per-attempt delay grows between
// Connecting attempts. Reconnect attempts themselves are unbounded in
// count, per spec.md §5; only the delay between them is capped.
var reconnectBackoff = errors.RetryConfig{
	InitialDelay:  initialBackoff,
	MaxDelay:      maxBackoff,
	BackoffFactor: 2,
}

// dialRetry governs the quick, bounded retries dial() runs against a
// single Connecting attempt before giving up and letting run() fall
// back to the slower, spec-mandated reconnect backoff.
var dialRetry = errors.RetryConfig{
	MaxRetries:    2,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      1 * time.Second,
	BackoffFactor: 2,
}

// stopGrace is the 1-second grace spec.md §4.4 gives an in-flight receive
// to honor cancellation.
const stopGrace = 1 * time.Second

// Client is the upstream stream client. It implements
// component.LifecycleComponent.
type Client struct {
	name   string
	logger *slog.Logger

	streamURL string
	apiKey    string
	security  security.ClientTLSConfig

	metrics *metric.Metrics

	onRecord func(*vessel.Record)

	bboxMu sync.RWMutex
	bbox   config.BoundingBox

	stateMu   sync.RWMutex
	state     State
	startedAt time.Time

	connMu sync.Mutex
	conn   *websocket.Conn

	received     atomic.Int64
	decodeErrors atomic.Int64
	lastActivity atomic.Pointer[time.Time]
	lastErrorMu  sync.RWMutex
	lastError    error
	errorCount   atomic.Int32

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures optional Client behavior at construction.
type Option func(*Client)

// WithMetrics wires the gateway-wide metrics so connection status,
// subscribe RTT, and reconnect counts are observable.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger overrides the fallback slog.Default()-derived logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTLS configures the client-side TLS settings used to dial a wss://
// stream URL, including optional mTLS.
func WithTLS(cfg security.ClientTLSConfig) Option {
	return func(c *Client) { c.security = cfg }
}

// New constructs an upstream Client. onRecord is invoked once per
// successfully decoded vessel.Record, in upstream arrival order, from the
// client's single receive goroutine — callers must not block in it for
// long, since spec.md §5 places no backpressure between C4 and its
// consumer.
func New(name, streamURL, apiKey string, onRecord func(*vessel.Record), opts ...Option) *Client {
	c := &Client{
		name:      name,
		streamURL: streamURL,
		apiKey:    apiKey,
		onRecord:  onRecord,
		state:     Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", name)
	}
	return c
}

// SetBoundingBox updates the geographic filter used on the next (re)dial.
// It does not interrupt an in-flight connection; spec.md §4.7 assigns
// that restart behavior to the service controller's
// replace_bounding_box operation, not to the client itself.
func (c *Client) SetBoundingBox(bbox config.BoundingBox) {
	c.bboxMu.Lock()
	c.bbox = bbox
	c.bboxMu.Unlock()
}

func (c *Client) boundingBox() config.BoundingBox {
	c.bboxMu.RLock()
	defer c.bboxMu.RUnlock()
	return c.bbox
}

// StartWithBoundingBox is spec.md §4.4's literal start(bbox) → bool
// operation: it sets the filter and starts the client, reporting success
// as a boolean instead of an error, for callers following the spec's
// interface directly rather than component.LifecycleComponent.
func (c *Client) StartWithBoundingBox(ctx context.Context, bbox config.BoundingBox) bool {
	c.SetBoundingBox(bbox)
	return c.Start(ctx) == nil
}

// Initialize satisfies component.LifecycleComponent. The client has no
// setup to perform before Start beyond what New already did.
func (c *Client) Initialize() error {
	return nil
}

// Start begins the Idle→Connecting→Subscribing→Receiving state machine
// in a background goroutine and returns immediately.
func (c *Client) Start(ctx context.Context) error {
	c.stateMu.Lock()
	if c.state != Idle {
		c.stateMu.Unlock()
		return nil
	}
	c.startedAt = time.Now()
	c.stateMu.Unlock()

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go c.run(ctx)
	return nil
}

// Stop requests a cooperative shutdown and waits up to timeout for the
// run loop to reach Idle.
func (c *Client) Stop(timeout time.Duration) error {
	c.stateMu.RLock()
	state := c.state
	stopCh, doneCh := c.stopCh, c.doneCh
	c.stateMu.RUnlock()

	if state == Idle || stopCh == nil {
		return nil
	}

	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("timed out after %s", timeout), "upstream.Client", "Stop", "wait for run loop exit")
	}
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	c.logger.Debug("state transition", "state", s.String())
}

func (c *Client) currentState() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// run drives the full state machine until stopCh is closed.
func (c *Client) run(ctx context.Context) {
	defer close(c.doneCh)
	attempt := 0

	for {
		select {
		case <-c.stopCh:
			c.setState(Idle)
			return
		case <-ctx.Done():
			c.setState(Idle)
			return
		default:
		}

		c.setState(Connecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.recordFailure(err, "dial")
			if c.giveUpReconnecting(err) {
				return
			}
			if c.waitBackoff(ctx, reconnectBackoff.BackoffDelay(attempt)) {
				c.setState(Idle)
				return
			}
			attempt++
			continue
		}

		c.setState(Subscribing)
		if err := c.subscribe(conn); err != nil {
			c.recordFailure(err, "subscribe")
			_ = conn.Close()
			if c.giveUpReconnecting(err) {
				return
			}
			if c.waitBackoff(ctx, reconnectBackoff.BackoffDelay(attempt)) {
				c.setState(Idle)
				return
			}
			attempt++
			continue
		}

		// A successful subscribe resets the backoff; the next failure
		// starts the escalation fresh, per spec.md §5's "fixed 1 second"
		// baseline.
		attempt = 0
		c.setState(Receiving)
		if c.metrics != nil {
			c.metrics.RecordUpstreamStatus(true)
		}

		closing := c.receiveLoop(ctx, conn)
		_ = conn.Close()
		if c.metrics != nil {
			c.metrics.RecordUpstreamStatus(false)
		}

		if closing {
			c.setState(Idle)
			return
		}

		if c.waitBackoff(ctx, reconnectBackoff.BackoffDelay(attempt)) {
			c.setState(Idle)
			return
		}
		attempt++
	}
}

// giveUpReconnecting reports whether err is classified fatal, in which
// case retrying is pointless (a bad TLS config or malformed subscription
// frame will not heal itself on the next attempt) and the client stops
// rather than backing off forever.
func (c *Client) giveUpReconnecting(err error) bool {
	if !errors.IsFatal(err) {
		return false
	}
	c.logger.Error("upstream error is not retryable, stopping reconnect loop", "error", err)
	c.setState(Idle)
	return true
}

// dial opens the transport, retrying transient failures a few times in
// quick succession before surfacing an error to run()'s slower,
// spec-mandated reconnect backoff. A fatal TLS configuration error is
// marked non-retryable so the quick loop gives up immediately instead
// of spending all its attempts on a failure that cannot self-heal.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	return retry.DoWithResult(ctx, dialRetry.ToRetryConfig(), func() (*websocket.Conn, error) {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(c.security)
		if err != nil {
			return nil, retry.NonRetryable(errors.WrapFatal(err, "upstream.Client", "dial", "build TLS config"))
		}

		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  tlsConfig,
		}
		conn, _, err := dialer.DialContext(ctx, c.streamURL, nil)
		if err != nil {
			return nil, errors.WrapTransient(err, "upstream.Client", "dial", "open transport")
		}
		return conn, nil
	})
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	frame := newSubscriptionFrame(c.apiKey, c.boundingBox())
	payload, err := json.Marshal(frame)
	if err != nil {
		return errors.WrapFatal(err, "upstream.Client", "subscribe", "marshal subscription frame")
	}

	start := time.Now()
	if err := conn.SetWriteDeadline(start.Add(subscribeDeadline)); err != nil {
		return errors.WrapTransient(err, "upstream.Client", "subscribe", "set write deadline")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.WrapTransient(err, "upstream.Client", "subscribe", "send subscription frame")
	}
	if c.metrics != nil {
		c.metrics.RecordUpstreamRTT(time.Since(start))
	}
	return conn.SetWriteDeadline(time.Time{})
}

// receiveLoop reads frames until the transport fails or stop() is
// called. It returns true if the exit was a cooperative stop, false if
// it was a transport failure that should reconnect. gorilla/websocket's
// ReadMessage already reassembles fragmented frames into one complete
// message, satisfying spec.md §4.4's "partial frames must be buffered
// until end-of-frame" without additional buffering here.
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn) bool {
	type readResult struct {
		data []byte
		err  error
	}

	results := make(chan readResult, 1)

	for {
		go func() {
			_, data, err := conn.ReadMessage()
			results <- readResult{data: data, err: err}
		}()

		select {
		case <-c.stopCh:
			c.setState(Closing)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-results:
			case <-time.After(stopGrace):
			}
			return true

		case <-ctx.Done():
			return true

		case res := <-results:
			if res.err != nil {
				c.recordFailure(res.err, "receive")
				return false
			}
			c.handleFrame(res.data)
		}
	}
}

func (c *Client) handleFrame(frame []byte) {
	// Round-trip through millisecond precision so every record's
	// ObservedAt carries the same resolution regardless of the host
	// clock's native precision.
	now := timestamp.FromUnixMs(timestamp.ToUnixMs(time.Now()))
	c.lastActivity.Store(&now)

	rec, _, err := vessel.Decode(frame, now)
	if err != nil {
		if err == vessel.ErrIgnored {
			return
		}
		c.decodeErrors.Add(1)
		c.logger.Debug("discarding undecodable frame", "error", err)
		return
	}

	c.received.Add(1)
	if c.onRecord != nil {
		c.onRecord(rec)
	}
}

func (c *Client) recordFailure(err error, op string) {
	c.lastErrorMu.Lock()
	c.lastError = err
	c.lastErrorMu.Unlock()
	c.errorCount.Add(1)
	c.setState(Failed)
	if c.metrics != nil {
		c.metrics.RecordUpstreamReconnect()
	}
	c.logger.Warn("upstream transport failure, will reconnect", "operation", op, "error", err)
}

// waitBackoff sleeps for delay, honoring both stop and context
// cancellation. It returns true if the wait was interrupted by a stop
// request rather than expiring normally.
func (c *Client) waitBackoff(ctx context.Context, delay time.Duration) bool {
	if c.metrics != nil {
		c.metrics.RecordUpstreamBackoff(delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-c.stopCh:
		return true
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

