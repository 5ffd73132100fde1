package stream

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
)

const (
	subscriberQueueSize = 10
	subscriberGetTimeout = 30 * time.Second
	graceTimeout         = 30 * time.Second
	healthProbeTimeout   = 50 * time.Millisecond
)

// Dialer opens the upstream frame connection to a device's camera socket.
type Dialer func(ctx context.Context) (net.Conn, error)

// Decoder unwraps a frame's on-wire envelope into a raw JPEG payload. The
// default decoder is the identity function.
type Decoder func(raw []byte) ([]byte, error)

type subscriber struct {
	id    string
	queue chan []byte
}

// Manager owns one upstream frame connection and fans it out to any
// number of concurrent subscribers.
type Manager struct {
	mu sync.Mutex

	deviceID string
	dial     Dialer
	decode   Decoder
	logger   eventlog.Logger

	conn               net.Conn
	broadcasterRunning bool
	subscribers        map[string]*subscriber
	graceTimer         *time.Timer
	stopped            bool
}

// NewManager constructs a Manager for one device's stream. dial is called
// lazily, at most once per broadcaster lifetime, by the first subscriber.
func NewManager(deviceID string, dial Dialer, logger eventlog.Logger) *Manager {
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}
	return &Manager{
		deviceID:    deviceID,
		dial:        dial,
		decode:      func(raw []byte) ([]byte, error) { return raw, nil },
		logger:      logger,
		subscribers: make(map[string]*subscriber),
	}
}

// SetDecoder overrides the frame-envelope decoder.
func (m *Manager) SetDecoder(d Decoder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decode = d
}

// Subscribe registers a new subscriber, lazily opening the upstream
// connection and broadcaster if this is the first one, and cancels any
// pending teardown grace timer.
func (m *Manager) Subscribe(ctx context.Context) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		m.stopped = false
	}

	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}

	// While the broadcaster is reading the socket its own read errors detect
	// a dead link; probing then would race that read.
	if m.conn == nil || (!m.broadcasterRunning && !m.probeHealthyLocked()) {
		if m.conn != nil {
			m.conn.Close()
			m.conn = nil
		}
		conn, err := m.dial(ctx)
		if err != nil {
			return nil, err
		}
		m.conn = conn
	}

	if !m.broadcasterRunning {
		m.broadcasterRunning = true
		go m.broadcast(m.conn)
	}

	sub := &subscriber{id: uuid.NewString(), queue: make(chan []byte, subscriberQueueSize)}
	m.subscribers[sub.id] = sub

	m.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		DeviceID:  m.deviceID,
		Category:  eventlog.CategorySubscriber,
		Subscriber: &eventlog.SubscriberEvent{
			SubscriberID: sub.id,
			Joined:       true,
			ActiveCount:  len(m.subscribers),
		},
	})

	return &Subscription{id: sub.id, queue: sub.queue, manager: m}, nil
}

// unsubscribe removes a subscriber. When the last one leaves, a grace
// timer is scheduled before the upstream connection is torn down.
func (m *Manager) unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subscribers, id)

	m.logger.Log(eventlog.Event{
		Timestamp: time.Now(),
		DeviceID:  m.deviceID,
		Category:  eventlog.CategorySubscriber,
		Subscriber: &eventlog.SubscriberEvent{
			SubscriberID: id,
			Joined:       false,
			ActiveCount:  len(m.subscribers),
		},
	})

	if len(m.subscribers) > 0 {
		return
	}

	if m.graceTimer != nil {
		m.graceTimer.Stop()
	}
	m.graceTimer = time.AfterFunc(graceTimeout, m.teardownIfStillIdle)
}

func (m *Manager) teardownIfStillIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subscribers) > 0 {
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.graceTimer = nil
}

// probeHealthyLocked performs a non-blocking liveness probe of the
// upstream connection: a short-deadline 1-byte read. A timeout means the
// connection is idle-but-alive; any other error means it is dead.
func (m *Manager) probeHealthyLocked() bool {
	if m.conn == nil {
		return false
	}
	_ = m.conn.SetReadDeadline(time.Now().Add(healthProbeTimeout))
	defer m.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 1)
	_, err := m.conn.Read(buf)
	if err == nil {
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

// broadcast reads frames from conn until a read error ends it, fanning
// each one out to every current subscriber non-blockingly.
func (m *Manager) broadcast(conn net.Conn) {
	defer func() {
		m.mu.Lock()
		m.broadcasterRunning = false
		if m.conn == conn {
			m.conn.Close()
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	for {
		raw, err := readFrame(conn, DefaultMaxFrameSize)
		if err != nil {
			return
		}

		jpeg, err := m.decodeLocked(raw)
		if err != nil {
			continue
		}
		part := mjpegPart(jpeg)

		m.mu.Lock()
		for _, sub := range m.subscribers {
			select {
			case sub.queue <- part:
			default:
				// full queue: slow-client isolation, drop this frame for them
			}
		}
		m.mu.Unlock()
	}
}

func (m *Manager) decodeLocked(raw []byte) ([]byte, error) {
	m.mu.Lock()
	decode := m.decode
	m.mu.Unlock()
	return decode(raw)
}

// Stop closes the upstream connection and signals end-of-stream to every
// current subscriber.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	for _, sub := range m.subscribers {
		close(sub.queue)
	}
	m.subscribers = make(map[string]*subscriber)
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// SubscriberCount reports the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

var _ io.Closer = (*Subscription)(nil)
