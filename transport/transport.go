// Package transport is the idiomatic Go rendition of spec.md §4.E's
// readiness-based event loop. Go's netpoller already multiplexes
// socket readiness under the hood, so rather than hand-roll an epoll
// loop this runs one goroutine per connection and funnels their
// output through a pair of typed, ordered event channels — the same
// AddPeer/Data/Disconnect contract the spec describes, translated
// onto goroutines instead of readiness callbacks.
package transport

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// EventKind tags a Transport event.
type EventKind int

const (
	EventAddPeer EventKind = iota
	EventData
	EventDisconnect
)

// Event is a notification flowing from the transport to its consumer
// (the orchestrator): a peer connected, bytes arrived, or a peer
// dropped.
type Event struct {
	Kind EventKind
	Addr string
	Data []byte
}

// Command is a request flowing into the transport: dial a new peer,
// send bytes to one already connected, or drop one. Conn is set only
// when an EventAddPeer command is carrying an already-established
// connection (a completed outbound dial, or one handed in via Adopt)
// back to the Run goroutine for registration.
type Command struct {
	Kind EventKind
	Addr string
	Data []byte
	Conn net.Conn
}

// Transport owns the set of live peer connections. conns is written
// only from the Run goroutine: dials, accepts, and connection teardown
// all arrive there as Commands (carrying the net.Conn, where one
// exists) rather than being written directly by the goroutine that
// produced them. Each connection runs its own reader goroutine; writes
// are serialised through a per-connection send queue so bytes enqueued
// in order are written in that order, matching spec.md §4.E's FIFO
// guarantee. There is no cross-peer ordering guarantee, matching the
// spec.
type Transport struct {
	Events   chan Event
	commands chan Command

	dialLimiter *rate.Limiter
	log         *logrus.Entry

	conns    map[string]*connection
	closedCh chan string
}

type connection struct {
	addr   string
	conn   net.Conn
	sendCh chan []byte
	cancel context.CancelFunc
}

// New builds a Transport. dialLimiter paces outbound dials so a large
// peer list from the tracker doesn't open hundreds of sockets at
// once.
func New(dialLimiter *rate.Limiter, log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{
		Events:      make(chan Event, 256),
		commands:    make(chan Command, 256),
		dialLimiter: dialLimiter,
		log:         log,
		conns:       make(map[string]*connection),
		closedCh:    make(chan string, 256),
	}
}

// Dial requests an outbound connection to addr. The resulting
// EventAddPeer (on success) or EventDisconnect (on failure) arrives
// asynchronously on Events.
func (t *Transport) Dial(addr string) {
	t.commands <- Command{Kind: EventAddPeer, Addr: addr}
}

// Send enqueues bytes for delivery to addr. Silently dropped if addr
// isn't connected, mirroring spec.md §4.E's "ignored for unknown
// addresses" cancellation semantics for Disconnect.
func (t *Transport) Send(addr string, data []byte) {
	t.commands <- Command{Kind: EventData, Addr: addr, Data: data}
}

// Disconnect requests that addr's connection be closed.
func (t *Transport) Disconnect(addr string) {
	t.commands <- Command{Kind: EventDisconnect, Addr: addr}
}

// Run is the transport task of spec.md §5: it owns all sockets and
// must not be called concurrently with itself. It returns when ctx is
// canceled, after closing every live connection.
func (t *Transport) Run(ctx context.Context) {
	defer func() {
		for addr := range t.conns {
			t.closeConn(addr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-t.commands:
			t.handleCommand(ctx, cmd)
		case addr := <-t.closedCh:
			t.closeConn(addr)
		}
	}
}

func (t *Transport) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case EventAddPeer:
		if cmd.Conn != nil {
			// A dial or Adopt already has a live net.Conn; it only
			// needs registering, which must happen here so t.conns is
			// never written from any goroutine but this one.
			if _, ok := t.conns[cmd.Addr]; ok {
				_ = cmd.Conn.Close()
				return
			}
			t.adopt(ctx, cmd.Addr, cmd.Conn)
			return
		}
		if _, ok := t.conns[cmd.Addr]; ok {
			return
		}
		go t.dialAndServe(ctx, cmd.Addr)
	case EventData:
		c, ok := t.conns[cmd.Addr]
		if !ok {
			return
		}
		select {
		case c.sendCh <- cmd.Data:
		case <-ctx.Done():
		}
	case EventDisconnect:
		t.closeConn(cmd.Addr)
	}
}

// dialAndServe runs on its own goroutine per dial request, since
// DialContext blocks; it never touches t.conns itself. The completed
// connection is handed back to the Run goroutine as a Command so
// registration happens single-threaded.
func (t *Transport) dialAndServe(ctx context.Context, addr string) {
	if t.dialLimiter != nil {
		if err := t.dialLimiter.Wait(ctx); err != nil {
			return
		}
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.log.WithError(err).WithField("addr", addr).Debug("dial failed")
		t.emit(Event{Kind: EventDisconnect, Addr: addr})
		return
	}
	select {
	case t.commands <- Command{Kind: EventAddPeer, Addr: addr, Conn: conn}:
	case <-ctx.Done():
		_ = conn.Close()
	}
}

// Adopt hands an already-accepted connection (from a listener) to the
// transport for registration and serving. Like a completed dial, the
// conn is routed through the command channel rather than written into
// t.conns directly, since Adopt is called from the listener's own
// accept-loop goroutine.
func (t *Transport) Adopt(ctx context.Context, addr string, conn net.Conn) {
	select {
	case t.commands <- Command{Kind: EventAddPeer, Addr: addr, Conn: conn}:
	case <-ctx.Done():
		_ = conn.Close()
	}
}

func (t *Transport) adopt(ctx context.Context, addr string, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		addr:   addr,
		conn:   conn,
		sendCh: make(chan []byte, 64),
		cancel: cancel,
	}
	t.conns[addr] = c
	t.emit(Event{Kind: EventAddPeer, Addr: addr})

	go t.writeLoop(connCtx, c)
	go t.readLoop(connCtx, c)
}

// readLoop drains the socket and forwards whatever arrived as a
// single Data event per read, matching the spec's "drain into a
// scratch buffer, forward as one Data event" behavior without an
// explicit readiness poll — Read blocks until bytes or EOF are
// available, which is the netpoller doing the same job.
func (t *Transport) readLoop(ctx context.Context, c *connection) {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.emit(Event{Kind: EventData, Addr: c.addr, Data: chunk})
		}
		if err != nil {
			t.requestClose(ctx, c.addr)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// writeLoop serialises writes from the send queue so bytes enqueued
// in order go out in that order.
func (t *Transport) writeLoop(ctx context.Context, c *connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.sendCh:
			if _, err := c.conn.Write(data); err != nil {
				t.requestClose(ctx, c.addr)
				return
			}
		}
	}
}

// requestClose hands the addr off to the Run goroutine for teardown;
// the conns map is only ever mutated there.
func (t *Transport) requestClose(ctx context.Context, addr string) {
	select {
	case t.closedCh <- addr:
	case <-ctx.Done():
	}
}

func (t *Transport) closeConn(addr string) {
	c, ok := t.conns[addr]
	if !ok {
		return
	}
	delete(t.conns, addr)
	c.cancel()
	_ = c.conn.Close()
	t.emit(Event{Kind: EventDisconnect, Addr: addr})
}

func (t *Transport) emit(ev Event) {
	select {
	case t.Events <- ev:
	default:
		// Events is generously buffered; a full buffer means the
		// orchestrator has stalled. Drop rather than block the
		// connection goroutine indefinitely.
		t.log.WithField("addr", ev.Addr).Warn("transport event queue full, dropping event")
	}
}
