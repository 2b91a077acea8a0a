package espnow

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
)

// Serial transport defaults.
const (
	// DefaultBaud is the gateway's UART speed.
	DefaultBaud = 460800

	defaultInitialDelay = time.Second
	defaultMaxDelay     = 60 * time.Second

	// readPollInterval bounds how long a blocked read ignores cancellation.
	readPollInterval = 500 * time.Millisecond

	// maxLineLength drops runaway lines from a gateway stuck without newlines.
	maxLineLength = 64 * 1024
)

// LineReader yields newline-terminated lines.
type LineReader interface {
	// ReadLine blocks until a line is available or ctx is done.
	ReadLine(ctx context.Context) ([]byte, error)
}

// PortOpener opens a serial device. The returned reader should return
// (0, nil) on read timeouts so cancellation can be observed.
type PortOpener func(name string, baud int) (io.ReadCloser, error)

// SerialOptions configures a SerialTransport.
type SerialOptions struct {
	// Port is the device path, e.g. /dev/ttyUSB0. Required.
	Port string

	// Baud is the UART speed. Default: 460800.
	Baud int

	// InitialDelay and MaxDelay bound the exponential reopen backoff.
	// Defaults: 1s and 60s.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Open replaces the real serial port, for tests.
	Open PortOpener

	// OnReconnect is called before every reopen attempt. Optional.
	OnReconnect func()

	// Logger is optional.
	Logger Logger
}

// SerialTransport reads lines from the gateway's serial port. Read and
// open failures close the port and reopen it with exponential backoff
// until the context is cancelled. The backoff resets after a line is read.
//
// ReadLine must be called from one goroutine; Close and the status
// accessors are safe for concurrent use.
type SerialTransport struct {
	opts    SerialOptions
	logger  Logger
	backoff *backoff.ExponentialBackOff

	// Owned by the ReadLine goroutine.
	reader     *bufio.Reader
	src        *ctxReader
	opened     bool // set after the first successful open
	failed     bool // the last port failed; wait before reopening
	discarding bool // inside an overlong line

	portMu sync.Mutex
	port   io.ReadCloser

	connected  atomic.Bool
	linesRead  atomic.Uint64
	reconnects atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSerialTransport validates opts and creates a transport. The port is
// opened lazily by the first ReadLine.
func NewSerialTransport(opts SerialOptions) (*SerialTransport, error) {
	if opts.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if opts.Baud <= 0 {
		opts.Baud = DefaultBaud
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = defaultInitialDelay
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.Open == nil {
		opts.Open = openSerialPort
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialDelay
	b.MaxInterval = opts.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	return &SerialTransport{
		opts:    opts,
		logger:  logger,
		backoff: b,
		done:    make(chan struct{}),
	}, nil
}

// openSerialPort opens a real device 8N1 at baud.
func openSerialPort(name string, baud int) (io.ReadCloser, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readPollInterval); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// ReadLine returns the next non-empty line without its terminator. Lines
// longer than maxLineLength are discarded up to the next newline without
// being buffered.
//
// Returns:
//   - []byte: the line, trimmed of surrounding whitespace
//   - error: ctx.Err() once ctx is done, or ErrBridgeStopped after Close
func (t *SerialTransport) ReadLine(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.isClosed() {
			return nil, ErrBridgeStopped
		}

		if t.reader == nil {
			if err := t.connect(ctx); err != nil {
				return nil, err
			}
		}

		t.src.ctx = ctx
		raw, err := t.reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !t.discarding {
				t.logger.Warn("serial line too long, discarding", "port", t.opts.Port, "max_bytes", maxLineLength)
				t.discarding = true
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if t.isClosed() {
				t.disconnect()
				return nil, ErrBridgeStopped
			}
			t.logger.Error("serial read failed", "port", t.opts.Port, "error", err)
			t.disconnect()
			t.failed = true
			continue
		}

		if t.discarding {
			// Tail of an overlong line.
			t.discarding = false
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		t.backoff.Reset()
		t.linesRead.Add(1)
		return bytes.Clone(line), nil
	}
}

// connect opens the port. After a failure it waits the next backoff
// interval before each attempt.
func (t *SerialTransport) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if t.failed {
			wait := t.backoff.NextBackOff()
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}
		if t.opened || attempt > 1 {
			t.reconnects.Add(1)
			if t.opts.OnReconnect != nil {
				t.opts.OnReconnect()
			}
		}

		port, err := t.opts.Open(t.opts.Port, t.opts.Baud)
		if err != nil {
			t.failed = true
			if attempt == 1 {
				t.logger.Error("unable to open serial device, will retry", "port", t.opts.Port, "error", err)
			} else {
				t.logger.Debug("serial reopen failed", "port", t.opts.Port, "error", err)
			}
			continue
		}

		t.portMu.Lock()
		if t.isClosed() {
			t.portMu.Unlock()
			_ = port.Close()
			return ErrBridgeStopped
		}
		t.port = port
		t.portMu.Unlock()

		t.src = &ctxReader{r: port, ctx: ctx, done: t.done}
		t.reader = bufio.NewReaderSize(t.src, maxLineLength)
		t.opened = true
		t.failed = false
		t.connected.Store(true)
		t.logger.Info("serial device connected", "port", t.opts.Port, "baud", t.opts.Baud)
		return nil
	}
}

// sleep waits d, returning early when ctx is done or the transport closes.
func (t *SerialTransport) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrBridgeStopped
	case <-timer.C:
		return nil
	}
}

func (t *SerialTransport) disconnect() {
	t.portMu.Lock()
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			t.logger.Debug("serial close failed", "port", t.opts.Port, "error", err)
		}
		t.port = nil
	}
	t.portMu.Unlock()

	t.reader = nil
	t.src = nil
	t.discarding = false
	t.connected.Store(false)
}

// Close stops the transport and closes the port. A blocked ReadLine
// returns ErrBridgeStopped.
func (t *SerialTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })

	t.portMu.Lock()
	defer t.portMu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.connected.Store(false)
	return err
}

func (t *SerialTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Status reports the transport state.
func (t *SerialTransport) Status() SerialStatus {
	return SerialStatus{
		Port:       t.opts.Port,
		Connected:  t.connected.Load(),
		LinesRead:  t.linesRead.Load(),
		Reconnects: t.reconnects.Load(),
	}
}

// IsConnected reports whether the port is open.
func (t *SerialTransport) IsConnected() bool {
	return t.connected.Load()
}

// ctxReader turns read timeouts into cancellation checks.
type ctxReader struct {
	r    io.Reader
	ctx  context.Context
	done <-chan struct{}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		select {
		case <-c.done:
			return 0, ErrBridgeStopped
		default:
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
