package wearable

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

var logf = monitoring.Prefixed("Wearable")

// Porter is the minimal interface needed for a serial port. It lets tests
// run without hardware.
type Porter interface {
	io.Reader
	io.Closer
}

// PortOptions describes the serial connection parameters.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 9600
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure
// required by go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialReader tracks the latest state sent over a serial link, one
// reading per line. Readings older than MaxAge report Unknown.
type SerialReader struct {
	port   Porter
	clock  timeutil.Clock
	last   *latest
	MaxAge time.Duration

	closeOnce sync.Once
}

// NewSerialReader wraps an open port. A nil clock uses the real clock.
func NewSerialReader(port Porter, clock timeutil.Clock) *SerialReader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SerialReader{port: port, clock: clock, last: newLatest(), MaxAge: 10 * time.Second}
}

// OpenSerialReader opens the serial port at path.
func OpenSerialReader(path string, opts PortOptions) (*SerialReader, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open wearable port %s: %w", path, err)
	}
	return NewSerialReader(port, nil), nil
}

// State implements Reader.
func (r *SerialReader) State() State {
	s, at := r.last.get()
	if at.IsZero() {
		return Unknown
	}
	if r.MaxAge > 0 && r.clock.Since(at) > r.MaxAge {
		return Unknown
	}
	return s
}

// LastReading returns the latest state and when it arrived, ignoring MaxAge.
func (r *SerialReader) LastReading() (State, time.Time) {
	return r.last.get()
}

// Monitor reads lines until ctx is done or the port fails.
func (r *SerialReader) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(r.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan must not hold up context cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				return nil
			}
			s := ParseState([]byte(line))
			prev, _ := r.last.get()
			r.last.set(s, r.clock.Now())
			if s != prev {
				logf("state %s -> %s", prev, s)
			}
		}
	}
}

// Close closes the underlying port.
func (r *SerialReader) Close() error {
	var err error
	r.closeOnce.Do(func() { err = r.port.Close() })
	return err
}
