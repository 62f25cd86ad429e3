// Package cms50d drives a CMS50D transmissive pulse oximeter over its serial
// port.
//
// Once it receives the handshake frame, the device streams 9 byte frames
// carrying heart rate, SpO2 and one waveform point. It sometimes stops
// streaming. The driver resends the handshake after ResendAfter consecutive
// reads without a frame.
package cms50d

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cgxeiji/pulseox/internal/poll"
	"go.bug.st/serial"
)

// Serial settings of the device.
const (
	BaudRate           = 115200
	DataBits           = 8
	DefaultReadTimeout = 10 * time.Millisecond
)

// ResendAfter is the default number of consecutive failed read attempts
// after which the handshake is sent again.
const ResendAfter = 3

// Backoff configures the wait between two failed read attempts.
type Backoff = poll.Backoff

// Port is the transport used by a Device.
type Port interface {
	io.ReadWriteCloser
}

// timeoutPort is implemented by ports with a configurable read timeout.
type timeoutPort interface {
	SetReadTimeout(t time.Duration) error
}

// Device defines a CMS50D device.
type Device struct {
	port Port

	readTimeout time.Duration
	resendAfter int
	backoff     Backoff
	logger      *log.Logger
}

// Open opens the serial port name at 115200 8N1 and starts streaming.
// Software flow control (XON/XOFF) is not enabled; the serial driver does
// not support it.
func Open(name string, opts ...Option) (*Device, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("could not open %s", name), Err: err}
	}

	d, err := New(port, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}

	return d, nil
}

// New returns a device streaming over an already opened port. If the port
// supports it, its read timeout is set.
func New(port Port, opts ...Option) (*Device, error) {
	d := &Device{
		port:        port,
		readTimeout: DefaultReadTimeout,
		resendAfter: ResendAfter,
		logger:      log.New(io.Discard, "", 0),
	}
	d.Options(opts...)

	if tp, ok := port.(timeoutPort); ok {
		if err := tp.SetReadTimeout(d.readTimeout); err != nil {
			return nil, &TransportError{Op: "could not set read timeout", Err: err}
		}
	}

	if err := d.Handshake(); err != nil {
		return nil, err
	}

	return d, nil
}

// Ports lists the serial ports available on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &TransportError{Op: "could not list ports", Err: err}
	}
	return ports, nil
}

// Close releases the port.
func (d *Device) Close() error {
	if err := d.port.Close(); err != nil {
		return &TransportError{Op: "could not close port", Err: err}
	}
	return nil
}

// Handshake asks the device to start streaming.
func (d *Device) Handshake() error {
	n, err := d.port.Write(Handshake[:])
	if err != nil {
		return &TransportError{Op: "could not send handshake", Err: err}
	}
	if n != FrameSize {
		return &TransportError{
			Op:  "could not send handshake",
			Err: fmt.Errorf("wrong number of bytes written: want %d, got %d", FrameSize, n),
		}
	}
	return nil
}

// ReadSample waits for the next frame and decodes it.
//
// Read attempts are retried until a frame arrives, ctx is done, or the port
// fails. After every resendAfter consecutive failed attempts the handshake
// is sent again. Without a deadline on ctx, ReadSample waits forever on a
// silent device.
func (d *Device) ReadSample(ctx context.Context) (Sample, error) {
	f, err := d.ReadFrame(ctx)
	if err != nil {
		return Sample{}, err
	}
	return Decode(f), nil
}

// ReadWaveform waits for the next frame and returns its waveform point.
func (d *Device) ReadWaveform(ctx context.Context) (uint8, error) {
	f, err := d.ReadFrame(ctx)
	if err != nil {
		return 0, err
	}
	return Decode(f).Waveform, nil
}

// ReadFrame waits for the next complete frame, following the same retry
// rules as ReadSample.
func (d *Device) ReadFrame(ctx context.Context) (Frame, error) {
	var f Frame
	failed := 0

	err := poll.Until(ctx, d.backoff, func() (bool, error) {
		ok, err := d.attempt(&f)
		if err != nil || ok {
			return ok, err
		}

		failed++
		if failed < d.resendAfter {
			return false, nil
		}
		d.logger.Printf("cms50d: no frame after %d attempts, resending handshake", failed)
		failed = 0
		return false, d.Handshake()
	})
	if err != nil {
		return Frame{}, fmt.Errorf("cms50d: could not read frame: %w", err)
	}

	return f, nil
}

// attempt reads until a full frame arrived or the port timed out. Partial
// frames are dropped.
func (d *Device) attempt(f *Frame) (bool, error) {
	n := 0
	for n < FrameSize {
		m, err := d.port.Read(f[n:])
		if err != nil {
			return false, &TransportError{Op: "could not read", Err: err}
		}
		if m == 0 {
			break
		}
		n += m
	}

	return n == FrameSize, nil
}
