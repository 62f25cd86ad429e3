// Package max30101 drives the MAX30101 reflective pulse oximeter over I2C.
//
// The device buffers samples in a 32 slot FIFO. Each sample holds one 24 bit
// word per active LED: red and IR in SpO2 mode, red, IR and green in multi-LED
// mode. Configuration parameters are bit fields packed into shared registers
// and are always changed with read-modify-write.
package max30101

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cgxeiji/pulseox/internal/poll"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// Backoff configures how the FIFO is polled while waiting for a sample.
type Backoff = poll.Backoff

// DefaultBackoff polls every millisecond, backing off to 10ms.
var DefaultBackoff = Backoff{
	Interval: time.Millisecond,
	Max:      10 * time.Millisecond,
	Factor:   2,
}

// resetTimeout bounds the wait for self-clearing bits. The device clears them
// within a few milliseconds.
const resetTimeout = 500 * time.Millisecond

// Device defines a MAX30101 device.
type Device struct {
	dev    *i2c.Dev
	closer io.Closer

	mode    Mode
	backoff Backoff
}

// Sample is a single FIFO sample. Green is only set in multi-LED mode.
type Sample struct {
	Mode  Mode
	Red   uint32
	IR    uint32
	Green uint32
}

// Channels returns the words of the sample in FIFO order.
func (s Sample) Channels() []uint32 {
	switch s.Mode {
	case ModeSpO2:
		return []uint32{s.Red, s.IR}
	case ModeMulti:
		return []uint32{s.Red, s.IR, s.Green}
	}
	return nil
}

// New returns a new MAX30101 device configured with cfg.
//
// Argument "busName" can be used to specify the exact bus to use ("/dev/i2c-2", "I2C2", "2").
// Argument "addr" can be used to specify alternative address if default (0x57) is unavailable and changed.
// If "busName" argument is specified as an empty string "" the first available bus will be used.
func New(busName string, addr uint16, cfg Config, opts ...Option) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, &TransportError{Op: "could not initialize host", Err: err}
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, &TransportError{Op: "could not open I2C bus", Err: err}
	}

	d, err := NewOnBus(bus, addr, cfg, opts...)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.closer = bus

	return d, nil
}

// NewOnBus returns a new MAX30101 device on an already opened bus. The bus is
// not closed by Close.
func NewOnBus(bus i2c.Bus, addr uint16, cfg Config, opts ...Option) (*Device, error) {
	if addr == 0 {
		addr = Addr
	}

	d := &Device{
		dev: &i2c.Dev{
			Addr: addr,
			Bus:  bus,
		},
		backoff: DefaultBackoff,
	}

	part, err := d.Read(RegPartID)
	if err != nil {
		return nil, &TransportError{Op: "could not get part ID", Err: err}
	}
	if part != PartID {
		return nil, ErrNotDevice
	}

	if err := d.Configure(cfg); err != nil {
		return nil, err
	}
	if _, err := d.Options(opts...); err != nil {
		return nil, err
	}

	return d, nil
}

// Configure resets the device and applies cfg. The FIFO is left in rollover
// mode with the new data and almost full interrupts enabled. Nothing is
// written if cfg is invalid.
func (d *Device) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := d.Reset(); err != nil {
		return err
	}

	opts := []Option{OperatingMode(cfg.Mode)}
	for _, led := range cfg.Mode.leds() {
		opts = append(opts, LEDCurrent(led, cfg.LEDCurrent))
	}
	opts = append(opts,
		ADCRange(cfg.ADCRange),
		SampleRate(cfg.SampleRate),
		PulseWidth(cfg.PulseWidth),
		SampleAverage(cfg.Average),
		Overflow(OverflowRollover),
		InterruptEnable(NewFIFOData|AlmostFull),
	)
	if _, err := d.Options(opts...); err != nil {
		return fmt.Errorf("max30101: could not initialize device: %w", err)
	}

	return nil
}

// Close resets the device to its power-on state and releases the bus.
func (d *Device) Close() error {
	err := d.Reset()
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Mode returns the operating mode applied to the device, or 0 if none has
// been applied since the last reset.
func (d *Device) Mode() Mode {
	return d.mode
}

// RevID returns the revision ID of the device.
func (d *Device) RevID() (byte, error) {
	rev, err := d.Read(RegRevID)
	if err != nil {
		return 0, fmt.Errorf("max30101: could not get revision ID: %w", err)
	}
	return rev, nil
}

// waitUntil polls reg until flag is set (bit 1) or cleared (bit 0).
func (d *Device) waitUntil(ctx context.Context, reg Register, flag, bit byte) error {
	if bit > 1 {
		return fmt.Errorf("invalid bit %v, it should be 1 or 0", bit)
	}

	err := poll.Until(ctx, Backoff{}, func() (bool, error) {
		state, err := d.Read(reg)
		if err != nil {
			return false, err
		}
		if bit == 1 {
			return state&flag != 0, nil
		}
		return state&flag == 0, nil
	})
	if err != nil {
		return fmt.Errorf("could not wait for %#x in %v to be %v: %w", flag, reg, bit, err)
	}
	return nil
}

// Temperature returns the current die temperature of the device in °C.
func (d *Device) Temperature() (float64, error) {
	if err := d.Write(TempCfg, TempEna); err != nil {
		return 0, fmt.Errorf("max30101: could not enable temperature: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := d.waitUntil(ctx, TempCfg, TempEna, 0); err != nil {
		return 0, fmt.Errorf("max30101: %w", err)
	}

	i, err := d.Read(TempInt)
	if err != nil {
		return 0, fmt.Errorf("max30101: could not read integer part of temperature: %w", err)
	}

	f, err := d.Read(TempFrac)
	if err != nil {
		return 0, fmt.Errorf("max30101: could not read fractional part of temperature: %w", err)
	}

	return float64(int8(i)) + (float64(f&0x0F) * 0.0625), nil
}

// Read reads a single byte from a register.
func (d *Device) Read(reg Register) (byte, error) {
	b := make([]byte, 1)
	if err := d.dev.Tx([]byte{byte(reg)}, b); err != nil {
		return 0, fmt.Errorf("max30101: could not read byte: %w", err)
	}

	return b[0], nil
}

// ReadBytes read n bytes from a register.
func (d *Device) ReadBytes(reg Register, n int) ([]byte, error) {
	b := make([]byte, n)
	if err := d.dev.Tx([]byte{byte(reg)}, b); err != nil {
		return nil, fmt.Errorf("max30101: could not read %d bytes: %w", n, err)
	}

	return b, nil
}

// Write writes a byte to a register.
func (d *Device) Write(reg Register, data byte) error {
	n, err := d.dev.Write([]byte{byte(reg), data})
	if err != nil {
		return fmt.Errorf("max30101: could not write %v: %w", reg, err)
	}
	n-- // remove register write
	if n != 1 {
		return fmt.Errorf("max30101: wrong number of bytes written: want %d, got %d", 1, n)
	}

	return nil
}

// Reset resets the device. All configurations, thresholds, and data registers
// are reset to their power-on state and the device has to be configured
// again before samples can be read.
func (d *Device) Reset() error {
	if _, err := d.setField(fieldReset, 1); err != nil {
		return fmt.Errorf("max30101: could not reset: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := d.waitUntil(ctx, ModeCfg, fieldReset.mask(), 0); err != nil {
		return fmt.Errorf("max30101: could not reset: %w", err)
	}
	d.mode = 0

	return nil
}

// occupancy returns the number of unread samples between the FIFO read and
// write pointers.
func occupancy(wr, rd byte) int {
	wr &= ptrMask
	rd &= ptrMask
	if wr >= rd {
		return int(wr - rd)
	}
	return fifoDepth - int(rd) + int(wr)
}

// Available returns the number of samples waiting in the FIFO. The pointers
// are read from the device on every call.
func (d *Device) Available() (int, error) {
	wr, err := d.Read(FIFOWrPtr)
	if err != nil {
		return 0, err
	}
	rd, err := d.Read(FIFORdPtr)
	if err != nil {
		return 0, err
	}

	return occupancy(wr, rd), nil
}

// IsSampleReady reports whether at least one sample can be read.
func (d *Device) IsSampleReady() (bool, error) {
	n, err := d.Available()
	if err != nil {
		return false, err
	}
	return n >= 1, nil
}

// ReadSample waits until a sample is available and reads it. The wait
// follows the device backoff and ends early when ctx is done.
func (d *Device) ReadSample(ctx context.Context) (Sample, error) {
	if d.mode.channels() == 0 {
		return Sample{}, ErrNotConfigured
	}

	if err := poll.Until(ctx, d.backoff, d.IsSampleReady); err != nil {
		return Sample{}, fmt.Errorf("max30101: could not wait for sample: %w", err)
	}

	return d.readSample()
}

// ReadAvailable returns every sample currently waiting in the FIFO, possibly
// none.
func (d *Device) ReadAvailable(ctx context.Context) ([]Sample, error) {
	if d.mode.channels() == 0 {
		return nil, ErrNotConfigured
	}

	n, err := d.Available()
	if err != nil {
		return nil, fmt.Errorf("max30101: error reading available data: %w", err)
	}

	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		s, err := d.readSample()
		if err != nil {
			return samples, err
		}
		samples = append(samples, s)
	}

	return samples, nil
}

func (d *Device) readSample() (Sample, error) {
	b, err := d.ReadBytes(FIFOData, d.mode.channels()*wordSize)
	if err != nil {
		return Sample{}, err
	}
	return decodeSample(d.mode, b), nil
}

// word reconstructs a channel word from 3 bytes, most significant first.
func word(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func decodeSample(m Mode, b []byte) Sample {
	s := Sample{
		Mode: m,
		Red:  word(b[0:3]),
		IR:   word(b[3:6]),
	}
	if m == ModeMulti {
		s.Green = word(b[6:9])
	}
	return s
}

// Shutdown sets the device into power-save mode.
func (d *Device) Shutdown() error {
	if _, err := d.setField(fieldShutdown, 1); err != nil {
		return fmt.Errorf("max30101: could not shut down: %w", err)
	}
	return nil
}

// Startup wakes the device from power-save mode.
func (d *Device) Startup() error {
	if _, err := d.setField(fieldShutdown, 0); err != nil {
		return fmt.Errorf("max30101: could not start up: %w", err)
	}
	return nil
}
