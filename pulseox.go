// Package pulseox records samples from a CMS50D transmissive pulse oximeter
// and a MAX30101 reflective sensor.
//
// Both drivers are polled in turn by a Collector, which produces flat rows
// ready to be written with a CSVWriter or streamed to a live plot.
package pulseox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cgxeiji/pulseox/cms50d"
	"github.com/cgxeiji/pulseox/max30101"
)

var (
	// ErrNoSource is returned when a Collector is created without sensors.
	ErrNoSource = errors.New("pulseox: no sensor to collect from")
)

// Transmissive is a sensor producing CMS50D samples, such as a
// *cms50d.Device.
type Transmissive interface {
	ReadSample(ctx context.Context) (cms50d.Sample, error)
	Close() error
}

// Reflective is a sensor producing MAX30101 samples, such as a
// *max30101.Device.
type Reflective interface {
	ReadSample(ctx context.Context) (max30101.Sample, error)
	Mode() max30101.Mode
	Close() error
}

// Row is one line of collected data. Only the samples of attached sensors
// are set.
type Row struct {
	Elapsed    time.Duration
	HasTrans   bool
	Trans      cms50d.Sample
	HasReflect bool
	Reflect    max30101.Sample
}

// Collector polls the attached sensors in turn.
type Collector struct {
	trans   Transmissive
	reflect Reflective

	now   func() time.Time
	start time.Time
}

// NewCollector returns a collector over the given sensors. Either sensor may
// be nil, but not both.
func NewCollector(t Transmissive, r Reflective, opts ...Option) (*Collector, error) {
	c := &Collector{
		trans:   t,
		reflect: r,
		now:     time.Now,
	}
	if t == nil && r == nil {
		return nil, ErrNoSource
	}
	c.Options(opts...)

	return c, nil
}

// HasTrans reports whether a transmissive sensor is attached.
func (c *Collector) HasTrans() bool {
	return c.trans != nil
}

// ReflectMode returns the mode of the reflective sensor, or 0 if none is
// attached.
func (c *Collector) ReflectMode() max30101.Mode {
	if c.reflect == nil {
		return 0
	}
	return c.reflect.Mode()
}

// Next reads one sample from each attached sensor, transmissive first.
// Elapsed is measured from the first call.
func (c *Collector) Next(ctx context.Context) (Row, error) {
	var row Row

	if c.trans != nil {
		s, err := c.trans.ReadSample(ctx)
		if err != nil {
			return Row{}, fmt.Errorf("pulseox: could not read transmissive sensor: %w", err)
		}
		row.Trans = s
		row.HasTrans = true
	}

	if c.reflect != nil {
		s, err := c.reflect.ReadSample(ctx)
		if err != nil {
			return Row{}, fmt.Errorf("pulseox: could not read reflective sensor: %w", err)
		}
		row.Reflect = s
		row.HasReflect = true
	}

	now := c.now()
	if c.start.IsZero() {
		c.start = now
	}
	row.Elapsed = now.Sub(c.start)

	return row, nil
}

// Collect reads n rows, passing each to fn. A negative n collects until ctx
// is done or an error occurs.
func (c *Collector) Collect(ctx context.Context, n int, fn func(Row) error) error {
	for i := 0; n < 0 || i < n; i++ {
		row, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every attached sensor. The reflective sensor is reset to its
// power-on state.
func (c *Collector) Close() error {
	var errs []error
	if c.trans != nil {
		if err := c.trans.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.reflect != nil {
		if err := c.reflect.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
