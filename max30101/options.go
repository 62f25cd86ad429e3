package max30101

import (
	"fmt"
	"math"
)

// Config holds the parameters applied by Configure.
type Config struct {
	Mode Mode
	// LEDCurrent is the pulse amplitude of every LED used by Mode, in mA.
	LEDCurrent float64
	ADCRange   Range
	SampleRate Rate
	PulseWidth Width
	Average    Average
}

// DefaultConfig returns SpO2 mode at 10mA, a 4096nA ADC range, 100
// samples/s, 411us pulses and 4 samples averaged.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeSpO2,
		LEDCurrent: 10,
		ADCRange:   ADC4096,
		SampleRate: SR100,
		PulseWidth: PW411,
		Average:    Avg4,
	}
}

// Validate checks every parameter of c against its valid range.
func (c Config) Validate() error {
	if c.Mode.channels() == 0 {
		return errMode(c.Mode)
	}
	if _, err := ledRegister(c.LEDCurrent); err != nil {
		return err
	}
	checks := []struct {
		param string
		f     Field
		v     byte
	}{
		{"ADC range", fieldADCRange, byte(c.ADCRange)},
		{"sample rate", fieldSampleRate, byte(c.SampleRate)},
		{"pulse width", fieldPulseWidth, byte(c.PulseWidth)},
		{"sample average", fieldAverage, byte(c.Average)},
	}
	for _, chk := range checks {
		if err := checkLevel(chk.param, chk.f, chk.v); err != nil {
			return err
		}
	}
	return nil
}

// leds returns the LED channels used by the mode.
func (m Mode) leds() []LED {
	switch m {
	case ModeSpO2:
		return []LED{LEDRed, LEDIR}
	case ModeMulti:
		return []LED{LEDRed, LEDIR, LEDGreen}
	}
	return nil
}

// Option defines a functional option for the device.
type Option func(d *Device) (Option, error)

// Options set different configuration options and returns the previous value
// of the last option passed.
func (d *Device) Options(options ...Option) (Option, error) {
	var old Option
	var err error
	for _, opt := range options {
		old, err = opt(d)
		if err != nil {
			return nil, err
		}
	}

	return old, nil
}

// setField sets f to v with read-modify-write and returns the previous value
// of the field.
func (d *Device) setField(f Field, v byte) (byte, error) {
	cfg, err := d.Read(f.Reg)
	if err != nil {
		return 0, fmt.Errorf("could not get %v: %w", f.Reg, err)
	}
	if err := d.Write(f.Reg, f.apply(cfg, v)); err != nil {
		return 0, fmt.Errorf("could not set %#x in %v: %w", v, f.Reg, err)
	}

	return f.get(cfg), nil
}

func checkLevel(param string, f Field, v byte) error {
	if f.valid(v) {
		return nil
	}
	return &OutOfRangeError{
		Param: param,
		Got:   float64(v),
		Min:   0,
		Max:   float64(f.levels() - 1),
	}
}

// setLevel validates v before touching the device.
func (d *Device) setLevel(param string, f Field, v byte) (byte, error) {
	if err := checkLevel(param, f, v); err != nil {
		return 0, err
	}
	old, err := d.setField(f, v)
	if err != nil {
		return 0, fmt.Errorf("max30101: could not configure %s: %w", param, err)
	}
	return old, nil
}

func errMode(m Mode) error {
	return fmt.Errorf("max30101: unsupported mode %v: %w", m, ErrOutOfRange)
}

// ledRegister converts a current in mA to pulse amplitude register units.
func ledRegister(mA float64) (byte, error) {
	if math.IsNaN(mA) || mA < 0 || mA > MaxLEDCurrent {
		return 0, &OutOfRangeError{
			Param: "LED current (mA)",
			Got:   mA,
			Min:   0,
			Max:   MaxLEDCurrent,
		}
	}
	return byte(math.Round(mA / ledStep)), nil
}

// Multi-LED slot assignments.
const (
	slotRed   = 0b001
	slotIR    = 0b010
	slotGreen = 0b011
)

// OperatingMode sets the operation mode of the device. Multi-LED mode assigns
// the first three time slots to the red, IR and green LEDs. The FIFO is
// cleared since its sample layout depends on the mode.
func OperatingMode(m Mode) Option {
	return func(d *Device) (Option, error) {
		if m.channels() == 0 {
			return nil, errMode(m)
		}

		old, err := d.setField(fieldMode, byte(m))
		if err != nil {
			return nil, fmt.Errorf("max30101: could not configure mode: %w", err)
		}

		if m == ModeMulti {
			for _, s := range []struct {
				f Field
				v byte
			}{
				{fieldSlot1, slotRed},
				{fieldSlot2, slotIR},
				{fieldSlot3, slotGreen},
			} {
				if _, err := d.setField(s.f, s.v); err != nil {
					return nil, fmt.Errorf("max30101: could not configure multi-LED slots: %w", err)
				}
			}
		}

		for _, reg := range []Register{FIFOWrPtr, OvfCount, FIFORdPtr} {
			if err := d.Write(reg, 0); err != nil {
				return nil, fmt.Errorf("max30101: could not configure mode: %w", err)
			}
		}
		d.mode = m

		return OperatingMode(Mode(old)), nil
	}
}

// LEDCurrent sets the pulse amplitude of an LED. It accepts values from 0.0
// to 51.0 mA, rounded to the nearest multiple of 0.2.
func LEDCurrent(led LED, current float64) Option {
	return func(d *Device) (Option, error) {
		if led > LEDPilot {
			return nil, &OutOfRangeError{Param: "LED channel", Got: float64(led), Min: 0, Max: float64(LEDPilot)}
		}
		b, err := ledRegister(current)
		if err != nil {
			return nil, err
		}

		old, err := d.Read(led.reg())
		if err != nil {
			return nil, fmt.Errorf("max30101: could not configure %v LED pulse amplitude: %w", led, err)
		}
		if err := d.Write(led.reg(), b); err != nil {
			return nil, fmt.Errorf("max30101: could not configure %v LED pulse amplitude: %w", led, err)
		}

		return LEDCurrent(led, float64(old)/ledStepsPerMA), nil
	}
}

// ADCRange sets the SpO2 ADC full scale range.
func ADCRange(r Range) Option {
	return func(d *Device) (Option, error) {
		old, err := d.setLevel("ADC range", fieldADCRange, byte(r))
		if err != nil {
			return nil, err
		}
		return ADCRange(Range(old)), nil
	}
}

// SampleRate sets the SpO2 sample rate control of the device.
func SampleRate(sr Rate) Option {
	return func(d *Device) (Option, error) {
		old, err := d.setLevel("sample rate", fieldSampleRate, byte(sr))
		if err != nil {
			return nil, err
		}
		return SampleRate(Rate(old)), nil
	}
}

// PulseWidth sets the pulse width of the device.
func PulseWidth(pw Width) Option {
	return func(d *Device) (Option, error) {
		old, err := d.setLevel("pulse width", fieldPulseWidth, byte(pw))
		if err != nil {
			return nil, err
		}
		return PulseWidth(Width(old)), nil
	}
}

// SampleAverage sets how many samples are averaged into each FIFO sample.
func SampleAverage(a Average) Option {
	return func(d *Device) (Option, error) {
		old, err := d.setLevel("sample average", fieldAverage, byte(a))
		if err != nil {
			return nil, err
		}
		if old >= byte(Avg32) {
			// 0b110 and 0b111 also average 32 samples.
			old = byte(Avg32)
		}
		return SampleAverage(Average(old)), nil
	}
}

// Overflow sets what the FIFO does when it is full.
func Overflow(p OverflowPolicy) Option {
	return func(d *Device) (Option, error) {
		old, err := d.setLevel("overflow policy", fieldRollover, byte(p))
		if err != nil {
			return nil, err
		}
		return Overflow(OverflowPolicy(old)), nil
	}
}

// AlmostFullValue sets how many empty FIFO slots trigger the AlmostFull
// interrupt. It can take values from 0 to 15.
func AlmostFullValue(left byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.setLevel("almost full value", fieldAlmostFull, left)
		if err != nil {
			return nil, err
		}
		return AlmostFullValue(old), nil
	}
}

// InterruptEnable enables the given status 1 interrupts and disables the
// others.
func InterruptEnable(i byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.Read(IntEna1)
		if err != nil {
			return nil, fmt.Errorf("max30101: could not configure interrupt flags: %w", err)
		}
		if err := d.Write(IntEna1, i); err != nil {
			return nil, fmt.Errorf("max30101: could not configure interrupt flags: %w", err)
		}
		return InterruptEnable(old), nil
	}
}

// PollBackoff sets how the FIFO is polled by ReadSample. It does not touch
// the device.
func PollBackoff(b Backoff) Option {
	return func(d *Device) (Option, error) {
		old := d.backoff
		d.backoff = b
		return PollBackoff(old), nil
	}
}

// SetMode applies an operating mode.
func (d *Device) SetMode(m Mode) error {
	_, err := d.Options(OperatingMode(m))
	return err
}

// SetLEDCurrent sets the pulse amplitude of an LED in mA.
func (d *Device) SetLEDCurrent(led LED, mA float64) error {
	_, err := d.Options(LEDCurrent(led, mA))
	return err
}

// SetADCRange sets the ADC full scale range.
func (d *Device) SetADCRange(r Range) error {
	_, err := d.Options(ADCRange(r))
	return err
}

// SetSampleRate sets the sample rate.
func (d *Device) SetSampleRate(sr Rate) error {
	_, err := d.Options(SampleRate(sr))
	return err
}

// SetPulseWidth sets the LED pulse width.
func (d *Device) SetPulseWidth(pw Width) error {
	_, err := d.Options(PulseWidth(pw))
	return err
}

// SetSampleAverage sets the FIFO sample averaging.
func (d *Device) SetSampleAverage(a Average) error {
	_, err := d.Options(SampleAverage(a))
	return err
}

// SetOverflow sets the FIFO overflow policy.
func (d *Device) SetOverflow(p OverflowPolicy) error {
	_, err := d.Options(Overflow(p))
	return err
}

// SetAlmostFull sets the AlmostFull interrupt threshold.
func (d *Device) SetAlmostFull(left byte) error {
	_, err := d.Options(AlmostFullValue(left))
	return err
}
