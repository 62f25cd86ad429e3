package max30101

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/physic"
)

// Register is a MAX30101 register address.
type Register byte

// Register addresses
const (
	IntStat1         Register = 0x00
	IntStat2         Register = 0x01
	IntEna1          Register = 0x02
	IntEna2          Register = 0x03
	FIFOWrPtr        Register = 0x04
	OvfCount         Register = 0x05
	FIFORdPtr        Register = 0x06
	FIFOData         Register = 0x07
	FIFOCfg          Register = 0x08
	ModeCfg          Register = 0x09
	SpO2Cfg          Register = 0x0A
	Led1PA           Register = 0x0C
	Led2PA           Register = 0x0D
	Led3PA           Register = 0x0E
	Led4PA           Register = 0x0F
	MultiLedModeS2S1 Register = 0x11
	MultiLedModeS4S3 Register = 0x12
	TempInt          Register = 0x1F
	TempFrac         Register = 0x20
	TempCfg          Register = 0x21
	RegRevID         Register = 0xFE
	RegPartID        Register = 0xFF
)

func (r Register) String() string {
	return fmt.Sprintf("%#02x", byte(r))
}

// Interrupt flags
const (
	AlmostFull  byte = (1 << 7)
	NewFIFOData byte = (1 << 6)
	PowerReady  byte = (1 << 0)
)

// Device constants
const (
	Addr   = 0x57
	PartID = 0x15

	TempEna byte = 0b0000_0001

	// fifoDepth is the number of sample slots in the FIFO ring. The read and
	// write pointers wrap modulo this value.
	fifoDepth = 32
	ptrMask   = 0b0001_1111
	wordSize  = 3
)

// Field describes a bit field owned by a single configuration parameter.
type Field struct {
	Reg   Register
	Shift uint8
	Width uint8
	// Levels is the number of valid values, starting at 0. Zero means every
	// value that fits in Width is valid.
	Levels int
}

func (f Field) mask() byte {
	return byte((1<<f.Width)-1) << f.Shift
}

func (f Field) levels() int {
	if f.Levels > 0 {
		return f.Levels
	}
	return 1 << f.Width
}

func (f Field) valid(v byte) bool {
	return int(v) < f.levels()
}

// apply returns cfg with the field set to v and every other bit untouched.
func (f Field) apply(cfg, v byte) byte {
	return cfg&^f.mask() | (v<<f.Shift)&f.mask()
}

// get extracts the field from cfg.
func (f Field) get(cfg byte) byte {
	return (cfg & f.mask()) >> f.Shift
}

var (
	fieldMode       = Field{Reg: ModeCfg, Shift: 0, Width: 3}
	fieldReset      = Field{Reg: ModeCfg, Shift: 6, Width: 1}
	fieldShutdown   = Field{Reg: ModeCfg, Shift: 7, Width: 1}
	fieldAverage    = Field{Reg: FIFOCfg, Shift: 5, Width: 3, Levels: 6}
	fieldRollover   = Field{Reg: FIFOCfg, Shift: 4, Width: 1}
	fieldAlmostFull = Field{Reg: FIFOCfg, Shift: 0, Width: 4}
	fieldADCRange   = Field{Reg: SpO2Cfg, Shift: 5, Width: 2}
	fieldSampleRate = Field{Reg: SpO2Cfg, Shift: 2, Width: 3}
	fieldPulseWidth = Field{Reg: SpO2Cfg, Shift: 0, Width: 2}
	fieldSlot1      = Field{Reg: MultiLedModeS2S1, Shift: 0, Width: 3}
	fieldSlot2      = Field{Reg: MultiLedModeS2S1, Shift: 4, Width: 3}
	fieldSlot3      = Field{Reg: MultiLedModeS4S3, Shift: 0, Width: 3}
)

// Mode is the LED operating mode of the device.
type Mode byte

// Operating modes.
const (
	ModeSpO2  Mode = 0b011
	ModeMulti Mode = 0b111
)

func (m Mode) String() string {
	switch m {
	case ModeSpO2:
		return "spo2"
	case ModeMulti:
		return "multi"
	}
	return fmt.Sprintf("Mode(%#x)", byte(m))
}

// channels returns the number of words per FIFO sample.
func (m Mode) channels() int {
	switch m {
	case ModeSpO2:
		return 2
	case ModeMulti:
		return 3
	}
	return 0
}

// ParseMode returns the mode named s ("spo2" or "multi").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "spo2", "SpO2":
		return ModeSpO2, nil
	case "multi":
		return ModeMulti, nil
	}
	return 0, fmt.Errorf("max30101: unknown mode %q", s)
}

// LED is one of the four LED pulse amplitude channels.
type LED byte

// LED channels. In multi-LED mode the slots are wired red, IR, green.
const (
	LEDRed LED = iota
	LEDIR
	LEDGreen
	LEDPilot
)

func (l LED) reg() Register {
	return Led1PA + Register(l)
}

func (l LED) String() string {
	switch l {
	case LEDRed:
		return "red"
	case LEDIR:
		return "ir"
	case LEDGreen:
		return "green"
	case LEDPilot:
		return "pilot"
	}
	return fmt.Sprintf("LED(%d)", byte(l))
}

// LED pulse amplitude limits, in mA.
const (
	MaxLEDCurrent = 51.0
	ledStep       = 0.2
	ledStepsPerMA = 5
)

// Range is the SpO2 ADC full scale range.
type Range byte

// ADC ranges, named by their full scale current in nA.
const (
	ADC2048 Range = iota
	ADC4096
	ADC8192
	ADC16384
)

// FullScale returns the full scale current of the range.
func (r Range) FullScale() physic.ElectricCurrent {
	return physic.ElectricCurrent(2048<<r) * physic.NanoAmpere
}

// Rate is the SpO2 sample rate.
type Rate byte

// SpO2 Sample Rate Control
const (
	SR50 Rate = iota
	SR100
	SR200
	SR400
	SR800
	SR1000
	SR1600
	SR3200
)

var rates = [...]int64{50, 100, 200, 400, 800, 1000, 1600, 3200}

// Frequency returns the sample rate. Invalid rates return 0.
func (r Rate) Frequency() physic.Frequency {
	if int(r) >= len(rates) {
		return 0
	}
	return physic.Frequency(rates[r]) * physic.Hertz
}

// Width is the LED pulse width.
type Width byte

// LED Pulse Width Control
const (
	PW69 Width = iota
	PW118
	PW215
	PW411
)

var widths = [...]time.Duration{69 * time.Microsecond, 118 * time.Microsecond, 215 * time.Microsecond, 411 * time.Microsecond}

// Duration returns the LED pulse width. Invalid widths return 0.
func (w Width) Duration() time.Duration {
	if int(w) >= len(widths) {
		return 0
	}
	return widths[w]
}

// Average is the number of samples averaged per FIFO sample.
type Average byte

// Sample averaging.
const (
	Avg1 Average = iota
	Avg2
	Avg4
	Avg8
	Avg16
	Avg32
)

// Samples returns the number of samples averaged.
func (a Average) Samples() int {
	return 1 << a
}

// OverflowPolicy controls what the FIFO does when it is full.
type OverflowPolicy byte

// Overflow policies.
const (
	// OverflowStop keeps the FIFO untouched until it is read.
	OverflowStop OverflowPolicy = iota
	// OverflowRollover overwrites the oldest samples.
	OverflowRollover
)
