// Package setup opens the sensors selected on the command line.
package setup

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/cms50d"
	"github.com/cgxeiji/pulseox/max30101"
	"periph.io/x/periph/conn/physic"
)

// Flags holds the sensor selection and MAX30101 settings.
type Flags struct {
	Serial string
	I2C    string
	NoI2C  bool
	Addr   uint
	Mode   string
	LED    float64
	ADC    int
	Rate   int
	Width  int
	Avg    int
}

// Register defines the flags on fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	def := max30101.DefaultConfig()
	fs.StringVar(&f.Serial, "serial", "", "CMS50D serial port (empty disables the transmissive sensor)")
	fs.StringVar(&f.I2C, "i2c", "", "MAX30101 I2C bus (empty uses the first bus)")
	fs.BoolVar(&f.NoI2C, "noi2c", false, "disable the reflective sensor")
	fs.UintVar(&f.Addr, "addr", max30101.Addr, "MAX30101 I2C address")
	fs.StringVar(&f.Mode, "mode", def.Mode.String(), "MAX30101 mode: spo2 or multi")
	fs.Float64Var(&f.LED, "led", def.LEDCurrent, "LED pulse amplitude in mA")
	fs.IntVar(&f.ADC, "adc", int(def.ADCRange.FullScale()/physic.NanoAmpere), "ADC full scale range in nA")
	fs.IntVar(&f.Rate, "rate", int(def.SampleRate.Frequency()/physic.Hertz), "sample rate in Hz")
	fs.IntVar(&f.Width, "width", int(def.PulseWidth.Duration()/time.Microsecond), "LED pulse width in us")
	fs.IntVar(&f.Avg, "avg", def.Average.Samples(), "samples averaged per FIFO sample")
}

// Config converts the flags to a MAX30101 configuration.
func (f *Flags) Config() (max30101.Config, error) {
	var (
		cfg max30101.Config
		err error
		ok  bool
	)
	if cfg.Mode, err = max30101.ParseMode(f.Mode); err != nil {
		return cfg, err
	}
	cfg.LEDCurrent = f.LED

	if cfg.ADCRange, ok = lookup(max30101.ADC2048, max30101.ADC16384, func(r max30101.Range) int {
		return int(r.FullScale() / physic.NanoAmpere)
	}, f.ADC); !ok {
		return cfg, fmt.Errorf("setup: unsupported ADC range %dnA", f.ADC)
	}
	if cfg.SampleRate, ok = lookup(max30101.SR50, max30101.SR3200, func(r max30101.Rate) int {
		return int(r.Frequency() / physic.Hertz)
	}, f.Rate); !ok {
		return cfg, fmt.Errorf("setup: unsupported sample rate %dHz", f.Rate)
	}
	if cfg.PulseWidth, ok = lookup(max30101.PW69, max30101.PW411, func(w max30101.Width) int {
		return int(w.Duration() / time.Microsecond)
	}, f.Width); !ok {
		return cfg, fmt.Errorf("setup: unsupported pulse width %dus", f.Width)
	}
	if cfg.Average, ok = lookup(max30101.Avg1, max30101.Avg32, max30101.Average.Samples, f.Avg); !ok {
		return cfg, fmt.Errorf("setup: unsupported sample average %d", f.Avg)
	}

	return cfg, cfg.Validate()
}

// lookup returns the level in [first, last] whose unit value is v.
func lookup[L ~byte](first, last L, unit func(L) int, v int) (L, bool) {
	for l := first; l <= last; l++ {
		if unit(l) == v {
			return l, true
		}
	}
	return 0, false
}

// Open opens the selected sensors and returns a collector over them.
func (f *Flags) Open(logger *log.Logger) (*pulseox.Collector, error) {
	var (
		trans   pulseox.Transmissive
		reflect pulseox.Reflective
	)

	if f.Serial != "" {
		d, err := cms50d.Open(f.Serial, cms50d.Logger(logger))
		if err != nil {
			return nil, err
		}
		logger.Printf("CMS50D streaming on %s", f.Serial)
		trans = d
	}

	if !f.NoI2C {
		cfg, err := f.Config()
		if err != nil {
			closeAll(trans)
			return nil, err
		}
		d, err := max30101.New(f.I2C, uint16(f.Addr), cfg)
		if err != nil {
			closeAll(trans)
			return nil, err
		}
		if rev, err := d.RevID(); err == nil {
			logger.Printf("MAX30101 rev.%d in %s mode", rev, d.Mode())
		}
		reflect = d
	}

	c, err := pulseox.NewCollector(trans, reflect)
	if err != nil {
		closeAll(trans)
		if reflect != nil {
			reflect.Close()
		}
		return nil, err
	}
	return c, nil
}

func closeAll(t pulseox.Transmissive) {
	if t != nil {
		t.Close()
	}
}
