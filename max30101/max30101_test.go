package max30101

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2ctest"
	"periph.io/x/periph/conn/physic"
)

// fakeBus emulates the MAX30101 register file. FIFO data reads pop queued
// bytes and advance the read pointer by one sample.
type fakeBus struct {
	regs   [256]byte
	fifo   []byte
	writes int
	resets int
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.powerOn()
	return b
}

func (b *fakeBus) powerOn() {
	b.regs = [256]byte{}
	b.regs[RegPartID] = PartID
	b.regs[RegRevID] = 0x03
	b.regs[IntStat1] = PowerReady
	b.fifo = nil
}

func (b *fakeBus) String() string { return "fake" }
func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if addr != Addr {
		return errors.New("fake: nack")
	}
	if len(w) == 0 {
		return errors.New("fake: missing register")
	}
	reg := Register(w[0])
	if len(w) > 1 {
		b.writes++
		b.write(reg, w[1])
	}
	if len(r) == 0 {
		return nil
	}
	if reg == FIFOData {
		for i := range r {
			if len(b.fifo) == 0 {
				r[i] = 0
				continue
			}
			r[i], b.fifo = b.fifo[0], b.fifo[1:]
		}
		b.regs[FIFORdPtr] = (b.regs[FIFORdPtr] + 1) & ptrMask
		return nil
	}
	for i := range r {
		r[i] = b.regs[int(reg)+i]
	}
	return nil
}

func (b *fakeBus) write(reg Register, v byte) {
	switch {
	case reg == ModeCfg && v&fieldReset.mask() != 0:
		b.resets++
		b.powerOn()
	case reg == TempCfg && v&TempEna != 0:
		b.regs[TempInt] = 25
		b.regs[TempFrac] = 4
		b.regs[TempCfg] = 0
	default:
		b.regs[reg] = v
	}
}

// push queues one sample and advances the write pointer.
func (b *fakeBus) push(sample ...byte) {
	b.fifo = append(b.fifo, sample...)
	b.regs[FIFOWrPtr] = (b.regs[FIFOWrPtr] + 1) & ptrMask
}

func scenarioConfig() Config {
	return Config{
		Mode:       ModeSpO2,
		LEDCurrent: 18,
		ADCRange:   ADC8192,
		SampleRate: SR100,
		PulseWidth: PW411,
		Average:    Avg4,
	}
}

func newTestDevice(t *testing.T, cfg Config) (*Device, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	d, err := NewOnBus(bus, 0, cfg, PollBackoff(Backoff{}))
	if err != nil {
		t.Fatalf("NewOnBus() error = %v", err)
	}
	return d, bus
}

func TestNewOnBusSpO2(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())

	if got := bus.regs[ModeCfg] & 0b111; got != 0x03 {
		t.Errorf("mode bits = %#x, want 0x03", got)
	}
	if got := bus.regs[Led1PA]; got != 90 {
		t.Errorf("LED1 amplitude = %d, want 90", got)
	}
	if got := bus.regs[Led2PA]; got != 90 {
		t.Errorf("LED2 amplitude = %d, want 90", got)
	}
	if got := bus.regs[Led3PA]; got != 0 {
		t.Errorf("LED3 amplitude = %d, want 0 in SpO2 mode", got)
	}
	if got, want := bus.regs[SpO2Cfg], byte(2<<5|1<<2|3); got != want {
		t.Errorf("SpO2 config = %#08b, want %#08b", got, want)
	}
	if got, want := bus.regs[FIFOCfg], byte(2<<5|1<<4); got != want {
		t.Errorf("FIFO config = %#08b, want %#08b", got, want)
	}
	if got := bus.regs[IntEna1]; got != NewFIFOData|AlmostFull {
		t.Errorf("interrupt enable = %#08b, want %#08b", got, NewFIFOData|AlmostFull)
	}
	if bus.resets != 1 {
		t.Errorf("device reset %d times, want 1", bus.resets)
	}
	if d.Mode() != ModeSpO2 {
		t.Errorf("Mode() = %v, want %v", d.Mode(), ModeSpO2)
	}
}

func TestNewOnBusMulti(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Mode = ModeMulti
	_, bus := newTestDevice(t, cfg)

	if got := bus.regs[ModeCfg] & 0b111; got != 0x07 {
		t.Errorf("mode bits = %#x, want 0x07", got)
	}
	if got := bus.regs[MultiLedModeS2S1]; got != 0x21 {
		t.Errorf("slot 1/2 register = %#x, want 0x21", got)
	}
	if got := bus.regs[MultiLedModeS4S3]; got != 0x03 {
		t.Errorf("slot 3/4 register = %#x, want 0x03", got)
	}
	for _, reg := range []Register{Led1PA, Led2PA, Led3PA} {
		if got := bus.regs[reg]; got != 90 {
			t.Errorf("%v amplitude = %d, want 90", reg, got)
		}
	}
}

func TestNewOnBusErrors(t *testing.T) {
	t.Run("wrong part", func(t *testing.T) {
		bus := newFakeBus()
		bus.regs[RegPartID] = 0x11
		if _, err := NewOnBus(bus, 0, DefaultConfig()); !errors.Is(err, ErrNotDevice) {
			t.Fatalf("NewOnBus() error = %v, want ErrNotDevice", err)
		}
	})

	t.Run("no device", func(t *testing.T) {
		bus := newFakeBus()
		_, err := NewOnBus(bus, 0x58, DefaultConfig())
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("NewOnBus() error = %v, want *TransportError", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		bus := newFakeBus()
		cfg := DefaultConfig()
		cfg.SampleRate = 8
		if _, err := NewOnBus(bus, 0, cfg); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("NewOnBus() error = %v, want ErrOutOfRange", err)
		}
		if bus.writes != 0 {
			t.Errorf("%d writes on invalid config, want 0", bus.writes)
		}
	})
}

func TestOccupancy(t *testing.T) {
	tests := []struct {
		name   string
		wr, rd byte
		want   int
	}{
		{"empty", 0, 0, 0},
		{"one", 1, 0, 1},
		{"no wrap", 5, 3, 2},
		{"wrapped", 5, 30, 7},
		{"wrapped by one", 0, 31, 1},
		{"nearly full", 31, 0, 31},
		{"high bits ignored", 0xE5, 0x1E, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := occupancy(tt.wr, tt.rd); got != tt.want {
				t.Errorf("occupancy(%d, %d) = %d, want %d", tt.wr, tt.rd, got, tt.want)
			}
		})
	}
}

// The FIFO ring has 32 slots. A 31 slot ring undercounts every wrapped
// pointer pair.
func TestFIFODepth(t *testing.T) {
	if fifoDepth != 32 {
		t.Fatalf("fifoDepth = %d, want 32", fifoDepth)
	}
	if got := occupancy(5, 30); got != 32-30+5 {
		t.Errorf("occupancy(5, 30) = %d, want %d", got, 32-30+5)
	}
}

func TestAvailable(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())

	bus.regs[FIFOWrPtr] = 5
	bus.regs[FIFORdPtr] = 30
	n, err := d.Available()
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Errorf("Available() = %d, want 7", n)
	}

	bus.regs[FIFOWrPtr] = 30
	ready, err := d.IsSampleReady()
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Error("IsSampleReady() = true with equal pointers")
	}
}

func TestLEDRegister(t *testing.T) {
	tests := []struct {
		mA      float64
		want    byte
		wantErr bool
	}{
		{mA: 0, want: 0},
		{mA: 0.2, want: 1},
		{mA: 7, want: 35},
		{mA: 12.4, want: 62},
		{mA: 18, want: 90},
		{mA: 51, want: 255},
		{mA: -0.2, wantErr: true},
		{mA: 51.2, wantErr: true},
		{mA: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		got, err := ledRegister(tt.mA)
		if tt.wantErr {
			if !errors.Is(err, ErrOutOfRange) {
				t.Errorf("ledRegister(%v) error = %v, want ErrOutOfRange", tt.mA, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ledRegister(%v) unexpected error: %v", tt.mA, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ledRegister(%v) = %d, want %d", tt.mA, got, tt.want)
		}
	}
}

func TestSettersPreserveUnrelatedBits(t *testing.T) {
	tests := []struct {
		name string
		reg  Register
		init byte
		set  func(d *Device) error
		want byte
	}{
		{
			name: "sample rate",
			reg:  SpO2Cfg,
			init: 0b1110_0011,
			set:  func(d *Device) error { return d.SetSampleRate(SR1600) },
			want: 0b1111_1011,
		},
		{
			name: "sample rate clears",
			reg:  SpO2Cfg,
			init: 0xFF,
			set:  func(d *Device) error { return d.SetSampleRate(SR50) },
			want: 0b1110_0011,
		},
		{
			name: "adc range",
			reg:  SpO2Cfg,
			init: 0b1001_1111,
			set:  func(d *Device) error { return d.SetADCRange(ADC16384) },
			want: 0xFF,
		},
		{
			name: "pulse width",
			reg:  SpO2Cfg,
			init: 0xFF,
			set:  func(d *Device) error { return d.SetPulseWidth(PW118) },
			want: 0b1111_1101,
		},
		{
			name: "sample average",
			reg:  FIFOCfg,
			init: 0b0001_1111,
			set:  func(d *Device) error { return d.SetSampleAverage(Avg32) },
			want: 0b1011_1111,
		},
		{
			name: "overflow stop",
			reg:  FIFOCfg,
			init: 0xFF,
			set:  func(d *Device) error { return d.SetOverflow(OverflowStop) },
			want: 0b1110_1111,
		},
		{
			name: "almost full",
			reg:  FIFOCfg,
			init: 0xF0,
			set:  func(d *Device) error { return d.SetAlmostFull(0x0A) },
			want: 0xFA,
		},
		{
			name: "mode",
			reg:  ModeCfg,
			init: 0b0011_1100,
			set:  func(d *Device) error { return d.SetMode(ModeSpO2) },
			want: 0b0011_1011,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, bus := newTestDevice(t, scenarioConfig())
			bus.regs[tt.reg] = tt.init

			if err := tt.set(d); err != nil {
				t.Fatalf("setter error: %v", err)
			}
			if got := bus.regs[tt.reg]; got != tt.want {
				t.Errorf("register %v = %#08b, want %#08b", tt.reg, got, tt.want)
			}
		})
	}
}

func TestSettersOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		set  func(d *Device) error
	}{
		{"LED current high", func(d *Device) error { return d.SetLEDCurrent(LEDRed, 51.2) }},
		{"LED current negative", func(d *Device) error { return d.SetLEDCurrent(LEDIR, -1) }},
		{"LED current NaN", func(d *Device) error { return d.SetLEDCurrent(LEDGreen, math.NaN()) }},
		{"LED channel", func(d *Device) error { return d.SetLEDCurrent(LED(4), 10) }},
		{"ADC range", func(d *Device) error { return d.SetADCRange(4) }},
		{"sample rate", func(d *Device) error { return d.SetSampleRate(8) }},
		{"pulse width", func(d *Device) error { return d.SetPulseWidth(4) }},
		{"sample average", func(d *Device) error { return d.SetSampleAverage(6) }},
		{"overflow", func(d *Device) error { return d.SetOverflow(2) }},
		{"almost full", func(d *Device) error { return d.SetAlmostFull(16) }},
		{"mode", func(d *Device) error { return d.SetMode(0b010) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus()
			rec := &i2ctest.Record{Bus: bus}
			d, err := NewOnBus(rec, 0, scenarioConfig())
			if err != nil {
				t.Fatal(err)
			}
			before := bus.regs
			rec.Ops = nil

			err = tt.set(d)
			if !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("error = %v, want ErrOutOfRange", err)
			}
			if len(rec.Ops) != 0 {
				t.Errorf("%d bus transactions on invalid input, want 0", len(rec.Ops))
			}
			if bus.regs != before {
				t.Error("registers changed on invalid input")
			}
		})
	}
}

func TestOutOfRangeError(t *testing.T) {
	bus := newFakeBus()
	d, err := NewOnBus(bus, 0, scenarioConfig())
	if err != nil {
		t.Fatal(err)
	}

	err = d.SetSampleRate(9)
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("error = %v, want *OutOfRangeError", err)
	}
	if oor.Param != "sample rate" || oor.Got != 9 || oor.Min != 0 || oor.Max != 7 {
		t.Errorf("OutOfRangeError = %+v", oor)
	}
}

func TestOptionsReturnPrevious(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())

	old, err := d.Options(SampleRate(SR400))
	if err != nil {
		t.Fatal(err)
	}
	if got := fieldSampleRate.get(bus.regs[SpO2Cfg]); got != byte(SR400) {
		t.Fatalf("sample rate = %d, want %d", got, SR400)
	}

	if _, err := d.Options(old); err != nil {
		t.Fatal(err)
	}
	if got := fieldSampleRate.get(bus.regs[SpO2Cfg]); got != byte(SR100) {
		t.Errorf("restored sample rate = %d, want %d", got, SR100)
	}

	old, err = d.Options(LEDCurrent(LEDRed, 51))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Options(old); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[Led1PA]; got != 90 {
		t.Errorf("restored LED1 amplitude = %d, want 90", got)
	}

	old, err = d.Options(InterruptEnable(PowerReady))
	if err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[IntEna1]; got != PowerReady {
		t.Fatalf("interrupt enable = %#08b, want %#08b", got, PowerReady)
	}
	if _, err := d.Options(old); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[IntEna1]; got != NewFIFOData|AlmostFull {
		t.Errorf("restored interrupt enable = %#08b, want %#08b", got, NewFIFOData|AlmostFull)
	}
}

func TestReadSample(t *testing.T) {
	t.Run("spo2", func(t *testing.T) {
		d, bus := newTestDevice(t, scenarioConfig())
		bus.push(0x01, 0x02, 0x03, 0x04, 0x05, 0x06)

		s, err := d.ReadSample(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		want := Sample{Mode: ModeSpO2, Red: 0x010203, IR: 0x040506}
		if s != want {
			t.Errorf("ReadSample() = %+v, want %+v", s, want)
		}
		if got := len(s.Channels()); got != 2 {
			t.Errorf("len(Channels()) = %d, want 2", got)
		}
		if n, _ := d.Available(); n != 0 {
			t.Errorf("Available() = %d after read, want 0", n)
		}
	})

	t.Run("multi", func(t *testing.T) {
		cfg := scenarioConfig()
		cfg.Mode = ModeMulti
		d, bus := newTestDevice(t, cfg)
		bus.push(0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x01, 0x03, 0xA0, 0x5C)

		s, err := d.ReadSample(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		want := Sample{Mode: ModeMulti, Red: 0xFFFFFF, IR: 0x000001, Green: 0x03A05C}
		if s != want {
			t.Errorf("ReadSample() = %+v, want %+v", s, want)
		}
		if got := s.Channels(); len(got) != 3 || got[2] != 0x03A05C {
			t.Errorf("Channels() = %v", got)
		}
	})

	t.Run("waits for data", func(t *testing.T) {
		d, bus := newTestDevice(t, scenarioConfig())

		polls := 0
		d.dev.Bus = txHook{bus, func(reg Register) {
			if reg == FIFORdPtr {
				polls++
				if polls == 3 {
					bus.push(0, 0, 1, 0, 0, 2)
				}
			}
		}}

		s, err := d.ReadSample(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if s.Red != 1 || s.IR != 2 {
			t.Errorf("ReadSample() = %+v", s)
		}
		if polls != 4 {
			t.Errorf("FIFO polled %d times, want 4", polls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		d, _ := newTestDevice(t, scenarioConfig())
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := d.ReadSample(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("ReadSample() error = %v, want context.DeadlineExceeded", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		d, bus := newTestDevice(t, scenarioConfig())
		if err := d.Reset(); err != nil {
			t.Fatal(err)
		}
		bus.push(1, 2, 3, 4, 5, 6)

		if _, err := d.ReadSample(context.Background()); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("ReadSample() error = %v, want ErrNotConfigured", err)
		}
	})
}

// txHook calls fn with the register of every bus transaction.
type txHook struct {
	i2c.Bus
	fn func(reg Register)
}

func (h txHook) Tx(addr uint16, w, r []byte) error {
	if len(w) > 0 {
		h.fn(Register(w[0]))
	}
	return h.Bus.Tx(addr, w, r)
}

func TestReadAvailable(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())
	bus.regs[FIFOWrPtr] = 30
	bus.regs[FIFORdPtr] = 30
	for i := byte(0); i < 4; i++ {
		bus.push(0, 0, i, 0, 0, i+10)
	}

	samples, err := d.ReadAvailable(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 4 {
		t.Fatalf("len(ReadAvailable()) = %d, want 4", len(samples))
	}
	for i, s := range samples {
		if s.Red != uint32(i) || s.IR != uint32(i+10) {
			t.Errorf("sample %d = %+v", i, s)
		}
	}
	if got := bus.regs[FIFORdPtr]; got != 2 {
		t.Errorf("read pointer = %d, want 2", got)
	}
}

func TestResetIdempotent(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())

	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	once := bus.regs
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if bus.regs != once {
		t.Error("second reset changed register state")
	}

	want := newFakeBus().regs
	if bus.regs != want {
		t.Error("registers not at power-on values after reset")
	}
	if d.Mode() != 0 {
		t.Errorf("Mode() = %v after reset, want 0", d.Mode())
	}
}

func TestResetTransactions(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: Addr, W: []byte{byte(ModeCfg)}, R: []byte{0x03}},
			{Addr: Addr, W: []byte{byte(ModeCfg), 0x43}},
			{Addr: Addr, W: []byte{byte(ModeCfg)}, R: []byte{0x00}},
		},
		DontPanic: true,
	}
	d := &Device{dev: &i2c.Dev{Addr: Addr, Bus: pb}}

	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTemperature(t *testing.T) {
	d, _ := newTestDevice(t, scenarioConfig())

	temp, err := d.Temperature()
	if err != nil {
		t.Fatal(err)
	}
	if temp != 25.25 {
		t.Errorf("Temperature() = %v, want 25.25", temp)
	}
}

func TestShutdownStartup(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())

	if err := d.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[ModeCfg]; got != 0x83 {
		t.Errorf("mode config = %#x after shutdown, want 0x83", got)
	}
	if err := d.Startup(); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[ModeCfg]; got != 0x03 {
		t.Errorf("mode config = %#x after startup, want 0x03", got)
	}
}

func TestClose(t *testing.T) {
	d, bus := newTestDevice(t, scenarioConfig())

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if bus.regs != newFakeBus().regs {
		t.Error("registers not at power-on values after Close")
	}
}

func TestLevels(t *testing.T) {
	if got := ADC8192.FullScale(); got != 8192*physic.NanoAmpere {
		t.Errorf("ADC8192.FullScale() = %v", got)
	}
	if got := SR3200.Frequency(); got != 3200*physic.Hertz {
		t.Errorf("SR3200.Frequency() = %v", got)
	}
	if got := Rate(8).Frequency(); got != 0 {
		t.Errorf("Rate(8).Frequency() = %v, want 0", got)
	}
	if got := PW411.Duration(); got != 411*time.Microsecond {
		t.Errorf("PW411.Duration() = %v", got)
	}
	if got := Avg32.Samples(); got != 32 {
		t.Errorf("Avg32.Samples() = %d", got)
	}

	for _, tt := range []struct {
		in   string
		want Mode
	}{{"spo2", ModeSpO2}, {"multi", ModeMulti}} {
		m, err := ParseMode(tt.in)
		if err != nil || m != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, m, err)
		}
	}
	if _, err := ParseMode("hr"); err == nil {
		t.Error("ParseMode(\"hr\") succeeded")
	}
}
