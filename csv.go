package pulseox

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cgxeiji/pulseox/max30101"
)

var reflectColumns = map[max30101.Mode][]string{
	max30101.ModeSpO2:  {"Reflect: Red", "Reflect: IR"},
	max30101.ModeMulti: {"Reflect: Red", "Reflect: IR", "Reflect: Green"},
}

// CSVWriter writes rows as comma separated values, one column per value of
// the attached sensors.
type CSVWriter struct {
	w       *csv.Writer
	trans   bool
	reflect max30101.Mode
	header  bool
	record  []string
}

// NewCSVWriter returns a writer for rows with a transmissive sample (if trans)
// and a reflective sample in mode reflect (0 if none).
func NewCSVWriter(w io.Writer, trans bool, reflect max30101.Mode) *CSVWriter {
	return &CSVWriter{
		w:       csv.NewWriter(w),
		trans:   trans,
		reflect: reflect,
	}
}

// NewCollectorCSVWriter returns a writer matching the sensors of c.
func NewCollectorCSVWriter(w io.Writer, c *Collector) *CSVWriter {
	return NewCSVWriter(w, c.HasTrans(), c.ReflectMode())
}

// Header returns the column names.
func (cw *CSVWriter) Header() []string {
	h := []string{"time"}
	if cw.trans {
		h = append(h, "bpm", "spo2", "Trans: Wave")
	}
	return append(h, reflectColumns[cw.reflect]...)
}

// Write writes r, preceded by the header on the first call. Missing samples
// are written as empty fields.
func (cw *CSVWriter) Write(r Row) error {
	if !cw.header {
		if err := cw.w.Write(cw.Header()); err != nil {
			return err
		}
		cw.header = true
	}

	rec := append(cw.record[:0], strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 6, 64))
	if cw.trans {
		if r.HasTrans {
			rec = append(rec,
				strconv.Itoa(int(r.Trans.HeartRate)),
				strconv.Itoa(int(r.Trans.SpO2)),
				strconv.Itoa(int(r.Trans.Waveform)),
			)
		} else {
			rec = append(rec, "", "", "")
		}
	}

	var words []uint32
	if r.HasReflect {
		words = r.Reflect.Channels()
	}
	for i := range reflectColumns[cw.reflect] {
		if i < len(words) {
			rec = append(rec, strconv.FormatUint(uint64(words[i]), 10))
		} else {
			rec = append(rec, "")
		}
	}
	cw.record = rec

	return cw.w.Write(rec)
}

// Flush writes buffered rows to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}
