package main

import "github.com/cgxeiji/pulseox"

// waveSpan is the full scale of the CMS50D waveform, which the reflective
// channels are scaled to.
const waveSpan = 127

// Point is one plotted row, sent to the browser as JSON.
type Point struct {
	T     float64  `json:"t"`
	BPM   *uint8   `json:"bpm,omitempty"`
	SpO2  *uint8   `json:"spo2,omitempty"`
	Wave  *uint8   `json:"wave,omitempty"`
	Red   *float64 `json:"red,omitempty"`
	IR    *float64 `json:"ir,omitempty"`
	Green *float64 `json:"green,omitempty"`
}

// plotter scales the reflective channels against a sliding window of their
// recent values.
type plotter struct {
	windows [3]*pulseox.Window
}

func newPlotter() *plotter {
	p := &plotter{}
	for i := range p.windows {
		p.windows[i] = pulseox.NewWindow(windowWidth)
	}
	return p
}

func (p *plotter) point(r pulseox.Row) Point {
	pt := Point{T: r.Elapsed.Seconds()}
	if r.HasTrans {
		s := r.Trans
		pt.BPM, pt.SpO2, pt.Wave = &s.HeartRate, &s.SpO2, &s.Waveform
	}
	if r.HasReflect {
		dst := []**float64{&pt.Red, &pt.IR, &pt.Green}
		for i, v := range r.Reflect.Channels() {
			w := p.windows[i]
			w.Add(float64(v))
			scaled := w.Scale(float64(v), waveSpan)
			*dst[i] = &scaled
		}
	}
	return pt
}
