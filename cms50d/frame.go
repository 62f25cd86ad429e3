package cms50d

// FrameSize is the length of every frame sent by the device.
const FrameSize = 9

// Handshake is the frame that makes the device start streaming.
var Handshake = Frame{0x7D, 0x81, 0xA1, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}

// Data byte offsets within a frame. Only bits 0-6 carry data.
const (
	offWaveform  = 3
	offHeartRate = 5
	offSpO2      = 6

	dataMask = 0x7F
	flagBit  = 0x80
)

// Frame is a raw frame as read from the port.
type Frame [FrameSize]byte

// Sample holds the values carried by one frame.
type Sample struct {
	// HeartRate in beats per minute, 0-127.
	HeartRate uint8
	// SpO2 in percent, 0-127.
	SpO2 uint8
	// Waveform is one pulse waveform point, 0-127.
	Waveform uint8
	// Status keeps the high bit of the waveform, heart rate and SpO2 bytes
	// in bits 0, 1 and 2. Their meaning is unknown, possibly a finger-out
	// flag.
	Status uint8
}

// Decode extracts the sample carried by f. Frames carry no checksum.
func Decode(f Frame) Sample {
	return Sample{
		HeartRate: f[offHeartRate] & dataMask,
		SpO2:      f[offSpO2] & dataMask,
		Waveform:  f[offWaveform] & dataMask,
		Status: (f[offWaveform]&flagBit)>>7 |
			(f[offHeartRate]&flagBit)>>6 |
			(f[offSpO2]&flagBit)>>5,
	}
}
