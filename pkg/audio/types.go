// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and sample conversion helpers
package audio

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// SampleFromInt16 converts an int16 sample to float32 in [-1, 1)
func SampleFromInt16(sample int16) float32 {
	return float32(sample) / 32768.0
}

// SampleFrom24Bit converts 24-bit packed bytes (little-endian) to float32
func SampleFrom24Bit(b [3]byte) float32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return float32(val) / 8388608.0
}

// SampleFromInt32 converts a sample of the given bit depth to float32
func SampleFromInt32(sample int32, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		return 0
	}
	return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}

// Clamp limits a float sample to [-1, 1]
func Clamp(sample float32) float32 {
	if sample > 1 {
		return 1
	}
	if sample < -1 {
		return -1
	}
	return sample
}

// Downmix averages each interleaved frame of in into a mono sample in out.
// out must hold at least len(in)/channels samples; the number written is returned.
func Downmix(in []float32, channels int, out []float32) int {
	if channels <= 0 {
		return 0
	}
	frames := len(in) / channels
	if channels == 1 {
		return copy(out, in[:frames])
	}
	for i := 0; i < frames; i++ {
		var total float32
		for ch := 0; ch < channels; ch++ {
			total += in[i*channels+ch]
		}
		out[i] = total / float32(channels)
	}
	return frames
}

// Remix converts interleaved samples from inCh to outCh channels.
// Mono is duplicated across outputs; wider input folds down by averaging.
func Remix(in []float32, inCh, outCh int, out []float32) []float32 {
	if inCh == outCh {
		return append(out[:0], in...)
	}
	frames := len(in) / inCh
	out = out[:0]
	for i := 0; i < frames; i++ {
		frame := in[i*inCh : (i+1)*inCh]
		switch {
		case inCh == 1:
			for ch := 0; ch < outCh; ch++ {
				out = append(out, frame[0])
			}
		case outCh == 1:
			var total float32
			for _, s := range frame {
				total += s
			}
			out = append(out, total/float32(inCh))
		default:
			// Keep the first outCh-1 channels and fold the rest into the last one
			for ch := 0; ch < outCh-1; ch++ {
				out = append(out, frame[ch])
			}
			var total float32
			rest := frame[outCh-1:]
			for _, s := range rest {
				total += s
			}
			out = append(out, total/float32(len(rest)))
		}
	}
	return out
}
