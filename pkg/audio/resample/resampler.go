// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Interpolates interleaved float32 frames and carries state across chunks
package resample

// Resampler performs linear interpolation to convert between sample rates.
// It is not safe for concurrent use.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position indexes a virtual sequence whose frame 0 is the last frame of
	// the previous chunk and whose frame i>0 is input frame i-1
	position float64
	primed   bool
	last     []float32 // one sample per channel
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		last:       make([]float32, channels),
	}
}

// InputRate returns the current input sample rate
func (r *Resampler) InputRate() int {
	return r.inputRate
}

// OutputRate returns the output sample rate
func (r *Resampler) OutputRate() int {
	return r.outputRate
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// SetInputRate retunes the resampler without dropping the fractional position
func (r *Resampler) SetInputRate(rate int) {
	if rate <= 0 {
		return
	}
	r.inputRate = rate
	r.ratio = float64(rate) / float64(r.outputRate)
}

// Resample converts input samples to output sample rate using linear interpolation.
// input: interleaved samples at the input rate
// output: interleaved samples at the output rate; size it with OutputSamplesNeeded
// Returns the number of samples written. The final input frame is held back
// and interpolated against the start of the next chunk.
func (r *Resampler) Resample(input []float32, output []float32) int {
	ch := r.channels
	inputFrames := len(input) / ch
	if inputFrames == 0 {
		return 0
	}
	if !r.primed {
		r.position = 1
		r.primed = true
	}

	sample := func(frame, c int) float32 {
		if frame == 0 {
			return r.last[c]
		}
		return input[(frame-1)*ch+c]
	}

	outputFrames := len(output) / ch
	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx >= inputFrames {
			break
		}

		frac := float32(r.position - float64(idx))
		for c := 0; c < ch; c++ {
			s1 := sample(idx, c)
			s2 := sample(idx+1, c)
			output[outIdx*ch+c] = s1*(1-frac) + s2*frac
		}

		outIdx++
		r.position += r.ratio
	}

	copy(r.last, input[(inputFrames-1)*ch:inputFrames*ch])
	r.position -= float64(inputFrames)
	if r.position < 0 {
		// Output was too small to consume the chunk; skip what was left
		r.position = 0
	}

	return outIdx * ch
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.last {
		r.last[i] = 0
	}
}

// OutputSamplesNeeded returns an output size large enough for one Resample call
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio) + 2
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
