// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation, chunk continuity and rate changes
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResampler(t *testing.T) {
	r := New(44100, 48000, 2)

	assert.Equal(t, 44100, r.InputRate())
	assert.Equal(t, 48000, r.OutputRate())
	assert.False(t, r.Passthrough())
	assert.True(t, New(48000, 48000, 1).Passthrough())
}

func TestResamplePassthroughIsContinuous(t *testing.T) {
	r := New(48000, 48000, 1)
	var got []float32

	for chunk := 0; chunk < 3; chunk++ {
		in := make([]float32, 4)
		for i := range in {
			in[i] = float32(chunk*4 + i)
		}
		out := make([]float32, r.OutputSamplesNeeded(len(in)))
		n := r.Resample(in, out)
		got = append(got, out[:n]...)
	}

	// The final frame is held back for the next chunk
	require.Len(t, got, 11)
	for i, v := range got {
		assert.Equal(t, float32(i), v)
	}
}

func TestResampleUpsampling(t *testing.T) {
	r := New(24000, 48000, 2)

	input := make([]float32, 200)
	for i := 0; i < 100; i++ {
		input[i*2] = float32(i)
		input[i*2+1] = -float32(i)
	}

	output := make([]float32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	// Two output frames per input frame, minus the held-back frame
	assert.Equal(t, 2*198, n)
	assert.InDelta(t, 0.5, output[2], 1e-6)
	assert.InDelta(t, -0.5, output[3], 1e-6)
}

func TestResampleDownsampling(t *testing.T) {
	r := New(48000, 24000, 1)

	input := make([]float32, 100)
	for i := range input {
		input[i] = float32(i)
	}

	output := make([]float32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	assert.Equal(t, 50, n)
	assert.Equal(t, float32(0), output[0])
	assert.Equal(t, float32(2), output[1])
}

func TestSetInputRate(t *testing.T) {
	r := New(48000, 48000, 1)
	in := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]float32, 32)

	r.SetInputRate(96000)
	assert.Equal(t, 96000, r.InputRate())
	n := r.Resample(in, out)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{0, 2, 4, 6}, out[:n])

	r.SetInputRate(0)
	assert.Equal(t, 96000, r.InputRate())
}

func TestResampleEmpty(t *testing.T) {
	r := New(44100, 48000, 2)
	assert.Zero(t, r.Resample(nil, make([]float32, 8)))
}

func TestReset(t *testing.T) {
	r := New(48000, 48000, 1)
	out := make([]float32, 8)
	r.Resample([]float32{5, 6, 7}, out)
	r.Reset()

	n := r.Resample([]float32{1, 2}, out)
	assert.Equal(t, []float32{1}, out[:n])
}

func TestSamplesNeeded(t *testing.T) {
	r := New(44100, 48000, 2)
	assert.GreaterOrEqual(t, r.OutputSamplesNeeded(882), 960)
	assert.InDelta(t, 882, r.InputSamplesNeeded(960), 2)
}
