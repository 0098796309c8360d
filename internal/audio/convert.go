package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the width of one mono signed 16-bit little-endian sample,
// the only PCM layout the assistant moves around.
const BytesPerSample = 2

// ResamplePCM converts mono 16-bit little-endian PCM between sample rates
// using linear interpolation. A trailing odd byte is dropped.
func ResamplePCM(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}

	in := decode(pcm)
	ratio := float64(toRate) / float64(fromRate)
	out := make([]float32, int(math.Ceil(float64(len(in))*ratio)))
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		switch {
		case idx+1 < len(in):
			out[i] = in[idx]*(1-frac) + in[idx+1]*frac
		case idx < len(in):
			out[i] = in[idx]
		}
	}
	return encode(out)
}

// decode maps PCM samples onto [-1, 1).
func decode(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))) / 32768.0
	}
	return out
}

func encode(samples []float32) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		s = max(-1.0, min(1.0, s))
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(int16(s*32767.0)))
	}
	return pcm
}
