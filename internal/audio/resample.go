package audio

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	out := make([]int16, n)
	step := float64(fromRate) / float64(toRate)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		a := float64(samples[idx])
		b := a
		if idx+1 < len(samples) {
			b = float64(samples[idx+1])
		}
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// DownsamplePCM16 reduces the rate of little-endian PCM16 audio by an integer factor.
func DownsamplePCM16(pcm []byte, factor int) []byte {
	if factor <= 1 {
		return pcm
	}
	samples := DecodePCM16(pcm)
	out := make([]int16, 0, len(samples)/factor+1)
	for i := 0; i < len(samples); i += factor {
		out = append(out, samples[i])
	}
	return EncodePCM16(out)
}
