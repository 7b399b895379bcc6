package audio

func resampleLinear(in []float32, srcSR, dstSR int) []float32 {
	if srcSR == dstSR || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(dstSR) / float64(srcSR)
	outLen := int(float64(len(in))*ratio + 0.9999)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

// Resample converts s16 PCM between sample rates.
func Resample(pcm []int16, srcSR, dstSR int) []int16 {
	if srcSR == dstSR {
		out := make([]int16, len(pcm))
		copy(out, pcm)
		return out
	}
	return FromFloat32(resampleLinear(ToFloat32(pcm), srcSR, dstSR))
}
