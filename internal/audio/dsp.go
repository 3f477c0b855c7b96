package audio

import "math"

// Enhancement thresholds and targets. A signal below any of the quality
// floors is treated as defective output, so enhancement runs even when a
// caller disabled it.
const (
	targetPeak    = 0.85
	softClipKnee  = 0.95
	noiseGate     = 0.01
	silenceFloor  = 0.001 // below this peak, normalization would only amplify noise
	minPowerDB    = -40.0
	maxQuietFrac  = 0.5
	minHealthPeak = 0.1
)

// Stats summarizes signal quality of a waveform.
type Stats struct {
	PowerDB      float64 // mean signal power in dB
	NearZeroFrac float64 // fraction of samples below the noise gate
	Peak         float64 // maximum absolute amplitude
}

// Analyze computes signal statistics over samples.
func Analyze(samples []float32) Stats {
	if len(samples) == 0 {
		return Stats{PowerDB: math.Inf(-1), NearZeroFrac: 1}
	}

	var sumSq float64
	var nearZero int
	peak := 0.0
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
		if math.Abs(v) < noiseGate {
			nearZero++
		}
	}

	power := sumSq / float64(len(samples))
	powerDB := math.Inf(-1)
	if power > 0 {
		powerDB = 10 * math.Log10(power)
	}

	return Stats{
		PowerDB:      powerDB,
		NearZeroFrac: float64(nearZero) / float64(len(samples)),
		Peak:         peak,
	}
}

// NeedsEnhancement reports whether the signal is near-silent or clipped-down
// enough that enhancement must run regardless of caller preference.
func (s Stats) NeedsEnhancement() bool {
	return s.PowerDB < minPowerDB || s.NearZeroFrac > maxQuietFrac || s.Peak < minHealthPeak
}

// Enhance applies the post-processing chain in place and returns the buffer:
// peak normalization toward the target amplitude, a tanh soft-clip knee
// above the clip threshold, then a noise gate. The transform is a no-op on
// audio that is already clean (peak at or below the target, nothing above
// the knee, no sub-gate samples).
func Enhance(samples []float32) []float32 {
	stats := Analyze(samples)

	// Peak-normalize toward the target. Healthy audio already under the
	// target is left alone; a near-silent signal (below the silence floor)
	// is never boosted, since that would only amplify noise.
	if stats.Peak >= silenceFloor && (stats.Peak > targetPeak || stats.NeedsEnhancement()) {
		gain := float32(targetPeak / stats.Peak)
		for i := range samples {
			samples[i] *= gain
		}
	}

	for i, s := range samples {
		// Soft-clip overshoot with a tanh knee to avoid hard clipping edges.
		if a := math.Abs(float64(s)); a > softClipKnee {
			sign := 1.0
			if s < 0 {
				sign = -1.0
			}
			excess := a - softClipKnee
			samples[i] = float32(sign * (softClipKnee + (1-softClipKnee)*math.Tanh(excess/(1-softClipKnee))))
		}

		// Gate residual noise.
		if math.Abs(float64(samples[i])) < noiseGate {
			samples[i] = 0
		}
	}

	return samples
}
