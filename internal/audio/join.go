package audio

const (
	// defaultSilenceFloor is the absolute amplitude below which edge
	// samples are treated as silence when joining clips.
	defaultSilenceFloor = 256

	// crossfadeMs is the overlap applied at each join to avoid clicks.
	crossfadeMs = 10
)

// TrimSilence removes leading and trailing samples whose absolute amplitude
// stays below floor. It never returns nil for non-empty input that is all
// silence; the caller decides whether an empty clip is an error.
func TrimSilence(samples []int16, floor int16) []int16 {
	start := 0
	for start < len(samples) && abs16(samples[start]) < int(floor) {
		start++
	}

	end := len(samples)
	for end > start && abs16(samples[end-1]) < int(floor) {
		end--
	}

	return samples[start:end]
}

// Join concatenates clips in order with silence-trimmed, crossfaded joins.
// The operation is pure: identical inputs always produce identical output.
func Join(clips [][]int16, sampleRate int) []int16 {
	fade := sampleRate * crossfadeMs / 1000

	var out []int16
	for _, clip := range clips {
		trimmed := TrimSilence(clip, defaultSilenceFloor)
		if len(trimmed) == 0 {
			continue
		}
		if len(out) == 0 {
			out = append(out, trimmed...)
			continue
		}

		n := fade
		if n > len(out) {
			n = len(out)
		}
		if n > len(trimmed) {
			n = len(trimmed)
		}

		base := len(out) - n
		for i := 0; i < n; i++ {
			mixed := (int(out[base+i])*(n-i) + int(trimmed[i])*(i+1)) / (n + 1)
			out[base+i] = clampInt16(mixed)
		}
		out = append(out, trimmed[n:]...)
	}

	return out
}

func abs16(v int16) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}
