package experiment

// Repair is the result of RepairTimestamps
type Repair struct {
	// Times is the corrected time channel, same length as the input
	Times []float64

	// Jumps is the number of backwards steps that were found
	Jumps int
}

// RepairTimestamps removes the backwards steps from a time channel whose
// clock restarts from zero at every cycle.  Wherever t[i] < t[i-1], the value
// t[i-1] is added to every later time, so the clock appears to continue from
// where it left off.  The input is not modified.
//
// The output is non-decreasing when the input only decreases at resets and
// is non-negative, which makes the repair idempotent.
func RepairTimestamps(t []float64) Repair {
	out := make([]float64, len(t))
	if len(t) == 0 {
		return Repair{Times: out}
	}
	var (
		offset float64
		jumps  int
	)
	out[0] = t[0]
	for i := 1; i < len(t); i++ {
		if t[i] < t[i-1] {
			offset += t[i-1]
			jumps++
		}
		out[i] = t[i] + offset
	}
	return Repair{Times: out, Jumps: jumps}
}

// repaired returns samples with their times replaced by times
func repaired(samples []Sample, times []float64) []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	for i := range out {
		out[i].Time = times[i]
	}
	return out
}
