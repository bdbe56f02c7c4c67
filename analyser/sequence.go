package analyser

// KeystrokeSequence is a run of keystrokes ending with an Enter, or with the
// last keystroke of the session.
type KeystrokeSequence []Keystroke

// GroupSequences splits keystrokes after every Enter and turns timestamps
// into latencies local to each sequence.
func GroupSequences(keys []Keystroke) []KeystrokeSequence {
	var out []KeystrokeSequence
	start := 0
	for i, k := range keys {
		if k.Kind != KindEnter && i != len(keys)-1 {
			continue
		}
		seq := make(KeystrokeSequence, i+1-start)
		copy(seq, keys[start:i+1])
		seq.relativize()
		out = append(out, seq)
		start = i + 1
	}
	return out
}

// relativize sets each latency in a single backward pass.
func (s KeystrokeSequence) relativize() {
	for i := len(s) - 1; i > 0; i-- {
		s[i].Latency = s[i].Timestamp.Sub(s[i-1].Timestamp)
	}
	if len(s) > 0 {
		s[0].Latency = 0
	}
}
