package analyser

import "github.com/sirupsen/logrus"

// FindReturns returns the positions of fat client packets followed by two
// server packets at least slim sized, the shape of a command being sent.
// The response block after each return is skipped.
func FindReturns(packets []DirectedPacket, fat Length, from int, log logrus.FieldLogger) []int {
	slim := fat / 2
	var out []int
	i := from
	for i+2 < len(packets) {
		if packets[i].Length != fat {
			i++
			continue
		}
		if packets[i+1].Length <= -slim && packets[i+2].Length <= -slim {
			log.WithFields(logrus.Fields{"seq": packets[i].Seq, "index": packets[i].Index}).Debug("return")
			out = append(out, i)
			i = skipServer(packets, i+2)
			continue
		}
		i += 2
	}
	return out
}

// skipServer returns the position of the first client packet at or after i.
func skipServer(packets []DirectedPacket, i int) int {
	for i < len(packets) && packets[i].Length.FromServer() {
		i++
	}
	return i
}

// FindChaffGaps walks the slim packets after each return and reports the
// first one sent more than the chaff gap after its predecessor. Chaff runs
// at a faster cadence, so a longer pause marks a real keystroke starting
// new chaff.
func FindChaffGaps(packets []DirectedPacket, returns []int, fat Length, th Thresholds, log logrus.FieldLogger) []int {
	slim := fat / 2
	n := len(packets)
	var gaps []int
	for _, ret := range returns {
		i := ret
		for i < n && packets[i].Length != slim {
			i++
		}
		if i >= n {
			continue
		}
		last := packets[i].Timestamp
		i += 2
		for i+2 < n && packets[i].Timestamp.Sub(last) < th.ChaffGap {
			last = packets[i].Timestamp
			i += 2
		}
		if i+2 < n {
			log.WithFields(logrus.Fields{"seq": packets[i].Seq, "index": packets[i].Index, "gap": packets[i].Timestamp.Sub(last)}).
				Debug("chaff gap")
			gaps = append(gaps, i)
		}
	}
	return gaps
}

// DropChaff keeps the packets that carry real keystrokes: the slim packet
// that starts the chaff, every return with its response, fat packets with
// their echo and the slim packet found at each gap.
func DropChaff(packets []DirectedPacket, returns, gaps []int, fat Length, from int, log logrus.FieldLogger) []DirectedPacket {
	slim := fat / 2
	n := len(packets)

	// startsChaff reports a slim packet, its echo and more slim traffic.
	startsChaff := func(i int) bool {
		return i+2 < n && packets[i].Length == slim && packets[i+1].Length == -slim && packets[i+2].Length == slim
	}

	i := from
	for i < n && packets[i].Length != slim {
		i++
	}
	if i >= n {
		return nil
	}

	var kept []DirectedPacket
	keepPair := func(i int) {
		log.WithFields(logrus.Fields{"seq": packets[i].Seq, "index": packets[i].Index, "length": packets[i].Length}).Debug("kept")
		kept = append(kept, packets[i])
		if i+1 < n && packets[i+1].Length.FromServer() {
			kept = append(kept, packets[i+1])
		}
	}
	if startsChaff(i) {
		keepPair(i)
	}

	isReturn := make(map[int]int, len(returns))
	for r, pos := range returns {
		isReturn[pos] = r
	}

	for i < n {
		r, ok := isReturn[i]
		if !ok {
			if packets[i].Length == fat {
				keepPair(i)
				i += 2
				continue
			}
			i++
			continue
		}

		kept = append(kept, packets[i])
		i++
		for i < n && packets[i].Length.FromServer() {
			kept = append(kept, packets[i])
			i++
		}

		gap, found := nextGap(gaps, i, returns, r)
		if !found {
			continue
		}
		for i < gap {
			if packets[i].Length == fat {
				keepPair(i)
				i += 2
				continue
			}
			i++
		}
		if i == gap && startsChaff(gap) {
			keepPair(gap)
			i += 2
		}
	}
	return kept
}

// nextGap returns the first gap after position i that lies before the return
// following returns[r].
func nextGap(gaps []int, i int, returns []int, r int) (int, bool) {
	for _, g := range gaps {
		if g <= i {
			continue
		}
		if r+1 < len(returns) && g < returns[r+1] {
			return g, true
		}
		return 0, false
	}
	return 0, false
}

// ScanObfuscatedKeystrokes strips chaff and classifies what is left, with
// echoes expected at half the fat size.
func ScanObfuscatedKeystrokes(ordered []DirectedPacket, fat Length, from int, th Thresholds, log logrus.FieldLogger) []Keystroke {
	returns := FindReturns(ordered, fat, from, log)
	gaps := FindChaffGaps(ordered, returns, fat, th, log)
	kept := DropChaff(ordered, returns, gaps, fat, from, log)
	log.WithFields(logrus.Fields{"returns": len(returns), "gaps": len(gaps), "kept": len(kept)}).Debug("chaff dropped")
	return scanKeystrokes(kept, sizing{key: fat, slim: fat / 2, echo: fat / 2}, 0, th, log)
}
