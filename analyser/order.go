package analyser

// echoSizes are the server lengths accepted as the echo of a client packet
// of the given size.
func (t Thresholds) echoSizes(size Length) [3]Length {
	return [3]Length{-size, -(size + t.EchoPadding), -(size + t.KeystrokeUpperBound)}
}

func isEcho(l Length, sizes [3]Length) bool {
	return l == sizes[0] || l == sizes[1] || l == sizes[2]
}

// workList is the source side of a reordering pass. Packets leave it only
// through pop and take, so no index into it outlives a removal.
type workList struct {
	items []DirectedPacket
}

func newWorkList(packets []DirectedPacket) *workList {
	return &workList{items: append([]DirectedPacket(nil), packets...)}
}

func (w *workList) empty() bool { return len(w.items) == 0 }

func (w *workList) pop() DirectedPacket {
	p := w.items[0]
	w.items = w.items[1:]
	return p
}

// take removes and returns the first packet within window positions that
// satisfies match.
func (w *workList) take(window int, match func(Length) bool) (DirectedPacket, bool) {
	for i := 0; i < window && i < len(w.items); i++ {
		if match(w.items[i].Length) {
			p := w.items[i]
			w.items = append(w.items[:i:i], w.items[i+1:]...)
			return p, true
		}
	}
	return DirectedPacket{}, false
}

// Order restores causal order: every client packet of the keystroke size is
// followed directly by its echo if one is found within the reorder window.
// The result always has the same length as the input.
func Order(packets []DirectedPacket, size Length, th Thresholds) []DirectedPacket {
	src := newWorkList(packets)
	out := make([]DirectedPacket, 0, len(packets))
	echoes := th.echoSizes(size)
	for !src.empty() {
		p := src.pop()
		out = append(out, p)
		if p.Length != size {
			continue
		}
		if echo, ok := src.take(th.ReorderWindow, func(l Length) bool { return isEcho(l, echoes) }); ok {
			out = append(out, echo)
		}
	}
	return out
}

// ObfuscatedOrder is the result of OrderObfuscated.
type ObfuscatedOrder struct {
	Packets []DirectedPacket
	// Fats are the positions in Packets of full size client packets.
	Fats []int
	// Dropped are the chaff echoes removed next to fat packets.
	Dropped []DirectedPacket
}

// OrderObfuscated reorders a stream with keystroke chaff. Slim packets, half
// the fat size, are paired with their echo as in Order. A fat packet is
// answered twice; the first echo is kept and a second slim echo within the
// window is dropped as chaff.
func OrderObfuscated(packets []DirectedPacket, fat Length, th Thresholds) ObfuscatedOrder {
	slim := fat / 2
	echoes := th.echoSizes(slim)
	isSlimEcho := func(l Length) bool { return isEcho(l, echoes) }

	src := newWorkList(packets)
	res := ObfuscatedOrder{Packets: make([]DirectedPacket, 0, len(packets))}
	for !src.empty() {
		p := src.pop()
		switch p.Length {
		case fat:
			res.Fats = append(res.Fats, len(res.Packets))
			res.Packets = append(res.Packets, p)
			if echo, ok := src.take(th.ReorderWindow, isSlimEcho); ok {
				res.Packets = append(res.Packets, echo)
			}
			if chaff, ok := src.take(th.ReorderWindow, func(l Length) bool { return l == -slim }); ok {
				res.Dropped = append(res.Dropped, chaff)
			}
		case slim:
			res.Packets = append(res.Packets, p)
			if echo, ok := src.take(th.ReorderWindow, isSlimEcho); ok {
				res.Packets = append(res.Packets, echo)
			}
		default:
			res.Packets = append(res.Packets, p)
		}
	}
	return res
}
