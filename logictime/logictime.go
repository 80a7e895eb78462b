// Package logictime implements the monotone ordering tuple used to
// reconcile concurrent updates to the same key.
package logictime

// KVTime wraps a wall-clock, second-resolution value. It is never read for
// its absolute meaning inside this package; it is supplied by whoever seals
// a segment and is thereafter only ever compared.
type KVTime int64

// LogicStamp is (seg_time, seg_key_no): strict lexicographic order by
// seg_time, then by seg_key_no. The zero value sorts before everything
// except another zero value.
type LogicStamp struct {
	SegTime  KVTime
	SegKeyNo int32
}

// New builds a LogicStamp from its two components.
func New(segTime KVTime, segKeyNo int32) LogicStamp {
	return LogicStamp{SegTime: segTime, SegKeyNo: segKeyNo}
}

// Less reports whether a sorts strictly before b.
func Less(a, b LogicStamp) bool {
	if a.SegTime != b.SegTime {
		return a.SegTime < b.SegTime
	}
	return a.SegKeyNo < b.SegKeyNo
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b LogicStamp) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

// GreaterOrEqual reports whether a is not strictly less than b — the "this
// update wins" condition from the update protocol.
func GreaterOrEqual(a, b LogicStamp) bool {
	return !Less(a, b)
}
