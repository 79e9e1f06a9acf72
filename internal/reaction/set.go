package reaction

import (
	"time"

	"github.com/segmentio/ksuid"

	"liveboard/internal/presence"
)

// Origin tells where a reaction came from.
type Origin int

const (
	FromSelf Origin = iota
	FromPeer
)

// Reaction is one flying marker.
type Reaction struct {
	ID        ksuid.KSUID
	Value     string
	Timestamp time.Time
	Point     presence.Point
	Origin    Origin
}

// Set is an immutable list of reactions in insertion order. Methods never
// modify the receiver's backing array.
type Set []Reaction

// With returns a new Set holding s followed by rs.
func (s Set) With(rs ...Reaction) Set {
	out := make(Set, 0, len(s)+len(rs))
	out = append(out, s...)
	return append(out, rs...)
}

// Since returns the reactions stamped strictly after cutoff. When nothing
// is dropped the receiver itself is returned.
func (s Set) Since(cutoff time.Time) Set {
	keep := 0
	for _, r := range s {
		if r.Timestamp.After(cutoff) {
			keep++
		}
	}
	if keep == len(s) {
		return s
	}
	out := make(Set, 0, keep)
	for _, r := range s {
		if r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
