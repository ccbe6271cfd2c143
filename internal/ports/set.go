// Package ports decides which TCP ports a host scan probes and names the
// services commonly found on them.
package ports

import (
	"iter"
	"maps"
	"slices"
)

// MaxPort is the highest TCP port number.
const MaxPort = 65535

var (
	labels = func() map[uint16]string {
		m := make(map[uint16]string, len(wellKnown))
		for _, e := range wellKnown {
			m[e.Port] = e.Label
		}
		return m
	}()

	wellKnownPorts = slices.Sorted(maps.Keys(labels))
)

// Candidates yields the ports to probe in ascending order: every port when
// scanAll is set, otherwise the well-known ports only.
func Candidates(scanAll bool) iter.Seq[uint16] {
	if scanAll {
		return func(yield func(uint16) bool) {
			for p := 0; p <= MaxPort; p++ {
				if !yield(uint16(p)) {
					return
				}
			}
		}
	}
	return slices.Values(wellKnownPorts)
}

// Count returns how many ports Candidates(scanAll) yields.
func Count(scanAll bool) int {
	if scanAll {
		return MaxPort + 1
	}
	return len(wellKnownPorts)
}

// Label returns the service name of a well-known port.
func Label(port uint16) (string, bool) {
	label, ok := labels[port]
	return label, ok
}

// WellKnown returns a copy of the well-known table in declared order.
func WellKnown() []Entry {
	return slices.Clone(wellKnown)
}
