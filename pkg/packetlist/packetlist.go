// Package packetlist implements the packet-ordinal predicate of the
// include/exclude filter layer: a union of singletons and closed integer
// ranges over 1-based packet ordinals, with O(log n) membership tests.
package packetlist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Range is an inclusive [Low, High] span of 1-based packet ordinals.
type Range struct {
	Low, High uint64
}

// List is a sorted, non-overlapping set of ranges.
type List struct {
	ranges []Range
}

// Parse builds a List from a comma-separated sequence of "N" or "N-M"
// tokens. An invalid token fails the whole parse.
func Parse(spec string) (*List, error) {
	l := &List{}
	if strings.TrimSpace(spec) == "" {
		return l, nil
	}
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		r, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		l.ranges = append(l.ranges, r)
	}
	sort.Slice(l.ranges, func(i, j int) bool { return l.ranges[i].Low < l.ranges[j].Low })
	merged := l.ranges[:0]
	for _, r := range l.ranges {
		if n := len(merged); n > 0 && r.Low <= merged[n-1].High {
			if r.High > merged[n-1].High {
				merged[n-1].High = r.High
			}
			continue
		}
		merged = append(merged, r)
	}
	l.ranges = merged
	return l, nil
}

func parseToken(tok string) (Range, error) {
	if idx := strings.IndexByte(tok, '-'); idx >= 0 {
		lowS, highS := tok[:idx], tok[idx+1:]
		low, err := strconv.ParseUint(lowS, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range token %q: %w", tok, err)
		}
		high, err := strconv.ParseUint(highS, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range token %q: %w", tok, err)
		}
		if low == 0 || high < low {
			return Range{}, fmt.Errorf("invalid range token %q", tok)
		}
		return Range{Low: low, High: high}, nil
	}
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid ordinal token %q: %w", tok, err)
	}
	if n == 0 {
		return Range{}, fmt.Errorf("invalid ordinal token %q: ordinals are 1-based", tok)
	}
	return Range{Low: n, High: n}, nil
}

// Contains reports whether ordinal falls within any range in the list, via
// binary search over the sorted ranges (O(log n)).
func (l *List) Contains(ordinal uint64) bool {
	ranges := l.ranges
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].High >= ordinal })
	if i == len(ranges) {
		return false
	}
	return ranges[i].Low <= ordinal && ordinal <= ranges[i].High
}

// Len returns the number of ranges (after parsing and merging overlapping
// ranges; singletons count as one-element ranges).
func (l *List) Len() int {
	return len(l.ranges)
}
