package sack

import (
	"fmt"
	"strconv"
	"strings"
)

// EVR is the (Epoch, Version, Release) portion of a package's identity used
// for ordering same-name packages (spec §3, §GLOSSARY).
type EVR struct {
	Epoch   uint32
	Version string
	Release string
}

// String renders the canonical EVR form. Epoch is omitted when zero, per
// spec §3 ("epoch defaults to 0 and is omitted from the canonical EVR when
// zero").
func (e EVR) String() string {
	var b strings.Builder
	if e.Epoch != 0 {
		fmt.Fprintf(&b, "%d:", e.Epoch)
	}
	b.WriteString(e.Version)
	if e.Release != "" {
		b.WriteByte('-')
		b.WriteString(e.Release)
	}
	return b.String()
}

// ParseEVR parses a canonical "[epoch:]version[-release]" string.
func ParseEVR(s string) (EVR, error) {
	var e EVR
	if i := strings.IndexByte(s, ':'); i >= 0 {
		n, err := strconv.ParseUint(s[:i], 10, 32)
		if err != nil {
			return EVR{}, fmt.Errorf("invalid epoch in %q: %w", s, err)
		}
		e.Epoch = uint32(n)
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		e.Version = s[:i]
		e.Release = s[i+1:]
	} else {
		e.Version = s
	}
	if e.Version == "" {
		return EVR{}, fmt.Errorf("empty version in EVR %q", s)
	}
	return e, nil
}

// CompareEVR orders two EVRs. Epoch compares numerically first; Version and
// Release compare with rpmVerCmp. Matches spec §8's testable EVR-ordering
// properties:
//
//	evr_cmp("6:5.0-11", "5.0-0") > 0
//	evr_cmp("0:5.0-0", "5.0-0") == 0
//	"1.0~rc1" < "1.0"
//	"1.0" < "1.0^post"
func CompareEVR(a, b EVR) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}
	if c := rpmVerCmp(a.Version, b.Version); c != 0 {
		return c
	}
	return rpmVerCmp(a.Release, b.Release)
}

// CompareEVRStrings is a convenience wrapper over ParseEVR + CompareEVR for
// callers (and tests) that work with canonical EVR strings directly.
func CompareEVRStrings(a, b string) (int, error) {
	ea, err := ParseEVR(a)
	if err != nil {
		return 0, err
	}
	eb, err := ParseEVR(b)
	if err != nil {
		return 0, err
	}
	return CompareEVR(ea, eb), nil
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

func isAlphaByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlnumByte(c byte) bool { return isDigitByte(c) || isAlphaByte(c) }

// rpmVerCmp implements RPM's segmented version comparison: the string is
// split into alternating runs of digits and letters, each run compared in
// turn (numeric runs compare numerically after stripping leading zeros,
// alpha runs compare byte-wise). A '~' sorts before anything, including the
// end of the string; a '^' sorts after the end of the string but before
// any other segment. This is the algorithm underlying rpm's own rpmvercmp(), adapted
// here since RPM version ordering is not expressible as semver and no
// library in the retrieval pack implements it (see DESIGN.md).
func rpmVerCmp(a, b string) int {
	if a == b {
		return 0
	}

	var ai, bi int
	for ai < len(a) || bi < len(b) {
		for ai < len(a) && !isAlnumByte(a[ai]) && a[ai] != '~' && a[ai] != '^' {
			ai++
		}
		for bi < len(b) && !isAlnumByte(b[bi]) && b[bi] != '~' && b[bi] != '^' {
			bi++
		}

		aTilde := ai < len(a) && a[ai] == '~'
		bTilde := bi < len(b) && b[bi] == '~'
		if aTilde || bTilde {
			if !aTilde {
				return 1
			}
			if !bTilde {
				return -1
			}
			ai++
			bi++
			continue
		}

		aCaret := ai < len(a) && a[ai] == '^'
		bCaret := bi < len(b) && b[bi] == '^'
		if aCaret || bCaret {
			if ai == len(a) {
				return -1
			}
			if bi == len(b) {
				return 1
			}
			if !aCaret {
				return 1
			}
			if !bCaret {
				return -1
			}
			ai++
			bi++
			continue
		}

		if ai >= len(a) || bi >= len(b) {
			break
		}

		if isDigitByte(a[ai]) {
			startA := ai
			for ai < len(a) && isDigitByte(a[ai]) {
				ai++
			}
			segA := a[startA:ai]

			startB := bi
			for bi < len(b) && isDigitByte(b[bi]) {
				bi++
			}
			segB := b[startB:bi]

			if segB == "" {
				// A numeric segment always outranks no segment at all.
				return 1
			}

			segA = strings.TrimLeft(segA, "0")
			segB = strings.TrimLeft(segB, "0")
			if len(segA) != len(segB) {
				if len(segA) > len(segB) {
					return 1
				}
				return -1
			}
			if segA != segB {
				if segA > segB {
					return 1
				}
				return -1
			}
			continue
		}

		startA := ai
		for ai < len(a) && isAlphaByte(a[ai]) {
			ai++
		}
		segA := a[startA:ai]

		startB := bi
		for bi < len(b) && isAlphaByte(b[bi]) {
			bi++
		}
		segB := b[startB:bi]

		if segB == "" {
			// An alpha segment always sorts lower than a numeric or
			// absent segment on the other side.
			return -1
		}
		if segA != segB {
			if segA > segB {
				return 1
			}
			return -1
		}
	}

	switch {
	case ai >= len(a) && bi >= len(b):
		return 0
	case ai >= len(a):
		return -1
	default:
		return 1
	}
}
