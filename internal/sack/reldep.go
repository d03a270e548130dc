package sack

import (
	"fmt"
	"strings"
)

// ReldepFlag encodes a Reldep's comparison operator (spec §3/§4.4).
type ReldepFlag uint8

const (
	FlagNone ReldepFlag = 0 // unversioned
	FlagLT   ReldepFlag = 1 << iota
	FlagLE
	FlagEQ
	FlagGE
	FlagGT
)

func (f ReldepFlag) String() string {
	switch f {
	case FlagLT:
		return "<"
	case FlagLE:
		return "<="
	case FlagEQ:
		return "="
	case FlagGE:
		return ">="
	case FlagGT:
		return ">"
	default:
		return ""
	}
}

// Reldep is an interned (name, flags, evr) dependency triple (spec §3/§4.4).
// Equality is pool identity: two Reldeps parsed from the same string, from
// the same Pool, are the same *Reldep pointer.
type Reldep struct {
	Name  string
	Flags ReldepFlag
	EVR   EVR

	// Rich is set when the source text used a boolean rich-dependency form
	// (and/or/if). Rich reldeps are preserved verbatim but otherwise opaque
	// to every caller above this package, per spec §4.4.
	Rich string
}

func (r *Reldep) String() string {
	if r.Rich != "" {
		return r.Rich
	}
	if r.Flags == FlagNone {
		return r.Name
	}
	return fmt.Sprintf("%s %s %s", r.Name, r.Flags, r.EVR)
}

// internKey is the string a Reldep is deduplicated on within a Pool.
func (r *Reldep) internKey() string {
	if r.Rich != "" {
		return "rich:" + r.Rich
	}
	return r.Name + "\x00" + r.Flags.String() + "\x00" + r.EVR.String()
}

// parseReldep parses "name OP evr" or a bare "name" (unversioned), or an
// opaque boolean rich-dependency expression starting with "(" (spec §4.4:
// "additional rich-dependency forms ... are preserved but opaque").
func parseReldep(s string) (*Reldep, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty reldep")
	}
	if strings.HasPrefix(s, "(") {
		return &Reldep{Rich: s}, nil
	}

	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return &Reldep{Name: fields[0]}, nil
	case 3:
		flag, err := parseFlag(fields[1])
		if err != nil {
			return nil, fmt.Errorf("parsing reldep %q: %w", s, err)
		}
		evr, err := ParseEVR(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parsing reldep %q: %w", s, err)
		}
		return &Reldep{Name: fields[0], Flags: flag, EVR: evr}, nil
	default:
		return nil, fmt.Errorf("malformed reldep %q", s)
	}
}

func parseFlag(op string) (ReldepFlag, error) {
	switch op {
	case "<":
		return FlagLT, nil
	case "<=":
		return FlagLE, nil
	case "=", "==":
		return FlagEQ, nil
	case ">=":
		return FlagGE, nil
	case ">":
		return FlagGT, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", op)
	}
}
