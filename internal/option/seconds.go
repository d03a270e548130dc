package option

import (
	"math"
	"strconv"
	"strings"
)

// Seconds is an integer-seconds option cell accepting a trailing s/m/h/d
// suffix, a float fraction, or the literal "never" (spec §4.1).
type Seconds struct {
	base
	value int64 // seconds; math.MaxInt64 for "never"
}

// NewSeconds returns a Seconds option defaulted to def seconds.
func NewSeconds(name string, def int64) *Seconds {
	s := &Seconds{base: base{name: name}, value: def}
	s.commit(PriorityDefault)
	return s
}

func (s *Seconds) Kind() Kind   { return KindSeconds }
func (s *Seconds) Value() int64 { return s.value }

func (s *Seconds) Set(priority Priority, text string) error {
	v, err := ParseSeconds(text)
	if err != nil {
		return errValue(s.name, err.Error())
	}
	if !s.accept(priority) {
		return nil
	}
	s.value = v
	s.commit(priority)
	return nil
}

// ParseSeconds implements the seconds-value grammar shared by the Seconds
// option kind: a trailing s/m/h/d suffix multiplies a float mantissa, the
// literal "never" maps to math.MaxInt64, and negative results are rejected
// (spec §4.1).
func ParseSeconds(text string) (int64, error) {
	t := strings.TrimSpace(text)
	if strings.EqualFold(t, "never") {
		return math.MaxInt64, nil
	}

	mult := int64(1)
	if n := len(t); n > 0 {
		switch t[n-1] {
		case 's', 'S':
			mult, t = 1, t[:n-1]
		case 'm', 'M':
			mult, t = 60, t[:n-1]
		case 'h', 'H':
			mult, t = 3600, t[:n-1]
		case 'd', 'D':
			mult, t = 86400, t[:n-1]
		}
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
	if err != nil {
		return 0, errSecondsFormat(text)
	}
	if f < 0 {
		return 0, errSecondsNegative(text)
	}
	return int64(f * float64(mult)), nil
}

func errSecondsFormat(text string) error {
	return errValue("seconds", "not a valid seconds value: "+text)
}

func errSecondsNegative(text string) error {
	return errValue("seconds", "negative seconds value not allowed: "+text)
}
