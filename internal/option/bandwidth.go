package option

import (
	"strconv"
	"strings"
)

// Bandwidth is a byte-count option cell accepting a k/M/G suffix using
// binary thousands (1024-based), per spec §4.1.
type Bandwidth struct {
	base
	value int64 // bytes
}

// NewBandwidth returns a Bandwidth option defaulted to def bytes.
func NewBandwidth(name string, def int64) *Bandwidth {
	b := &Bandwidth{base: base{name: name}, value: def}
	b.commit(PriorityDefault)
	return b
}

func (b *Bandwidth) Kind() Kind   { return KindBandwidth }
func (b *Bandwidth) Value() int64 { return b.value }

func (b *Bandwidth) Set(priority Priority, text string) error {
	v, err := ParseBandwidth(text)
	if err != nil {
		return errValue(b.name, err.Error())
	}
	if !b.accept(priority) {
		return nil
	}
	b.value = v
	b.commit(priority)
	return nil
}

// ParseBandwidth parses a bandwidth value: a non-negative number, optionally
// followed by k/M/G (binary thousands: 1024, 1024^2, 1024^3).
func ParseBandwidth(text string) (int64, error) {
	t := strings.TrimSpace(text)
	mult := int64(1)
	if n := len(t); n > 0 {
		switch t[n-1] {
		case 'k', 'K':
			mult, t = 1024, t[:n-1]
		case 'm', 'M':
			mult, t = 1024 * 1024, t[:n-1]
		case 'g', 'G':
			mult, t = 1024 * 1024 * 1024, t[:n-1]
		}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	if err != nil {
		return 0, errValue("bandwidth", "not a valid bandwidth value: "+text)
	}
	if v < 0 {
		return 0, errValue("bandwidth", "negative bandwidth not allowed: "+text)
	}
	return v * mult, nil
}

// Throttle is either a Bandwidth value or a 0..100% fraction of the
// download engine's overall available bandwidth (spec §4.1).
type Throttle struct {
	base
	bytes   int64
	percent float64
	isPct   bool
}

// NewThrottle returns a Throttle option defaulted to defBytes (not a
// percentage).
func NewThrottle(name string, defBytes int64) *Throttle {
	t := &Throttle{base: base{name: name}, bytes: defBytes}
	t.commit(PriorityDefault)
	return t
}

func (t *Throttle) Kind() Kind { return KindThrottle }

// Bytes returns the absolute byte value, or false if the option is
// currently expressed as a percentage.
func (t *Throttle) Bytes() (int64, bool) { return t.bytes, !t.isPct }

// Percent returns the 0..100 fraction, or false if expressed as an
// absolute byte count.
func (t *Throttle) Percent() (float64, bool) { return t.percent, t.isPct }

func (t *Throttle) Set(priority Priority, text string) error {
	trimmed := strings.TrimSpace(text)
	isPct := strings.HasSuffix(trimmed, "%")
	var bytes int64
	var pct float64
	if isPct {
		v, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "%"), 64)
		if err != nil {
			return errValue(t.name, "not a valid throttle percentage: "+text)
		}
		if v < 0 || v > 100 {
			return errValue(t.name, "throttle percentage out of range [0, 100]: "+text)
		}
		pct = v
	} else {
		v, err := ParseBandwidth(trimmed)
		if err != nil {
			return errValue(t.name, err.Error())
		}
		bytes = v
	}
	if !t.accept(priority) {
		return nil
	}
	t.isPct = isPct
	t.bytes = bytes
	t.percent = pct
	t.commit(priority)
	return nil
}
