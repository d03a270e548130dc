package option

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	dnf "github.com/rpm-software-management/libdnf-sub003"
)

// Kind names the tagged-variant discriminant (spec §9: "replace the
// polymorphic Option hierarchy with a tagged variant").
type Kind string

const (
	KindBool       Kind = "bool"
	KindString     Kind = "string"
	KindStringList Kind = "string-list"
	KindInt        Kind = "int"
	KindFloat      Kind = "float"
	KindEnum       Kind = "enum"
	KindSeconds    Kind = "seconds"
	KindBandwidth  Kind = "bandwidth"
	KindThrottle   Kind = "throttle"
	KindPath       Kind = "path"
	KindChild      Kind = "child"
)

// Option is implemented by every typed option cell. A single Set dispatches
// on the concrete type's own parsing/validation rules; there is no
// polymorphic "parse" virtual, per spec §9.
type Option interface {
	Kind() Kind
	// Set parses text at priority and stores it if priority is not lower
	// than the option's current stored priority. Returns nil even when the
	// write is rejected for priority reasons (spec §4.1: "the write is
	// rejected silently"); it returns a non-nil error only when text fails
	// to parse or validate.
	Set(priority Priority, text string) error
	// Priority returns the priority of the value currently stored (or the
	// effective parent priority for a Child that has never been set).
	Priority() Priority
	// IsSet reports whether any write has ever been accepted.
	IsSet() bool
}

func errValue(name, detail string) *dnf.Error {
	return dnf.Errorf("Option", dnf.KindInternal, "%s: %s", name, detail)
}

// base is embedded by every concrete Option and implements the
// priority-ranked accept/reject rule.
type base struct {
	name     string
	priority Priority
	isSet    bool
}

func (b *base) Priority() Priority { return b.priority }
func (b *base) IsSet() bool        { return b.isSet }

// accept reports whether a write at priority should be applied: anything
// not strictly lower than the currently stored priority wins, including a
// same-priority overwrite (later writes at an equal priority replace
// earlier ones, matching a drop-in config's later file winning).
func (b *base) accept(priority Priority) bool {
	return !b.isSet || priority >= b.priority
}

func (b *base) commit(priority Priority) {
	b.priority = priority
	b.isSet = true
}

// Bool is a typed bool option cell.
type Bool struct {
	base
	value bool
}

// NewBool returns a Bool option named name, defaulted to def at
// PriorityDefault.
func NewBool(name string, def bool) *Bool {
	b := &Bool{base: base{name: name}, value: def}
	b.commit(PriorityDefault)
	return b
}

func (b *Bool) Kind() Kind { return KindBool }

func (b *Bool) Value() bool { return b.value }

func (b *Bool) Set(priority Priority, text string) error {
	v, err := parseBool(text)
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

func parseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", text)
	}
}

// String is a typed string option cell, with an optional case-insensitive
// regex validator (spec §4.1).
type String struct {
	base
	value     string
	validator *regexp.Regexp
}

// NewString returns a String option. If pattern is non-empty, values must
// case-insensitively match it or Set fails.
func NewString(name, def, pattern string) (*String, error) {
	s := &String{base: base{name: name}, value: def}
	if pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errValue(name, "invalid validator regex: "+err.Error())
		}
		s.validator = re
	}
	s.commit(PriorityDefault)
	return s, nil
}

func (s *String) Kind() Kind    { return KindString }
func (s *String) Value() string { return s.value }

func (s *String) Set(priority Priority, text string) error {
	if s.validator != nil && !s.validator.MatchString(text) {
		return errValue(s.name, fmt.Sprintf("%q does not match required pattern", text))
	}
	if !s.accept(priority) {
		return nil
	}
	s.value = text
	s.commit(priority)
	return nil
}

// StringList is a comma/whitespace-separated list of strings (spec §4.1 and
// §6's repo key parsing rules for baseurl/exclude/gpgkey).
type StringList struct {
	base
	value []string
}

// NewStringList returns a StringList option defaulted to def.
func NewStringList(name string, def []string) *StringList {
	l := &StringList{base: base{name: name}, value: append([]string(nil), def...)}
	l.commit(PriorityDefault)
	return l
}

func (l *StringList) Kind() Kind      { return KindStringList }
func (l *StringList) Value() []string { return l.value }

func (l *StringList) Set(priority Priority, text string) error {
	if !l.accept(priority) {
		return nil
	}
	l.value = splitList(text)
	l.commit(priority)
	return nil
}

// splitList splits on commas and/or whitespace, matching dnf.conf's
// "whitespace-or-comma list" convention (spec §6).
func splitList(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\t' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Int is a typed integer option cell with an optional inclusive [min, max]
// range (spec §4.1); the range is enforced only when bounded is true.
type Int struct {
	base
	value    int64
	min, max int64
	bounded  bool
}

// NewInt returns an Int option. If bounded is true, Set rejects values
// outside [min, max].
func NewInt(name string, def int64, min, max int64, bounded bool) *Int {
	i := &Int{base: base{name: name}, value: def, min: min, max: max, bounded: bounded}
	i.commit(PriorityDefault)
	return i
}

func (i *Int) Kind() Kind  { return KindInt }
func (i *Int) Value() int64 { return i.value }

func (i *Int) Set(priority Priority, text string) error {
	v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return errValue(i.name, "not an integer: "+text)
	}
	if i.bounded && (v < i.min || v > i.max) {
		return errValue(i.name, fmt.Sprintf("%d out of range [%d, %d]", v, i.min, i.max))
	}
	if !i.accept(priority) {
		return nil
	}
	i.value = v
	i.commit(priority)
	return nil
}

// Float is a typed floating-point option cell.
type Float struct {
	base
	value float64
}

// NewFloat returns a Float option defaulted to def.
func NewFloat(name string, def float64) *Float {
	f := &Float{base: base{name: name}, value: def}
	f.commit(PriorityDefault)
	return f
}

func (f *Float) Kind() Kind     { return KindFloat }
func (f *Float) Value() float64 { return f.value }

func (f *Float) Set(priority Priority, text string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return errValue(f.name, "not a float: "+text)
	}
	if !f.accept(priority) {
		return nil
	}
	f.value = v
	f.commit(priority)
	return nil
}

// Enum is a closed-set option cell with an optional canonicalizer applied
// before validating membership (e.g. lower-casing `proxy_auth_method`,
// spec §6).
type Enum struct {
	base
	value   string
	allowed map[string]bool
	canon   func(string) string
}

// NewEnum returns an Enum option over values, defaulted to def. canon may
// be nil, in which case values are matched verbatim.
func NewEnum(name, def string, values []string, canon func(string) string) *Enum {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	e := &Enum{base: base{name: name}, value: def, allowed: allowed, canon: canon}
	e.commit(PriorityDefault)
	return e
}

func (e *Enum) Kind() Kind    { return KindEnum }
func (e *Enum) Value() string { return e.value }

func (e *Enum) Set(priority Priority, text string) error {
	v := text
	if e.canon != nil {
		v = e.canon(v)
	}
	if !e.allowed[v] {
		return errValue(e.name, fmt.Sprintf("%q is not one of the allowed values", text))
	}
	if !e.accept(priority) {
		return nil
	}
	e.value = v
	e.commit(priority)
	return nil
}

// Child delegates reads to Parent until it has itself been Set; its
// effective Priority is the max of its own and the parent's (spec §4.1).
type Child struct {
	base
	parent Option
	own    Option
}

// NewChild returns a Child option wrapping own, falling back to parent
// until own has been set; callers read the value through Active(), since
// Option has no generic Value() accessor.
func NewChild(parent, own Option) *Child {
	return &Child{base: base{name: "child"}, parent: parent, own: own}
}

func (c *Child) Kind() Kind { return KindChild }

func (c *Child) Set(priority Priority, text string) error {
	return c.own.Set(priority, text)
}

// Priority returns the max of the child's own priority and the parent's,
// per spec §4.1.
func (c *Child) Priority() Priority {
	if c.own.IsSet() && c.own.Priority() >= c.parent.Priority() {
		return c.own.Priority()
	}
	return c.parent.Priority()
}

func (c *Child) IsSet() bool { return c.own.IsSet() || c.parent.IsSet() }

// Active returns whichever of own/parent is authoritative: own once it has
// been explicitly set, else parent.
func (c *Child) Active() Option {
	if c.own.IsSet() {
		return c.own
	}
	return c.parent
}
