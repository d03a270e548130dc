package option

import dnf "github.com/rpm-software-management/libdnf-sub003"

// Binds is a name -> Option map presenting a bulk-load surface for a parsed
// config section (spec §4.1). An unknown key logs a warning rather than
// failing the whole section; a value that fails to parse/validate produces
// a typed *dnf.Error and aborts that key only, leaving prior keys applied.
type Binds struct {
	options map[string]Option
}

// NewBinds returns an empty Binds bundle.
func NewBinds() *Binds {
	return &Binds{options: make(map[string]Option)}
}

// Add registers opt under name. Re-adding the same name replaces the prior
// binding (used by Child wiring, where a repo-level option shadows a
// section-level default under the same key).
func (b *Binds) Add(name string, opt Option) {
	b.options[name] = opt
}

// Get returns the Option bound to name, if any.
func (b *Binds) Get(name string) (Option, bool) {
	opt, ok := b.options[name]
	return opt, ok
}

// LoadSection applies every key=value pair in section at priority,
// returning one warning string per unknown key and the first hard error
// encountered (a key that's known but fails to parse), if any. Known keys
// after a failing one are still attempted, matching a config loader that
// doesn't want one bad key in a repo section to mask every other key.
func (b *Binds) LoadSection(section map[string]string, priority Priority) (warnings []string, err error) {
	for key, value := range section {
		opt, ok := b.options[key]
		if !ok {
			warnings = append(warnings, "unknown option "+key)
			continue
		}
		if e := opt.Set(priority, value); e != nil {
			if err == nil {
				err = e
			}
		}
	}
	return warnings, err
}

// Errorf is a convenience wrapper so callers outside this package can build
// Option-domain errors with the same shape LoadSection's internals use.
func Errorf(format string, args ...interface{}) *dnf.Error {
	return dnf.Errorf("Option", dnf.KindInternal, format, args...)
}
