package option

import "os"

// Path is a string option cell with optional must-exist and must-be-absolute
// validators (spec §4.1).
type Path struct {
	base
	value           string
	mustExist       bool
	mustBeAbsolute  bool
	statFile        func(string) (os.FileInfo, error)
}

// NewPath returns a Path option. statFile defaults to os.Stat; tests may
// override it to avoid touching the real filesystem.
func NewPath(name, def string, mustExist, mustBeAbsolute bool) *Path {
	p := &Path{
		base:           base{name: name},
		value:          def,
		mustExist:      mustExist,
		mustBeAbsolute: mustBeAbsolute,
		statFile:       os.Stat,
	}
	p.commit(PriorityDefault)
	return p
}

func (p *Path) Kind() Kind    { return KindPath }
func (p *Path) Value() string { return p.value }

// SetStatFunc overrides the existence check used by Set, for tests.
func (p *Path) SetStatFunc(fn func(string) (os.FileInfo, error)) { p.statFile = fn }

func (p *Path) Set(priority Priority, text string) error {
	if p.mustBeAbsolute && (text == "" || text[0] != '/') {
		return errValue(p.name, "path must be absolute: "+text)
	}
	if p.mustExist {
		if _, err := p.statFile(text); err != nil {
			return errValue(p.name, "path does not exist: "+text)
		}
	}
	if !p.accept(priority) {
		return nil
	}
	p.value = text
	p.commit(priority)
	return nil
}
