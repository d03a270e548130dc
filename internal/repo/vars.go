package repo

import (
	"regexp"
	"runtime"
)

// varPattern matches $releasever, $basearch, $arch, $testdatadir, and any
// user-defined $NAME reference in a repo URL string (spec §4.2).
var varPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// DetectHostVars assembles the baseline variable map from host detection:
// $basearch/$arch from the running architecture, matching the spec's
// "host detection plus config overrides" assembly rule. $releasever has no
// safe host-detected default (it depends on the installed distribution) and
// is left for the caller/config to supply.
func DetectHostVars() map[string]string {
	arch := goArchToRPMArch(runtime.GOARCH)
	return map[string]string{
		"arch":     arch,
		"basearch": baseArch(arch),
	}
}

// goArchToRPMArch maps a Go GOARCH value to the RPM architecture name
// closest in spirit; this is host detection, not a packaging authority, so
// unknown arches pass through unchanged.
func goArchToRPMArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	case "arm":
		return "armv7hl"
	case "ppc64le":
		return "ppc64le"
	case "s390x":
		return "s390x"
	default:
		return goarch
	}
}

// baseArch collapses an arch to its base-arch family, per RPM convention
// (e.g. i586/i686 -> i386 on 32-bit x86; most others are already their own
// base arch).
func baseArch(arch string) string {
	switch arch {
	case "i386", "i486", "i586", "i686":
		return "i386"
	default:
		return arch
	}
}

// expand resolves every $NAME reference in s against r.vars. A variable not
// present in the map expands to empty and logs a warning (spec §4.2:
// "missing variables expand to empty and log a warning").
func (r *Repo) expand(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[1:]
		if v, ok := r.vars[name]; ok {
			return v
		}
		r.warnf("undefined variable %q in repo %s URL", name, r.ID)
		return ""
	})
}
