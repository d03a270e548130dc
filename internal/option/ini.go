package option

import (
	"bufio"
	"io"
	"strings"

	dnf "github.com/rpm-software-management/libdnf-sub003"
)

// ParseINI reads an INI-form config file (spec §6): sections named
// `[section]`, `key = value` entries, `#`/`;` full-line comments, and
// multi-line continuation where a physical line starting with whitespace
// extends the previous key's value, joined with `;` (spec §6). No
// ecosystem INI parser appeared anywhere in the retrieval pack (see
// DESIGN.md), so this is a small hand-rolled scanner kept deliberately
// minimal: it only needs to feed Binds.LoadSection.
//
// The returned sections map preserves insertion order via order; section
// "" (if present) holds any keys that precede the first `[section]` line.
func ParseINI(r io.Reader) (sections map[string]map[string]string, order []string, err error) {
	sections = make(map[string]map[string]string)
	scanner := bufio.NewScanner(r)

	current := ""
	sections[current] = make(map[string]string)
	order = append(order, current)

	var lastKey string

	for scanner.Scan() {
		raw := scanner.Text()
		if isContinuation(raw) && lastKey != "" {
			sections[current][lastKey] += ";" + strings.TrimSpace(raw)
			continue
		}

		line := strings.TrimSpace(raw)
		lastKey = ""
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, nil, dnf.Errorf("Option", dnf.KindFileInvalid, "malformed section header: %q", line)
			}
			current = strings.TrimSpace(line[1:end])
			if _, ok := sections[current]; !ok {
				sections[current] = make(map[string]string)
				order = append(order, current)
			}
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, nil, dnf.Errorf("Option", dnf.KindFileInvalid, "line without '=': %q", line)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		sections[current][key] = value
		lastKey = key
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, dnf.Wrap(err, "Option", dnf.KindFileInvalid, "reading INI input")
	}

	return sections, order, nil
}

// isContinuation reports whether raw is a continuation line: non-empty and
// beginning with a space or tab, per spec §6.
func isContinuation(raw string) bool {
	return len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t') && strings.TrimSpace(raw) != ""
}
