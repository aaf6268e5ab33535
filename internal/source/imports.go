package source

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var importDirective = regexp.MustCompile(`^\s*<import\s+resource\s*=\s*"([^"]+)"\s*/?>\s*$`)

// FSResolver expands import directives with resources read from an fs.FS.
// Resource names may carry a "classpath:" prefix. Each resource is expanded
// at most once per script; a repeated or cyclic import becomes an empty line.
type FSResolver struct {
	FS fs.FS
}

// ResolveImports replaces every directive line with the resource content.
func (r FSResolver) ResolveImports(src string) (string, error) {
	seen := make(map[string]bool)
	return r.resolve(src, seen)
}

func (r FSResolver) resolve(src string, seen map[string]bool) (string, error) {
	if !strings.Contains(src, "<import") {
		return src, nil
	}
	lines := eol.Split(src, -1)
	for i, line := range lines {
		m := importDirective.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimPrefix(m[1], "classpath:")
		if seen[name] {
			lines[i] = ""
			continue
		}
		seen[name] = true

		data, err := fs.ReadFile(r.FS, name)
		if err != nil {
			return "", fmt.Errorf("importing %s: %w", m[1], err)
		}
		content, err := r.resolve(strings.TrimRight(string(data), "\r\n"), seen)
		if err != nil {
			return "", err
		}
		lines[i] = content
	}
	return strings.Join(lines, "\n"), nil
}
