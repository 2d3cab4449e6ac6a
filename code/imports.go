package code

import (
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Import is one import spec found in fragment source.
type Import struct {
	// Name is the explicit package name ("" when absent, "_" or ".").
	Name string
	// Path is the unquoted import path.
	Path string
}

// LocalName returns the identifier the import is referenced by.
func (i Import) LocalName() string {
	if i.Name != "" {
		return i.Name
	}
	base := path.Base(i.Path)
	// gopkg.in/yaml.v3 style version suffixes
	if dot := strings.IndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return strings.ReplaceAll(base, "-", "_")
}

// Spec renders the import spec without the keyword: `name "path"`.
func (i Import) Spec() string {
	if i.Name != "" {
		return i.Name + " " + strconv.Quote(i.Path)
	}
	return strconv.Quote(i.Path)
}

// String renders a single-line import statement.
func (i Import) String() string { return "import " + i.Spec() }

var packageClause = regexp.MustCompile(`(?m)^\s*package\s+\w+\s*$`)

// HasPackageClause reports whether src is a complete Go file rather than a
// statement fragment.
func HasPackageClause(src string) bool {
	return packageClause.MatchString(src)
}

// SplitImports separates import lines from the remaining statements. Both
// single-line imports and parenthesized import blocks are recognized at the
// start of a line; everything else is returned unchanged as body.
func SplitImports(src string) (imports []Import, body string) {
	lines := strings.Split(src, "\n")
	kept := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		trimmed := stripLineComment(strings.TrimSpace(line))
		switch {
		case inBlock:
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
				continue
			}
			if imp, ok := parseSpec(trimmed); ok {
				imports = append(imports, imp)
			}
		case trimmed == "import (" || trimmed == "import(":
			inBlock = true
		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "import\t"):
			rest := strings.TrimSpace(trimmed[len("import"):])
			if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
				// import ( "fmt"; "math" )
				for _, spec := range strings.Split(strings.Trim(rest, "()"), ";") {
					if imp, ok := parseSpec(strings.TrimSpace(spec)); ok {
						imports = append(imports, imp)
					}
				}
				continue
			}
			if imp, ok := parseSpec(rest); ok {
				imports = append(imports, imp)
				continue
			}
			kept = append(kept, line)
		default:
			kept = append(kept, line)
		}
	}
	return imports, strings.Join(kept, "\n")
}

func stripLineComment(s string) string {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '/' && s[i+1] == '/' && strings.Count(s[:i], `"`)%2 == 0 {
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}

func parseSpec(s string) (Import, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	fields := strings.Fields(s)
	var name, quoted string
	switch len(fields) {
	case 1:
		quoted = fields[0]
	case 2:
		name, quoted = fields[0], fields[1]
	default:
		return Import{}, false
	}
	p, err := strconv.Unquote(quoted)
	if err != nil || p == "" {
		return Import{}, false
	}
	return Import{Name: name, Path: p}, true
}

// DedupeImports removes repeated specs, keeping first occurrences in order.
func DedupeImports(imports []Import) []Import {
	out := make([]Import, 0, len(imports))
	for _, imp := range imports {
		if !slices.Contains(out, imp) {
			out = append(out, imp)
		}
	}
	return out
}

// UsedImports keeps the imports referenced by body as `name.` selectors.
// Blank and dot imports are always kept.
func UsedImports(imports []Import, body string) []Import {
	out := make([]Import, 0, len(imports))
	for _, imp := range imports {
		name := imp.LocalName()
		if name == "_" || name == "." || selectorUse(name).MatchString(body) {
			out = append(out, imp)
		}
	}
	return out
}

func selectorUse(name string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^\w.])` + regexp.QuoteMeta(name) + `\.`)
}

// IsStandard reports whether path belongs to the Go standard library: its
// first element has no dot and it matches none of the extra third-party
// prefixes.
func IsStandard(importPath string, thirdParty ...string) bool {
	for _, p := range thirdParty {
		if p != "" && strings.HasPrefix(importPath, p) {
			return false
		}
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
