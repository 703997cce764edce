package coverage

import "strings"

// Resolve maps a measured file path to the name reported to coveralls.
//
// Separators are normalized to forward slashes on every platform. When root
// is set and path lies under it, path is made relative to root. A non-empty
// baseDir (trailing slash forced) is stripped from the front, and a
// non-empty srcDir (trailing slash forced) is prepended.
func Resolve(path, root, baseDir, srcDir string) string {
	name := toSlash(path)

	if root != "" {
		r := strings.TrimRight(toSlash(root), "/") + "/"
		if strings.HasPrefix(name, r) {
			name = name[len(r):]
		}
	}
	name = strings.TrimPrefix(name, "./")

	if base := dirPrefix(baseDir); base != "" {
		name = strings.TrimPrefix(name, base)
	}
	if src := dirPrefix(srcDir); src != "" {
		name = src + name
	}
	return name
}

// dirPrefix normalizes a configured directory to "a/b/" form.
// Empty input stays empty.
func dirPrefix(dir string) string {
	if dir == "" {
		return ""
	}
	d := strings.TrimRight(toSlash(dir), "/")
	if d == "" {
		return ""
	}
	return d + "/"
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
