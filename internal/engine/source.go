package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// codingRe matches a PEP 263 style encoding declaration.
var codingRe = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)

// Loader reads measured source files from disk.
type Loader struct {
	// Syntax, when set, rejects files that do not parse.
	Syntax *SyntaxChecker
}

// Load returns the decoded text of path and its line count.
func (l *Loader) Load(path string) (string, int, error) {
	// Any read failure (missing, directory, permission) means no source.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, coverage.NoSource(path, err)
	}

	text, err := Decode(data)
	if err != nil {
		return "", 0, coverage.Encoding(path, err)
	}

	if l != nil && l.Syntax != nil {
		if err := l.Syntax.Check(path, []byte(text)); err != nil {
			return "", 0, coverage.NotParseable(path, err)
		}
	}

	return text, CountLines(text), nil
}

// Decode converts source bytes to UTF-8 text. A coding declaration in the
// first two lines selects the encoding, otherwise the bytes must be UTF-8.
func Decode(data []byte) (string, error) {
	if name := declaredEncoding(data); name != "" {
		enc, err := lookupEncoding(name)
		if err != nil {
			return "", err
		}
		if enc != nil {
			out, err := enc.NewDecoder().Bytes(data)
			if err != nil {
				return "", fmt.Errorf("decode as %s: %w", name, err)
			}
			data = out
		}
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errors.New("invalid utf-8 sequence")
	}
	return string(data), nil
}

func declaredEncoding(data []byte) string {
	for i, line := range bytes.SplitN(data, []byte("\n"), 3) {
		if i == 2 {
			break
		}
		if m := codingRe.FindSubmatch(line); m != nil {
			return string(m[1])
		}
	}
	return ""
}

// lookupEncoding resolves an encoding label. A nil encoding means the text
// is already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	label := strings.TrimSuffix(strings.ToLower(name), "-sig")
	candidates := []string{label, strings.ReplaceAll(label, "_", "-")}
	for _, c := range candidates {
		if enc, err := htmlindex.Get(c); err == nil {
			return utf8OrNil(enc, c), nil
		}
	}
	for _, c := range candidates {
		if enc, err := ianaindex.IANA.Encoding(c); err == nil && enc != nil {
			return utf8OrNil(enc, c), nil
		}
	}
	return nil, fmt.Errorf("unknown encoding: %s", name)
}

func utf8OrNil(enc encoding.Encoding, label string) encoding.Encoding {
	if canonical, err := htmlindex.Name(enc); err == nil && canonical == "utf-8" {
		return nil
	}
	if label == "utf-8" || label == "utf8" {
		return nil
	}
	return enc
}

// CountLines returns the number of lines in text. A final line without a
// trailing newline counts as a line.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
