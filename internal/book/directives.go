package book

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

const importDirective = "@import"

// ErrMalformedImport is returned for an @import line without a plugin name or
// an @import from line without a reference.
var ErrMalformedImport = errors.New("malformed @import directive")

// Importer brings the plugins named by @import directives into the current render.
type Importer interface {
	ImportLocal(name string) error
	ImportRemote(ref string) error
}

// StripImports processes every @import directive in text, top to bottom, and
// returns the text without those lines. Other lines are kept byte for byte.
func StripImports(text string, importer Importer) (string, error) {
	var out strings.Builder
	out.Grow(len(text))
	lineNo := 0
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	sc.Split(scanLinesKeepEOL)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, importDirective) {
			out.WriteString(line)
			continue
		}
		if err := runDirective(strings.TrimPrefix(trimmed, importDirective), importer); err != nil {
			return "", fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func runDirective(args string, importer Importer) error {
	fields := strings.Fields(args)
	switch {
	case len(fields) == 0:
		return fmt.Errorf("%w: missing plugin name", ErrMalformedImport)
	case strings.EqualFold(fields[0], "from"):
		if len(fields) < 2 {
			return fmt.Errorf("%w: missing remote reference", ErrMalformedImport)
		}
		return importer.ImportRemote(fields[1])
	default:
		return importer.ImportLocal(fields[0])
	}
}

// scanLinesKeepEOL is bufio.ScanLines without dropping the line terminator.
func scanLinesKeepEOL(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := strings.IndexByte(string(data), '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
