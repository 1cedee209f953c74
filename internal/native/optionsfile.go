package native

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OptionsFileName is the file written under CompileSpec.TempDir
const OptionsFileName = "options.txt"

// OptionsFileFormat is the quoting convention a tool uses for @file arguments
type OptionsFileFormat interface {
	Quote(arg string) (string, error)
	Split(content string) ([]string, error)
}

// OptionsFile shortens long generic argument lists by moving them into a file
type OptionsFile struct {
	Enabled   bool
	Threshold int // spill only above this many arguments; 0 spills every non-empty list
	Format    OptionsFileFormat
}

// Spill writes args to tempDir and returns the single @file token referencing them.
// When disabled, or when args is short enough, args is returned unchanged.
func (o OptionsFile) Spill(args []string, tempDir string) ([]string, error) {
	if !o.Enabled || len(args) == 0 || len(args) <= o.Threshold {
		return args, nil
	}

	format := o.Format
	if format == nil {
		format = GNUFormat{}
	}

	var sb strings.Builder
	for _, arg := range args {
		q, err := format.Quote(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOptionsFile, err)
		}
		sb.WriteString(q)
		sb.WriteByte('\n')
	}

	if err := ensureDir(tempDir); err != nil {
		return nil, err
	}
	path, err := filepath.Abs(filepath.Join(tempDir, OptionsFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptionsFile, err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptionsFile, err)
	}
	return []string{"@" + path}, nil
}

// ParseOptionsFile reads back the arguments stored in an options file
func ParseOptionsFile(path string, format OptionsFileFormat) ([]string, error) {
	path = strings.TrimPrefix(path, "@")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == nil {
		format = GNUFormat{}
	}
	return format.Split(string(data))
}

// GNUFormat is the response file syntax read by gcc (libiberty buildargv) and clang
// (TokenizeGNUCommandLine): whitespace separates arguments, single and double quotes group,
// and a backslash escapes the next character everywhere, inside quotes included.
type GNUFormat struct{}

func (GNUFormat) Quote(arg string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(arg) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		if c := arg[i]; c == '\\' || c == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(arg[i])
	}
	sb.WriteByte('"')
	return sb.String(), nil
}

func (GNUFormat) Split(content string) ([]string, error) {
	var (
		args           []string
		cur            strings.Builder
		inArg          bool
		escaped        bool
		single, double bool
	)
	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
			inArg = true
		case single:
			if c == '\'' {
				single = false
			} else {
				cur.WriteByte(c)
			}
		case double:
			if c == '"' {
				double = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\'':
			single = true
			inArg = true
		case c == '"':
			double = true
			inArg = true
		case strings.IndexByte(" \t\n\r\v\f", c) >= 0:
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteByte(c)
			inArg = true
		}
	}
	if single || double {
		return nil, fmt.Errorf("unterminated quote in options file")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// WindowsFormat follows the CommandLineToArgvW rules used by cl.exe
type WindowsFormat struct{}

func (WindowsFormat) Quote(arg string) (string, error) {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\r\v\"") {
		return arg, nil
	}

	var sb strings.Builder
	sb.WriteByte('"')
	slashes := 0
	for i := 0; i < len(arg); i++ {
		c := arg[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			// backslashes before a quote are doubled, then the quote itself is escaped
			sb.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		sb.WriteByte(c)
	}
	sb.WriteString(strings.Repeat(`\`, slashes))
	sb.WriteByte('"')
	return sb.String(), nil
}

func (WindowsFormat) Split(content string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		inQuote bool
	)
	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '\\':
			n := 0
			for i < len(content) && content[i] == '\\' {
				n++
				i++
			}
			if i < len(content) && content[i] == '"' {
				cur.WriteString(strings.Repeat(`\`, n/2))
				if n%2 == 1 {
					cur.WriteByte('"')
				} else {
					inQuote = !inQuote
				}
			} else {
				cur.WriteString(strings.Repeat(`\`, n))
				i--
			}
			inArg = true
		case c == '"':
			inQuote = !inQuote
			inArg = true
		case !inQuote && strings.IndexByte(" \t\n\r\v", c) >= 0:
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteByte(c)
			inArg = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in options file")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
