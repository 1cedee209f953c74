package native

import (
	"fmt"
	"slices"
	"strings"
)

// Style is the argument convention of a compiler family
type Style struct {
	Name             string
	ObjectFileSuffix string
	Args             ArgsTransformer
	SourceArgs       func(source string) []string
	OutputArgs       func(output string) []string
	OptionsFile      OptionsFileFormat
}

var (
	// GCC covers gcc, clang and compatible drivers
	GCC = Style{
		Name:             "gcc",
		ObjectFileSuffix: ".o",
		Args:             gccArgs,
		SourceArgs:       func(source string) []string { return []string{source} },
		OutputArgs:       func(output string) []string { return []string{"-o", output} },
		OptionsFile:      GNUFormat{},
	}

	// MSVC covers cl.exe and clang-cl
	MSVC = Style{
		Name:             "msvc",
		ObjectFileSuffix: ".obj",
		Args:             msvcArgs,
		SourceArgs:       func(source string) []string { return []string{source} },
		OutputArgs:       func(output string) []string { return []string{"/Fo" + output} },
		OptionsFile:      WindowsFormat{},
	}
)

// Styles maps style names to their definitions
var Styles = map[string]Style{
	GCC.Name:  GCC,
	MSVC.Name: MSVC,
}

func gccArgs(spec CompileSpec) ([]string, error) {
	var optimize string
	if spec.OptLevel != "" {
		optimize = "-O" + spec.OptLevel
	}
	return flagArgs(spec, "-c", "-D", "-I", optimize, "-g"), nil
}

func msvcArgs(spec CompileSpec) ([]string, error) {
	optimize, err := msvcOptFlag(spec.OptLevel)
	if err != nil {
		return nil, err
	}
	return append([]string{"/nologo"}, flagArgs(spec, "/c", "/D", "/I", optimize, "/Zi")...), nil
}

// msvcOptFlag maps a gcc style level onto the closest cl.exe switch
func msvcOptFlag(level string) (string, error) {
	switch level {
	case "":
		return "", nil
	case "0":
		return "/Od", nil
	case "1", "s", "z":
		return "/O1", nil
	case "2", "3":
		return "/O2", nil
	default:
		return "", fmt.Errorf("optimization level %q has no cl.exe equivalent", level)
	}
}

func flagArgs(spec CompileSpec, compileOnly, define, include, optimize, debug string) []string {
	args := []string{compileOnly}
	for _, name := range spec.sortedMacros() {
		if value := spec.Macros[name]; value != "" {
			args = append(args, define+name+"="+value)
		} else {
			args = append(args, define+name)
		}
	}
	for _, dir := range spec.IncludeRoots {
		args = append(args, include+dir)
	}
	if optimize != "" {
		args = append(args, optimize)
	}
	if spec.Debuggable {
		args = append(args, debug)
	}
	return append(args, spec.Args...)
}

// IsCxx reports whether path looks like a C++ translation unit
func IsCxx(path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return false
	}
	return slices.Contains([]string{".cc", ".cpp", ".cxx", ".c++", ".C"}, path[i:])
}
