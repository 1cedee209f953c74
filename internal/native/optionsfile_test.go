package native

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roundTripArgs = [][]string{
	{"-c", "-O2", "-Wall"},
	{"-DNAME=\"quoted value\"", "-I/path with spaces/include"},
	{"", "-Dempty="},
	{"it's", `back\slash`, `trailing\`, `C:\dir\`, `"`, `\"`},
	{"$HOME", "*.c", "a;b", "a|b"},
	{"ünïcödé", "日本語"},
	{"tab\there", "new\nline", "-DWINPATH=C:\\include\\x"},
}

func TestOptionsFileRoundTrip(t *testing.T) {
	formats := map[string]OptionsFileFormat{
		"gnu":     GNUFormat{},
		"windows": WindowsFormat{},
	}
	for name, format := range formats {
		for i, args := range roundTripArgs {
			t.Run(name, func(t *testing.T) {
				tmp := t.TempDir()
				got, err := OptionsFile{Enabled: true, Format: format}.Spill(args, tmp)
				require.NoError(t, err, "case %d", i)
				require.Len(t, got, 1)
				assert.Equal(t, "@"+filepath.Join(tmp, OptionsFileName), got[0])

				parsed, err := ParseOptionsFile(got[0], format)
				require.NoError(t, err)
				if diff := cmp.Diff(args, parsed); diff != "" {
					t.Errorf("case %d round trip (-want +got):\n%s", i, diff)
				}
			})
		}
	}
}

func TestOptionsFileDisabled(t *testing.T) {
	tmp := t.TempDir()
	args := []string{"-c", "-O2"}

	got, err := OptionsFile{}.Spill(args, tmp)
	require.NoError(t, err)
	assert.Equal(t, args, got)
	_, err = os.Stat(filepath.Join(tmp, OptionsFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestOptionsFileThreshold(t *testing.T) {
	tmp := t.TempDir()
	args := make([]string, 50)
	for i := range args {
		args[i] = "-DM" + strings.Repeat("x", i)
	}
	o := OptionsFile{Enabled: true, Threshold: 20}

	short, err := o.Spill(args[:20], tmp)
	require.NoError(t, err)
	assert.Equal(t, args[:20], short, "at the threshold nothing is spilled")

	long, err := o.Spill(args, tmp)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.True(t, strings.HasPrefix(long[0], "@"))

	parsed, err := ParseOptionsFile(long[0], nil)
	require.NoError(t, err)
	assert.Equal(t, args, parsed)
}

func TestOptionsFileEmptyArgs(t *testing.T) {
	got, err := OptionsFile{Enabled: true}.Spill(nil, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOptionsFileWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := OptionsFile{Enabled: true}.Spill([]string{"-c"}, blocker)
	require.ErrorIs(t, err, ErrCreateDir)
}

// buildargv is what gcc uses to read @file arguments; these fixtures follow its rules
func TestGNUFormatSplitFollowsBuildargv(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"-c  -O2\n\t-Wall\n", []string{"-c", "-O2", "-Wall"}},
		{`'C:\include\x'`, []string{"C:includex"}},
		{`"C:\\include\\x"`, []string{`C:\include\x`}},
		{`a\ b`, []string{"a b"}},
		{`"say \"hi\""`, []string{`say "hi"`}},
		{`'it'\''s'`, []string{"it's"}},
		{`pre"mid dle"post`, []string{"premid dlepost"}},
		{`""`, []string{""}},
		{"\n\n", nil},
	}
	for _, tt := range tests {
		got, err := GNUFormat{}.Split(tt.content)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Split(%q)", tt.content)
	}

	_, err := GNUFormat{}.Split(`'open`)
	assert.Error(t, err)
}

func TestGNUFormatQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`-c`, `"-c"`},
		{``, `""`},
		{`C:\include\x`, `"C:\\include\\x"`},
		{`-DMSG="hi there"`, `"-DMSG=\"hi there\""`},
		{`it's`, `"it's"`},
	}
	for _, tt := range tests {
		got, err := GNUFormat{}.Quote(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Quote(%q)", tt.in)
	}
}

// TestOptionsFileReadByCompiler hands the file to a real gcc-compatible compiler and checks
// that the macro values survive exactly.
func TestOptionsFileReadByCompiler(t *testing.T) {
	var cc string
	for _, name := range []string{"gcc", "clang", "cc"} {
		if path, err := exec.LookPath(name); err == nil {
			cc = path
			break
		}
	}
	if cc == "" {
		t.Skip("no gcc-compatible compiler in PATH")
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "x.c")
	require.NoError(t, os.WriteFile(source, []byte("WINPATH\nMSG\nQUOTE\n"), 0o644))

	args := []string{
		`-DWINPATH=C:\include\x`,
		`-DMSG="hello   world"`,
		`-DQUOTE='q'`,
	}
	spilled, err := OptionsFile{Enabled: true, Format: GNUFormat{}}.Spill(args, dir)
	require.NoError(t, err)

	out, err := exec.Command(cc, "-E", "-P", spilled[0], source).CombinedOutput()
	require.NoError(t, err, string(out))
	lines := strings.Fields(strings.ReplaceAll(string(out), "\"hello   world\"", "HELLO"))
	assert.Equal(t, []string{`C:\include\x`, "HELLO", "'q'"}, lines)
}

func TestWindowsFormatQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, `plain`},
		{`C:\dir\file.c`, `C:\dir\file.c`},
		{`with space`, `"with space"`},
		{``, `""`},
		{`a"b`, `"a\"b"`},
		{`a\"b`, `"a\\\"b"`},
		{`dir\ x\`, `"dir\ x\\"`},
	}
	for _, tt := range tests {
		got, err := WindowsFormat{}.Quote(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Quote(%q)", tt.in)
	}
}

func TestWindowsFormatSplitUnterminated(t *testing.T) {
	_, err := WindowsFormat{}.Split(`"open`)
	assert.Error(t, err)
}
