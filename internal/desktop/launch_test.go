package desktop

import (
	"testing"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  []string
	}{
		{
			name:  "drops file codes",
			entry: Entry{Exec: "firefox %u"},
			want:  []string{"firefox"},
		},
		{
			name:  "icon and name",
			entry: Entry{Name: "Foo", Icon: "foo-icon", Exec: "foo %i --title=%c"},
			want:  []string{"foo", "--icon", "foo-icon", "--title=Foo"},
		},
		{
			name:  "icon absent",
			entry: Entry{Exec: "foo %i"},
			want:  []string{"foo"},
		},
		{
			name:  "quoted argument",
			entry: Entry{Exec: `sh -c "echo \"hi there\" 100%%"`},
			want:  []string{"sh", "-c", `echo "hi there" 100%`},
		},
		{
			name:  "desktop file path",
			entry: Entry{Path: "/usr/share/applications/x.desktop", Exec: "x --from %k"},
			want:  []string{"x", "--from", "/usr/share/applications/x.desktop"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CommandLine(tt.entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandLineErrors(t *testing.T) {
	for _, exec := range []string{`foo "unterminated`, "foo %z", "", "%f"} {
		_, err := CommandLine(Entry{Exec: exec})
		assert.Error(t, err, exec)
	}
}

func TestExecLauncher(t *testing.T) {
	l := NewExecLauncher("xterm")

	require.NoError(t, l.Launch(Entry{ID: "true.desktop", Name: "True", Exec: "true"}))

	err := l.Launch(Entry{ID: "missing.desktop", Name: "Missing", Exec: "/nonexistent/hopper-test-binary"})
	require.Error(t, err)
	assert.True(t, herrors.Is(err, herrors.ErrCodeLaunchFailure))
}
