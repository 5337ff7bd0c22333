package desktop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEntry(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func app(name, exec string) string {
	return fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\n", name, exec)
}

func TestScanSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "a.desktop", app("Alpha", "alpha"))
	writeEntry(t, dir, "b.desktop", app("Beta", "beta"))
	writeEntry(t, dir, "c.desktop", app("Gamma", "gamma"))
	writeEntry(t, dir, "broken.desktop", "[Desktop Entry]\nName=Broken\n")
	writeEntry(t, dir, "junk.desktop", "\x00\x01 not a desktop file")
	writeEntry(t, dir, "readme.txt", app("Ignored", "ignored"))

	idx := NewIndex([]string{dir})
	entries, err := idx.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "Alpha", entries[0].Name)
	assert.Equal(t, "Beta", entries[1].Name)
	assert.Equal(t, "Gamma", entries[2].Name)
}

func TestScanPriorityAndMasking(t *testing.T) {
	user := t.TempDir()
	system := t.TempDir()

	writeEntry(t, system, "editor.desktop", app("System Editor", "sysedit"))
	writeEntry(t, user, "editor.desktop", app("User Editor", "useredit"))
	writeEntry(t, system, "spam.desktop", app("Spam", "spam"))
	writeEntry(t, user, "spam.desktop", "[Desktop Entry]\nHidden=true\n")
	writeEntry(t, system, "tray.desktop", app("Tray", "tray")+"NoDisplay=true\n")
	writeEntry(t, system, "kde4/konsole.desktop", app("Konsole", "konsole"))

	idx := NewIndex([]string{user, system})
	entries, err := idx.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	editor, err := idx.Lookup("editor.desktop")
	require.NoError(t, err)
	assert.Equal(t, "User Editor", editor.Name)
	assert.Equal(t, filepath.Join(user, "editor.desktop"), editor.Path)

	_, err = idx.Lookup("spam.desktop")
	assert.True(t, herrors.Is(err, herrors.ErrCodeNotFound))
	_, err = idx.Lookup("tray.desktop")
	assert.True(t, herrors.Is(err, herrors.ErrCodeNotFound))

	konsole, err := idx.Lookup("kde4-konsole.desktop")
	require.NoError(t, err)
	assert.Equal(t, "Konsole", konsole.Name)
}

func TestScanNoDisplayStubMasksLowerEntry(t *testing.T) {
	hi := t.TempDir()
	lo := t.TempDir()
	writeEntry(t, hi, "foo.desktop", "[Desktop Entry]\nNoDisplay=true\n")
	writeEntry(t, lo, "foo.desktop", app("Foo", "foo"))
	writeEntry(t, lo, "bar.desktop", app("Bar", "bar"))

	idx := NewIndex([]string{hi, lo})
	entries, err := idx.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Bar", entries[0].Name)

	_, err = idx.Lookup("foo.desktop")
	assert.True(t, herrors.Is(err, herrors.ErrCodeNotFound))
}

func TestScanIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "z.desktop", app("zsh", "zsh"))
	writeEntry(t, dir, "a.desktop", app("Alacritty", "alacritty"))
	writeEntry(t, dir, "b.desktop", app("alacritty", "alacritty --class b"))

	idx := NewIndex([]string{dir})
	first, err := idx.Scan(context.Background())
	require.NoError(t, err)
	second, err := idx.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, idx.Entries())
	assert.Equal(t, "a.desktop", first[0].ID)
	assert.Equal(t, "b.desktop", first[1].ID)
}

func TestScanMissingDirectory(t *testing.T) {
	idx := NewIndex([]string{filepath.Join(t.TempDir(), "does-not-exist")})
	entries, err := idx.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanTryExec(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "present.desktop", app("Present", "present")+"TryExec=present\n")
	writeEntry(t, dir, "absent.desktop", app("Absent", "absent")+"TryExec=absent\n")

	idx := NewIndex([]string{dir})
	idx.lookPath = func(bin string) (string, error) {
		if bin == "present" {
			return "/usr/bin/present", nil
		}
		return "", errors.New("not found")
	}

	entries, err := idx.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Present", entries[0].Name)
}

func TestScanCancelledKeepsPreviousSet(t *testing.T) {
	dir := t.TempDir()
	writeEntry(t, dir, "a.desktop", app("Alpha", "alpha"))

	idx := NewIndex([]string{dir})
	_, err := idx.Scan(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entries, err := idx.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, entries, 1)
}

func TestApplicationDirs(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/home/u/.local/share")
	t.Setenv("XDG_DATA_DIRS", "/usr/local/share:/usr/share:/usr/share/")

	dirs := ApplicationDirs([]string{"/opt/apps"})
	assert.Equal(t, []string{
		"/home/u/.local/share/applications",
		"/usr/local/share/applications",
		"/usr/share/applications",
		"/opt/apps",
	}, dirs)
}
