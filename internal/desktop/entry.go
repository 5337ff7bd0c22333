// Package desktop indexes freedesktop.org desktop entries and launches them.
package desktop

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
)

const (
	desktopEntryGroup = "[Desktop Entry]"
	desktopExt        = ".desktop"
)

// Entry is a parsed launchable application
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	GenericName string   `json:"generic_name,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	Exec        string   `json:"exec"`
	TryExec     string   `json:"try_exec,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Terminal    bool     `json:"terminal"`
	WorkDir     string   `json:"work_dir,omitempty"`
	Path        string   `json:"path"`

	// NoDisplay and Hidden entries still shadow lower-priority files with
	// the same ID but are never offered for launching.
	NoDisplay bool `json:"-"`
	Hidden    bool `json:"-"`
}

// HasCategory reports whether the entry lists category
func (e Entry) HasCategory(category string) bool {
	for _, c := range e.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Description returns the text shown under the entry name
func (e Entry) Description() string {
	if e.Comment != "" {
		return e.Comment
	}
	return e.GenericName
}

// Launchable reports whether the entry should be offered to the user
func (e Entry) Launchable() bool {
	return !e.NoDisplay && !e.Hidden
}

// EntryID derives the desktop-file ID of path relative to its applications
// directory: "kde4/konsole.desktop" becomes "kde4-konsole.desktop".
func EntryID(appDir, path string) (string, error) {
	rel, err := filepath.Rel(appDir, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", path, appDir)
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "-"), nil
}

// errSkip marks files that are valid but not applications
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

// ParseFile parses the desktop entry at path. Files whose Type is not
// Application return an error for which IsSkip is true; files missing
// required keys return a PARSE_ERROR.
func ParseFile(id, path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, herrors.Wrap(err, herrors.ErrCodeParse, "failed to read desktop file").
			WithDetail("path", path)
	}
	entry, err := Parse(data)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	entry.Path = path
	return entry, nil
}

// IsSkip reports whether err marks a file that is simply not an application
func IsSkip(err error) bool {
	_, ok := err.(errSkip)
	return ok
}

// Parse parses the [Desktop Entry] group of a desktop file
func Parse(data []byte) (Entry, error) {
	var entry Entry
	var typ string
	inGroup := false
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '[' {
			if inGroup {
				// Only the first group matters and it has ended
				break
			}
			inGroup = line == desktopEntryGroup
			continue
		}
		if !inGroup {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Entry{}, herrors.Newf(herrors.ErrCodeParse, "malformed line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Localized variants such as Name[de] are ignored
		if strings.ContainsRune(key, '[') || seen[key] {
			continue
		}
		seen[key] = true

		switch key {
		case "Type":
			typ = value
		case "Name":
			entry.Name = unescape(value)
		case "GenericName":
			entry.GenericName = unescape(value)
		case "Comment":
			entry.Comment = unescape(value)
		case "Exec":
			entry.Exec = unescape(value)
		case "TryExec":
			entry.TryExec = unescape(value)
		case "Icon":
			entry.Icon = unescape(value)
		case "Path":
			entry.WorkDir = unescape(value)
		case "Categories":
			entry.Categories = splitList(value)
		case "Keywords":
			entry.Keywords = splitList(value)
		case "Terminal":
			entry.Terminal = value == "true"
		case "NoDisplay":
			entry.NoDisplay = value == "true"
		case "Hidden":
			entry.Hidden = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, herrors.Wrap(err, herrors.ErrCodeParse, "failed to read desktop file")
	}

	if !inGroup {
		return Entry{}, herrors.New(herrors.ErrCodeParse, "missing [Desktop Entry] group")
	}
	// Hidden and NoDisplay entries only need to exist to mask others
	if entry.Hidden || entry.NoDisplay {
		return entry, nil
	}
	if typ != "" && typ != "Application" {
		return Entry{}, errSkip{reason: fmt.Sprintf("type %s is not an application", typ)}
	}
	if entry.Name == "" {
		return Entry{}, herrors.New(herrors.ErrCodeParse, "missing required key Name")
	}
	if entry.Exec == "" {
		return Entry{}, herrors.New(herrors.ErrCodeParse, "missing required key Exec")
	}
	return entry, nil
}

// unescape expands the string escapes allowed in desktop entry values
func unescape(value string) string {
	if !strings.ContainsRune(value, '\\') {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' || i+1 == len(value) {
			b.WriteByte(c)
			continue
		}
		i++
		switch value[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

// splitList splits a ';' separated value, honouring "\;" escapes
func splitList(value string) []string {
	var items []string
	var cur strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == '\\' && i+1 < len(value) && value[i+1] == ';':
			cur.WriteByte(';')
			i++
		case c == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				items = append(items, unescape(s))
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		items = append(items, unescape(s))
	}
	return items
}
