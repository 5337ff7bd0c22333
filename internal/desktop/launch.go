package desktop

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
)

// Launcher starts the application described by an entry
type Launcher interface {
	Launch(entry Entry) error
}

// ExecLauncher spawns entries as detached child processes
type ExecLauncher struct {
	// Terminal is prefixed, followed by "-e", for Terminal=true entries
	Terminal string
}

// NewExecLauncher creates a launcher using terminal for console applications
func NewExecLauncher(terminal string) *ExecLauncher {
	return &ExecLauncher{Terminal: terminal}
}

// Launch starts the entry in its own session and returns once the process
// has been spawned. The child is reaped in the background.
func (l *ExecLauncher) Launch(entry Entry) error {
	log := logger.WithComponent("launcher")

	argv, err := CommandLine(entry)
	if err != nil {
		return herrors.Wrap(err, herrors.ErrCodeLaunchFailure, fmt.Sprintf("cannot launch %s", entry.Name)).
			WithDetail("id", entry.ID)
	}
	if entry.Terminal {
		term := strings.Fields(l.Terminal)
		if len(term) == 0 {
			term = []string{"xterm"}
		}
		argv = append(append(term, "-e"), argv...)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if entry.WorkDir != "" {
		cmd.Dir = entry.WorkDir
	}
	if devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0); err == nil {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
		defer devNull.Close()
	}

	if err := cmd.Start(); err != nil {
		return herrors.Wrap(err, herrors.ErrCodeLaunchFailure, fmt.Sprintf("cannot launch %s", entry.Name)).
			WithDetail("id", entry.ID)
	}

	log.Info().
		Str("id", entry.ID).
		Int("pid", cmd.Process.Pid).
		Strs("argv", argv).
		Msg("Launched application")

	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// CommandLine expands the entry's Exec key into an argument vector.
// File and URL field codes expand to nothing since nothing is passed.
func CommandLine(entry Entry) ([]string, error) {
	tokens, err := splitExec(entry.Exec)
	if err != nil {
		return nil, err
	}

	var argv []string
	for _, tok := range tokens {
		switch tok {
		case "%f", "%F", "%u", "%U", "%d", "%D", "%n", "%N", "%v", "%m":
			continue
		case "%i":
			if entry.Icon != "" {
				argv = append(argv, "--icon", entry.Icon)
			}
			continue
		}
		expanded, err := expandFieldCodes(tok, entry)
		if err != nil {
			return nil, err
		}
		argv = append(argv, expanded)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty Exec")
	}
	return argv, nil
}

// expandFieldCodes expands field codes embedded inside a single argument
func expandFieldCodes(arg string, entry Entry) (string, error) {
	if !strings.ContainsRune(arg, '%') {
		return arg, nil
	}
	var b strings.Builder
	for i := 0; i < len(arg); i++ {
		if arg[i] != '%' {
			b.WriteByte(arg[i])
			continue
		}
		if i+1 == len(arg) {
			return "", fmt.Errorf("dangling %% in Exec argument %q", arg)
		}
		i++
		switch arg[i] {
		case '%':
			b.WriteByte('%')
		case 'c':
			b.WriteString(entry.Name)
		case 'k':
			b.WriteString(entry.Path)
		case 'f', 'F', 'u', 'U', 'd', 'D', 'n', 'N', 'v', 'm', 'i':
		default:
			return "", fmt.Errorf("unknown field code %%%c", arg[i])
		}
	}
	return b.String(), nil
}

// splitExec tokenizes an Exec value. Double quoted arguments may contain
// spaces; inside quotes a backslash escapes ", `, $ and \.
func splitExec(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote, hasToken := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s) && strings.ContainsRune("\"`$\\", rune(s[i+1])):
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuote = !inQuote
			hasToken = true
		case !inQuote && (c == ' ' || c == '\t'):
			if hasToken {
				args = append(args, cur.String())
				cur.Reset()
				hasToken = false
			}
		default:
			cur.WriteByte(c)
			hasToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in Exec %q", s)
	}
	if hasToken {
		args = append(args, cur.String())
	}
	return args, nil
}
