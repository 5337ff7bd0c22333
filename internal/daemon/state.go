package daemon

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/desktop"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/search"
	"github.com/bryanchriswhite/hopper/internal/window"
)

// State is the daemon's single source of truth. It is owned by the actor
// goroutine and only ever changed through Reduce.
type State struct {
	Visible  bool
	Mode     candidate.Mode
	LastMode candidate.Mode
	Query    string
	Selected int
	Results  []search.Match
	// Candidates is the store snapshot for Mode, kept while hidden as a cache
	Candidates []candidate.Candidate
	Loading    bool
	Notice     string
	// Generation changes whenever in-flight rebuild results become stale
	Generation uint64
	MaxResults int
	Stopped    bool
}

// NewState returns the initial Hidden state
func NewState(maxResults int) State {
	return State{Mode: candidate.AppLauncher, LastMode: candidate.AppLauncher, MaxResults: maxResults}
}

// Event is anything the state machine reacts to: client commands and the
// results of work the daemon started
type Event interface{ event() }

// Commands accepted from clients
type (
	Toggle   struct{}
	Show     struct{ Mode candidate.Mode }
	Hide     struct{}
	Query    struct{ Text string }
	Select   struct{ Delta int }
	Activate struct{}
	Quit     struct{}
	Rescan   struct{}
	Status   struct{}
)

// Results of asynchronous work
type (
	candidatesLoaded struct {
		Generation uint64
		Mode       candidate.Mode
		Candidates []candidate.Candidate
		Err        error
	}
	launchFinished struct {
		Entry desktop.Entry
		Err   error
	}
	focusFinished struct {
		Window window.Window
		Err    error
	}
	indexRescanned struct {
		Entries int
		Err     error
	}
)

func (Toggle) event()           {}
func (Show) event()             {}
func (Hide) event()             {}
func (Query) event()            {}
func (Select) event()           {}
func (Activate) event()         {}
func (Quit) event()             {}
func (Rescan) event()           {}
func (Status) event()           {}
func (candidatesLoaded) event() {}
func (launchFinished) event()   {}
func (focusFinished) event()    {}
func (indexRescanned) event()   {}

// Effect is work the actor performs on behalf of a transition
type Effect interface{ effect() }

type (
	// RebuildEffect refreshes the candidate store for Mode
	RebuildEffect struct {
		Generation uint64
		Mode       candidate.Mode
	}
	// LaunchEffect spawns a desktop entry
	LaunchEffect struct{ Entry desktop.Entry }
	// FocusEffect asks the compositor to focus a window
	FocusEffect struct{ Window window.Window }
	// RescanEffect re-reads the desktop entry directories
	RescanEffect struct{}
	// RecordEffect counts a launch in the frequency cache
	RecordEffect struct{ ID string }
	// NotifyEffect shows a desktop notification
	NotifyEffect struct{ Title, Message string }
	// QuitEffect stops the actor
	QuitEffect struct{}
)

func (RebuildEffect) effect() {}
func (LaunchEffect) effect()  {}
func (FocusEffect) effect()   {}
func (RescanEffect) effect()  {}
func (RecordEffect) effect()  {}
func (NotifyEffect) effect()  {}
func (QuitEffect) effect()    {}

// Outcome is the result of applying one event
type Outcome struct {
	State   State
	Effects []Effect
	// Err is returned to the client that sent the command
	Err error
	// Pending defers the client reply until the rebuild of
	// State.Generation has finished or been superseded
	Pending bool
}

// Reduce applies ev to s. It performs no I/O.
func Reduce(s State, ev Event) Outcome {
	switch e := ev.(type) {
	case Toggle:
		if s.Visible {
			return hide(s)
		}
		return show(s, s.LastMode)

	case Show:
		return show(s, e.Mode)

	case Hide:
		return hide(s)

	case Query:
		if !s.Visible {
			return Outcome{State: s, Err: errNotVisible()}
		}
		s.Query = e.Text
		s.Results = search.Rank(s.Query, s.Candidates, s.Mode, s.MaxResults)
		s.Selected = 0
		return Outcome{State: s}

	case Select:
		if !s.Visible {
			return Outcome{State: s, Err: errNotVisible()}
		}
		s.Selected = clampSelection(s.Selected, e.Delta, len(s.Results))
		return Outcome{State: s}

	case Activate:
		if !s.Visible {
			return Outcome{State: s, Err: errNotVisible()}
		}
		if len(s.Results) == 0 {
			return Outcome{State: s, Err: herrors.New(herrors.ErrCodeNothingSelected, "no result to activate")}
		}
		c := s.Results[s.Selected].Candidate
		if c.Kind == candidate.KindWindow {
			out := hide(s)
			out.Effects = append(out.Effects, FocusEffect{Window: *c.Window})
			return out
		}
		return Outcome{State: s, Effects: []Effect{LaunchEffect{Entry: *c.App}}}

	case Quit:
		s.Stopped = true
		return Outcome{State: s, Effects: []Effect{QuitEffect{}}}

	case Rescan:
		return Outcome{State: s, Effects: []Effect{RescanEffect{}}}

	case Status:
		return Outcome{State: s}

	case candidatesLoaded:
		if e.Generation != s.Generation || !s.Visible || e.Mode != s.Mode {
			return Outcome{State: s}
		}
		s.Candidates = e.Candidates
		s.Loading = false
		s.Results = search.Rank(s.Query, s.Candidates, s.Mode, s.MaxResults)
		s.Selected = clampSelection(s.Selected, 0, len(s.Results))
		return Outcome{State: s}

	case launchFinished:
		if e.Err != nil {
			s.Notice = fmt.Sprintf("Could not launch %s: %s", e.Entry.Name, herrors.Message(e.Err))
			return Outcome{
				State:   s,
				Effects: []Effect{NotifyEffect{Title: "Launch failed", Message: s.Notice}},
				Err:     e.Err,
			}
		}
		out := hide(s)
		out.Effects = append(out.Effects, RecordEffect{ID: e.Entry.ID})
		return out

	case focusFinished:
		if e.Err == nil {
			return Outcome{State: s}
		}
		s.Notice = fmt.Sprintf("Could not switch to %s: %s", windowLabel(e.Window), herrors.Message(e.Err))
		return Outcome{
			State:   s,
			Effects: []Effect{NotifyEffect{Title: "Switch failed", Message: s.Notice}},
		}

	case indexRescanned:
		if e.Err != nil || !s.Visible || s.Mode != candidate.AppLauncher {
			return Outcome{State: s}
		}
		s.Generation++
		s.Loading = true
		return Outcome{State: s, Effects: []Effect{RebuildEffect{Generation: s.Generation, Mode: s.Mode}}}
	}

	return Outcome{State: s, Err: herrors.Newf(herrors.ErrCodeInvalidCommand, "unhandled event %T", ev)}
}

func show(s State, mode candidate.Mode) Outcome {
	if s.Mode != mode {
		s.Candidates = nil
	}
	s.Visible = true
	s.Mode = mode
	s.LastMode = mode
	s.Query = ""
	s.Selected = 0
	s.Notice = ""
	s.Loading = true
	s.Generation++
	s.Results = search.Rank("", s.Candidates, mode, s.MaxResults)

	return Outcome{
		State:   s,
		Effects: []Effect{RebuildEffect{Generation: s.Generation, Mode: mode}},
		Pending: true,
	}
}

func hide(s State) Outcome {
	if s.Visible || s.Loading {
		s.Generation++
	}
	s.Visible = false
	s.Query = ""
	s.Selected = 0
	s.Results = nil
	s.Loading = false
	return Outcome{State: s}
}

// clampSelection moves sel by delta within [0, n-1] without overflowing
func clampSelection(sel, delta, n int) int {
	if n == 0 {
		return 0
	}
	last := n - 1
	switch {
	case delta > 0 && delta > last-sel:
		return last
	case delta < 0 && (delta == math.MinInt || -delta > sel):
		return 0
	}
	sel += delta
	if sel > last {
		return last
	}
	if sel < 0 {
		return 0
	}
	return sel
}

func windowLabel(w window.Window) string {
	if w.Title != "" {
		return w.Title
	}
	return w.AppID
}

func errNotVisible() error {
	return herrors.New(herrors.ErrCodeNotVisible, "launcher is hidden")
}

// Snapshot is the state as published to clients and the rendering layer
type Snapshot struct {
	Visible  bool           `json:"visible"`
	Mode     candidate.Mode `json:"mode"`
	Query    string         `json:"query"`
	Selected int            `json:"selected"`
	Loading  bool           `json:"loading"`
	Notice   string         `json:"notice,omitempty"`
	Backend  string         `json:"backend,omitempty"`
	Results  []Result       `json:"results"`
}

// Result is one ranked item in a Snapshot
type Result struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Score       int    `json:"score"`
	// Positions are rune indexes into Name of the matched characters
	Positions []int  `json:"positions,omitempty"`
	Section   string `json:"section"`
	Action    string `json:"action"`
}

// Snapshot converts the state for publication
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		Visible:  s.Visible,
		Mode:     s.Mode,
		Query:    s.Query,
		Selected: s.Selected,
		Loading:  s.Loading,
		Notice:   s.Notice,
		Results:  make([]Result, 0, len(s.Results)),
	}
	for _, m := range s.Results {
		c := m.Candidate
		name := c.Name()
		nameLen := utf8.RuneCountInString(name)

		var positions []int
		for _, p := range m.Positions {
			if p < nameLen {
				positions = append(positions, p)
			}
		}
		snap.Results = append(snap.Results, Result{
			ID:          c.ID(),
			Kind:        string(c.Kind),
			Name:        name,
			Description: c.Description(),
			Icon:        c.Icon(),
			Score:       m.Score,
			Positions:   positions,
			Section:     c.Section(),
			Action:      c.Action(),
		})
	}
	return snap
}
