package daemon

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/desktop"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appCandidates(names ...string) []candidate.Candidate {
	out := make([]candidate.Candidate, 0, len(names))
	for i, n := range names {
		out = append(out, candidate.FromEntry(desktop.Entry{ID: n + ".desktop", Name: n, Exec: n}, i, 0))
	}
	return out
}

// visible returns a state showing the app launcher with cands loaded
func visible(t *testing.T, cands []candidate.Candidate) State {
	t.Helper()
	out := Reduce(NewState(0), Show{Mode: candidate.AppLauncher})
	require.True(t, out.Pending)
	out = Reduce(out.State, candidatesLoaded{Generation: out.State.Generation, Mode: candidate.AppLauncher, Candidates: cands})
	require.NoError(t, out.Err)
	require.False(t, out.State.Loading)
	return out.State
}

func TestShowRequestsRebuild(t *testing.T) {
	out := Reduce(NewState(0), Show{Mode: candidate.WindowSwitcher})

	assert.True(t, out.State.Visible)
	assert.True(t, out.State.Loading)
	assert.Equal(t, candidate.WindowSwitcher, out.State.Mode)
	assert.True(t, out.Pending)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, RebuildEffect{Generation: out.State.Generation, Mode: candidate.WindowSwitcher}, out.Effects[0])
}

func TestToggleIsSelfInverse(t *testing.T) {
	s := NewState(0)
	s.LastMode = candidate.WindowSwitcher

	shown := Reduce(s, Toggle{}).State
	assert.True(t, shown.Visible)
	assert.Equal(t, candidate.WindowSwitcher, shown.Mode)

	hidden := Reduce(shown, Toggle{}).State
	assert.False(t, hidden.Visible)
	assert.Equal(t, s.Visible, hidden.Visible)
	assert.Equal(t, s.Query, hidden.Query)
	assert.Equal(t, s.Selected, hidden.Selected)
	assert.Empty(t, hidden.Results)

	again := Reduce(hidden, Toggle{}).State
	assert.Equal(t, candidate.WindowSwitcher, again.Mode, "toggle reopens the last mode")
}

func TestHideClearsQueryAndSelection(t *testing.T) {
	s := visible(t, appCandidates("alpha", "beta", "gamma"))
	s = Reduce(s, Query{Text: "a"}).State
	s = Reduce(s, Select{Delta: 1}).State

	out := Reduce(s, Hide{})
	assert.False(t, out.State.Visible)
	assert.Empty(t, out.State.Query)
	assert.Zero(t, out.State.Selected)
	assert.Empty(t, out.State.Results)
	assert.NoError(t, out.Err)

	// hide while hidden is a no-op, not an error
	again := Reduce(out.State, Hide{})
	assert.NoError(t, again.Err)
	assert.Equal(t, out.State, again.State)
}

func TestQueryRanksAndResetsSelection(t *testing.T) {
	s := visible(t, appCandidates("Firefox", "Files", "Terminal"))
	s = Reduce(s, Select{Delta: 2}).State
	require.Equal(t, 2, s.Selected)

	s = Reduce(s, Query{Text: "fi"}).State
	assert.Zero(t, s.Selected)
	require.Len(t, s.Results, 2)
	assert.Equal(t, "Files", s.Results[0].Candidate.Name())
}

func TestCommandsRequireVisible(t *testing.T) {
	for _, ev := range []Event{Query{Text: "x"}, Select{Delta: 1}, Activate{}} {
		out := Reduce(NewState(0), ev)
		assert.Equal(t, herrors.ErrCodeNotVisible, herrors.GetCode(out.Err), "%T", ev)
		assert.Empty(t, out.Effects)
	}
}

func TestSelectClamps(t *testing.T) {
	s := visible(t, appCandidates("a", "b", "c", "d", "e"))
	n := len(s.Results)

	assert.Equal(t, n-1, Reduce(s, Select{Delta: math.MaxInt}).State.Selected)
	assert.Equal(t, 0, Reduce(s, Select{Delta: math.MinInt}).State.Selected)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		delta := rng.Intn(21) - 10
		s = Reduce(s, Select{Delta: delta}).State
		require.GreaterOrEqual(t, s.Selected, 0)
		require.Less(t, s.Selected, n)
	}
}

func TestSelectWithNoResults(t *testing.T) {
	s := visible(t, nil)
	out := Reduce(s, Select{Delta: 3})
	require.NoError(t, out.Err)
	assert.Zero(t, out.State.Selected)
}

func TestActivateNothingSelected(t *testing.T) {
	s := visible(t, appCandidates("Firefox"))
	s = Reduce(s, Query{Text: "zzz"}).State

	out := Reduce(s, Activate{})
	assert.Equal(t, herrors.ErrCodeNothingSelected, herrors.GetCode(out.Err))
	assert.True(t, out.State.Visible)
}

func TestActivateAppLaunchesThenHides(t *testing.T) {
	s := visible(t, appCandidates("Firefox", "Files"))
	s = Reduce(s, Select{Delta: 1}).State

	out := Reduce(s, Activate{})
	require.NoError(t, out.Err)
	require.Len(t, out.Effects, 1)
	launch, ok := out.Effects[0].(LaunchEffect)
	require.True(t, ok)
	assert.Equal(t, "Files.desktop", launch.Entry.ID)

	done := Reduce(out.State, launchFinished{Entry: launch.Entry})
	assert.False(t, done.State.Visible)
	assert.Contains(t, done.Effects, Effect(RecordEffect{ID: "Files.desktop"}))
}

func TestActivateLaunchFailureStaysVisible(t *testing.T) {
	s := visible(t, appCandidates("Broken"))
	launch := Reduce(s, Activate{}).Effects[0].(LaunchEffect)

	cause := herrors.New(herrors.ErrCodeLaunchFailure, "exec: not found")
	out := Reduce(s, launchFinished{Entry: launch.Entry, Err: cause})

	assert.True(t, out.State.Visible)
	assert.Equal(t, herrors.ErrCodeLaunchFailure, herrors.GetCode(out.Err))
	assert.Contains(t, out.State.Notice, "Broken")
	require.Len(t, out.Effects, 1)
	assert.IsType(t, NotifyEffect{}, out.Effects[0])
}

func TestActivateWindowHidesAndFocuses(t *testing.T) {
	w := window.Window{ID: "0xabc", Title: "Editor", AppID: "code"}
	out := Reduce(NewState(0), Show{Mode: candidate.WindowSwitcher})
	s := Reduce(out.State, candidatesLoaded{
		Generation: out.State.Generation,
		Mode:       candidate.WindowSwitcher,
		Candidates: []candidate.Candidate{candidate.FromWindow(w, 0)},
	}).State

	act := Reduce(s, Activate{})
	require.NoError(t, act.Err)
	assert.False(t, act.State.Visible)
	assert.Equal(t, []Effect{FocusEffect{Window: w}}, act.Effects)

	failed := Reduce(act.State, focusFinished{Window: w, Err: errors.New("gone")})
	assert.Contains(t, failed.State.Notice, "Editor")
	assert.NoError(t, failed.Err)
}

func TestStaleRebuildIsIgnored(t *testing.T) {
	first := Reduce(NewState(0), Show{Mode: candidate.AppLauncher})
	staleGen := first.State.Generation
	second := Reduce(first.State, Show{Mode: candidate.WindowSwitcher})

	out := Reduce(second.State, candidatesLoaded{Generation: staleGen, Mode: candidate.AppLauncher, Candidates: appCandidates("x")})
	assert.True(t, out.State.Loading)
	assert.Empty(t, out.State.Candidates)

	hidden := Reduce(second.State, Hide{}).State
	out = Reduce(hidden, candidatesLoaded{Generation: second.State.Generation, Mode: candidate.WindowSwitcher})
	assert.False(t, out.State.Visible)
}

func TestRescanRebuildsVisibleAppList(t *testing.T) {
	s := visible(t, appCandidates("a"))
	out := Reduce(s, indexRescanned{Entries: 2})
	require.Len(t, out.Effects, 1)
	assert.Equal(t, RebuildEffect{Generation: out.State.Generation, Mode: candidate.AppLauncher}, out.Effects[0])
	assert.False(t, out.Pending)

	hidden := Reduce(NewState(0), indexRescanned{Entries: 2})
	assert.Empty(t, hidden.Effects)
}

func TestSnapshotPositionsIndexName(t *testing.T) {
	s := visible(t, []candidate.Candidate{
		candidate.FromEntry(desktop.Entry{ID: "f.desktop", Name: "Fx", Keywords: []string{"fox"}, Comment: "browser"}, 0, 0),
	})
	s = Reduce(s, Query{Text: "fxo"}).State

	snap := s.Snapshot()
	require.Len(t, snap.Results, 1)
	r := snap.Results[0]
	assert.Equal(t, "f.desktop", r.ID)
	assert.Equal(t, "app", r.Kind)
	assert.Equal(t, "browser", r.Description)
	assert.Equal(t, "Open", r.Action)
	for _, h := range r.Positions {
		assert.Less(t, h, 2)
	}
}
