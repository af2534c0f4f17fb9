package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan StateChange) []StateChange {
	var out []StateChange
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestTracker_MonotoneProgress(t *testing.T) {
	tr := NewTracker(CategoryLookup)
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Update(StageSearch, "resolving", nil)
	tr.Update(StageProviders, "fetching", nil)
	// Going back to an earlier stage must not lower progress.
	tr.Update(StageSearch, "re-resolving", nil)
	tr.Update(StageSynthesis, "writing", nil)
	tr.Complete()

	events := drain(ch)
	require.NotEmpty(t, events)

	last := -1
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Progress, last, "progress must never decrease")
		last = e.Progress
	}

	terminal := events[len(events)-1]
	assert.True(t, terminal.Terminal)
	assert.Equal(t, ChangeComplete, terminal.Kind)
	assert.Equal(t, 100, terminal.Progress)
}

func TestTracker_OnlyOneTerminalWins(t *testing.T) {
	tr := NewTracker(CategoryLookup)
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Update(StageSearch, "", nil)
	tr.Complete()
	tr.Error("internal", "too late")
	tr.Complete()

	events := drain(ch)
	terminals := 0
	for _, e := range events {
		if e.Terminal {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, ChangeComplete, events[len(events)-1].Kind)
}

func TestTracker_ErrorCarriesKindAndStage(t *testing.T) {
	tr := NewTracker(CategoryLookup)
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Update(StageProviders, "", nil)
	tr.Error("upstream_unavailable", "all providers failed")

	events := drain(ch)
	terminal := events[len(events)-1]
	assert.Equal(t, ChangeError, terminal.Kind)
	assert.Equal(t, "upstream_unavailable", terminal.ErrorKind)
	assert.Equal(t, StageProviders, terminal.Stage)
	assert.True(t, terminal.Terminal)
}

func TestTracker_UpdateAfterTerminalIsIgnored(t *testing.T) {
	tr := NewTracker(CategoryLookup)
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Complete()
	tr.Update(StageSearch, "ghost", nil)

	events := drain(ch)
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal)
}

func TestTracker_ResetClearsTerminal(t *testing.T) {
	tr := NewTracker(CategoryGeneric)
	tr.Complete()
	require.True(t, tr.Terminal())

	tr.Reset()
	assert.False(t, tr.Terminal())

	ch, cancel := tr.Subscribe()
	defer cancel()
	tr.Update(StageComplete, "", nil)
	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, 100, events[0].Progress)
}

func TestStagesFor_UnknownCategoryFallsBack(t *testing.T) {
	stages := StagesFor(Category("nope"))
	assert.Equal(t, StagesFor(CategoryGeneric), stages)
}

func TestTracker_SlowSubscriberKeepsTerminal(t *testing.T) {
	tr := NewTracker(CategoryLookup)
	ch, cancel := tr.Subscribe()
	defer cancel()

	// Overflow the buffer without consuming.
	for i := 0; i < subscriberBuffer*2; i++ {
		tr.Update(StageSearch, "spam", nil)
	}
	tr.Complete()

	events := drain(ch)
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Terminal, "terminal event must survive overflow")
}
