package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerReload(t *testing.T) {
	te := newTestEngine(t)
	s := NewScheduler(te.Engine)
	t.Cleanup(s.Stop)

	require.NoError(t, s.Reload("@daily"))
	assert.Equal(t, "@daily", s.Schedule())

	// A new schedule replaces the old entry.
	require.NoError(t, s.Reload("*/5 * * * *"))
	assert.Equal(t, "*/5 * * * *", s.Schedule())

	// An empty schedule disables scheduled runs.
	require.NoError(t, s.Reload(""))
	assert.Empty(t, s.Schedule())
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	te := newTestEngine(t)
	s := NewScheduler(te.Engine)
	t.Cleanup(s.Stop)

	err := s.Reload("not a cron")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a cron")

	// The failed reload must not leave a stale entry behind.
	assert.Empty(t, s.Schedule())
}

func TestSchedulerStartStop(t *testing.T) {
	te := newTestEngine(t)
	s := NewScheduler(te.Engine)
	require.NoError(t, s.Reload("@hourly"))

	assert.NotPanics(t, func() {
		s.Start()
		s.Stop()
	})
}
