package fleet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/vr-console-go/internal/backend"
)

func TestProjectState_Total(t *testing.T) {
	cases := map[string]SessionState{
		backend.StatusPending:   StatePending,
		backend.StatusReady:     StateReady,
		backend.StatusPlaying:   StateRunning,
		backend.StatusResumed:   StateRunning,
		backend.StatusPaused:    StatePaused,
		backend.StatusStopped:   StateIdle,
		backend.StatusCompleted: StateIdle,
		backend.StatusFailed:    StateIdle,
		"":                      StateIdle,
		"SOMETHING_NEW":         StateIdle,
	}
	for status, want := range cases {
		require.Equal(t, want, ProjectState(status), "status %q", status)
	}
}

func TestFirstActiveOrFirst(t *testing.T) {
	primary, ok := FirstActiveOrFirst([]backend.Session{
		session("A", "d1", backend.StatusReady),
		session("B", "d1", backend.StatusPlaying),
	})
	require.True(t, ok)
	require.Equal(t, "B", primary.ID)

	primary, ok = FirstActiveOrFirst([]backend.Session{
		session("A", "d1", backend.StatusReady),
		session("B", "d1", backend.StatusPending),
	})
	require.True(t, ok)
	require.Equal(t, "A", primary.ID)

	_, ok = FirstActiveOrFirst(nil)
	require.False(t, ok)
}

func TestProject_PrimarySessionDrivesState(t *testing.T) {
	s := session("B", "d1", backend.StatusPaused)
	s.Activity = backend.OneOrMany[backend.Activity]{{ID: "a1", Title: "Fire Drill", IsVideoRequired: 1}}
	s.Video = backend.OneOrMany[backend.Video]{{ID: "v1", Title: "Intro"}, {ID: "v2", Title: "Outro"}}

	views := DefaultProjector.Project(
		[]backend.Device{device("d1", "Quest 1", true)},
		[]backend.Session{session("A", "d1", backend.StatusReady), s, session("C", "d1", backend.StatusCompleted)},
	)

	require.Len(t, views, 1)
	v := views[0]
	require.Equal(t, Online, v.Status)
	require.Equal(t, StatePaused, v.SessionState)
	require.Equal(t, "B", v.ActiveSessionID)
	require.Equal(t, strPtr("Fire Drill"), v.CurrentActivity)
	require.Equal(t, strPtr("Intro"), v.CurrentVideo)
	require.Equal(t, intPtr(1), v.IsVideoRequired)

	require.Len(t, v.Sessions, 2)
	require.Equal(t, "A", v.Sessions[0].ID)
	require.Equal(t, StateReady, v.Sessions[0].Status)
	require.Nil(t, v.Sessions[0].Activity)
	require.Equal(t, StatePaused, v.Sessions[1].Status)
}

func TestProject_NoRelevantSessions(t *testing.T) {
	views := DefaultProjector.Project(
		[]backend.Device{device("d1", "Quest 1", false)},
		[]backend.Session{
			session("A", "d1", backend.StatusCompleted),
			session("B", "d1", backend.StatusStopped),
			session("C", "d2", backend.StatusPlaying),
		},
	)

	require.Len(t, views, 1)
	require.Equal(t, Offline, views[0].Status)
	require.Equal(t, StateIdle, views[0].SessionState)
	require.NotNil(t, views[0].Sessions)
	require.Empty(t, views[0].Sessions)
	require.Empty(t, views[0].ActiveSessionID)
	require.Nil(t, views[0].CurrentActivity)
	require.Nil(t, views[0].CurrentVideo)
}

func TestProject_Idempotent(t *testing.T) {
	devices := []backend.Device{device("d1", "Quest 1", true), device("d2", "Quest 2", false)}
	s := session("A", "d1", backend.StatusPlaying)
	s.Activity = backend.OneOrMany[backend.Activity]{{ID: "a1", Title: "Evacuation"}}
	sessions := []backend.Session{s, session("B", "d2", backend.StatusPending)}

	first := DefaultProjector.Project(devices, sessions)
	second := DefaultProjector.Project(devices, sessions)
	require.Equal(t, first, second)
}

func TestProject_CustomPolicy(t *testing.T) {
	last := func(sessions []backend.Session) (backend.Session, bool) {
		if len(sessions) == 0 {
			return backend.Session{}, false
		}
		return sessions[len(sessions)-1], true
	}
	views := Projector{Primary: last}.Project(
		[]backend.Device{device("d1", "Quest 1", true)},
		[]backend.Session{session("A", "d1", backend.StatusPlaying), session("B", "d1", backend.StatusReady)},
	)
	require.Equal(t, "B", views[0].ActiveSessionID)
	require.Equal(t, StateReady, views[0].SessionState)
}

func TestProjectActivities_OnlyActiveVideos(t *testing.T) {
	catalog := ProjectActivities([]backend.Activity{
		{
			ID: "a1", Title: "Fire Drill", IsVideoRequired: 1,
			Videos: []backend.Video{
				{ID: "v1", Title: "Intro", Status: "ACTIVE", TotalTime: "00:05:00"},
				{ID: "v2", Title: "Draft", Status: "INACTIVE"},
			},
		},
		{ID: "a2", Title: "Free Roam"},
	})

	require.Len(t, catalog, 2)
	require.True(t, catalog[0].HasVideos)
	require.Len(t, catalog[0].Videos, 1)
	require.Equal(t, "Intro", catalog[0].Videos[0].Name)
	require.Equal(t, "00:05:00", catalog[0].Videos[0].Duration)
	require.False(t, catalog[1].HasVideos)
	require.NotNil(t, catalog[1].Videos)
}
