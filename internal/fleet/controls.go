package fleet

// Controls describes which session commands the current selection allows.
type Controls struct {
	CanStart           bool   `json:"can_start"`
	CanPause           bool   `json:"can_pause"`
	CanResume          bool   `json:"can_resume"`
	CanStop            bool   `json:"can_stop"`
	CanReplay          bool   `json:"can_replay"`
	StartLabel         string `json:"start_label"`
	HasExistingSession bool   `json:"has_existing_session"`
	QueuedItems        int    `json:"queued_items"`
	Loading            bool   `json:"loading"`
}

// ComputeControls derives the command capabilities for the selected devices.
func ComputeControls(selected []DeviceView, activity *ActivitySelection, catalog []ActivityView, loading bool) Controls {
	hasSelection := len(selected) > 0
	allIdle := true
	var somePending, hasExisting, someRunning, somePaused bool
	var runningNeedsVideo, pausedNeedsVideo bool
	existing := 0

	for _, d := range selected {
		if d.SessionState != StateIdle {
			allIdle = false
		}
		switch d.SessionState {
		case StatePending:
			somePending = true
			hasExisting = true
			existing++
		case StateReady:
			hasExisting = true
			existing++
		case StateRunning:
			someRunning = true
			if requiresVideo(d) {
				runningNeedsVideo = true
			}
		case StatePaused:
			somePaused = true
			if requiresVideo(d) {
				pausedNeedsVideo = true
			}
		}
	}

	activitySelected := activity != nil
	c := Controls{
		CanStart:           hasSelection && !somePending && (allIdle || hasExisting) && (activitySelected || hasExisting),
		CanPause:           hasSelection && someRunning && runningNeedsVideo,
		CanResume:          hasSelection && somePaused && pausedNeedsVideo,
		CanStop:            hasSelection && (someRunning || somePaused),
		CanReplay:          hasSelection && allIdle && !loading,
		StartLabel:         "Start",
		HasExistingSession: hasExisting,
		Loading:            loading,
	}
	if hasExisting {
		c.StartLabel = "Play"
	}
	if loading {
		c.CanStart, c.CanPause, c.CanResume, c.CanStop = false, false, false, false
	}

	if activitySelected {
		c.QueuedItems = queuedItems(*activity, catalog)
	} else {
		c.QueuedItems = existing
	}
	return c
}

// requiresVideo treats an unknown requirement as required.
func requiresVideo(d DeviceView) bool {
	return d.IsVideoRequired == nil || *d.IsVideoRequired != 0
}

// queuedItems counts the videos that will play from the selected video to
// the end of the activity, or 1 for activities without videos.
func queuedItems(selection ActivitySelection, catalog []ActivityView) int {
	a, ok := findActivity(catalog, selection.ActivityID)
	if !ok || !a.HasVideos || selection.VideoID == nil {
		return 1
	}
	start := 0
	for i, v := range a.Videos {
		if v.ID == *selection.VideoID {
			start = i
			break
		}
	}
	return len(a.Videos) - start
}
