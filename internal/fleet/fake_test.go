package fleet

import (
	"context"
	"net/http"
	"sync"

	"github.com/strefethen/vr-console-go/internal/backend"
)

type statusUpdate struct {
	ID     string
	Status string
}

type fakeBackend struct {
	mu sync.Mutex

	devices    []backend.Device
	sessions   []backend.Session
	activities []backend.Activity
	videos     []backend.Video
	// offPage devices are reachable by id but not listed.
	offPage []backend.Device

	updates      []statusUpdate
	creates      []backend.CreateSessionRequest
	replays      [][]string
	deletes      []string
	calls        int
	replayResult *backend.ReplayResult

	updateErr func(id string) error
	createErr error
	replayErr error
}

func (f *fakeBackend) ListDevices(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Device], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rows := append([]backend.Device{}, f.devices...)
	return &backend.Page[backend.Device]{Rows: rows, Count: len(rows), Page: 1, Limit: params.Limit}, nil
}

func (f *fakeBackend) ListActivities(ctx context.Context) (*backend.Page[backend.Activity], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rows := append([]backend.Activity{}, f.activities...)
	return &backend.Page[backend.Activity]{Rows: rows, Count: len(rows), Page: 1}, nil
}

func (f *fakeBackend) ListSessions(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Session], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rows := append([]backend.Session{}, f.sessions...)
	return &backend.Page[backend.Session]{Rows: rows, Count: len(rows), Page: 1, Limit: params.Limit}, nil
}

func (f *fakeBackend) UpdateSessionStatus(ctx context.Context, id, status string) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.updates = append(f.updates, statusUpdate{ID: id, Status: status})
	if f.updateErr != nil {
		if err := f.updateErr(id); err != nil {
			return nil, err
		}
	}
	for i := range f.sessions {
		if f.sessions[i].ID == id {
			f.sessions[i].Status = status
			s := f.sessions[i]
			return &s, nil
		}
	}
	return &backend.Session{ID: id, Status: status}, nil
}

func (f *fakeBackend) CreateSession(ctx context.Context, req backend.CreateSessionRequest) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &backend.Session{ID: "new-" + req.DeviceID, DeviceID: req.DeviceID, Status: backend.StatusPending}, nil
}

func (f *fakeBackend) ReplayMultiple(ctx context.Context, deviceIDs []string) (*backend.ReplayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.replays = append(f.replays, append([]string{}, deviceIDs...))
	if f.replayErr != nil {
		return nil, f.replayErr
	}
	if f.replayResult != nil {
		return f.replayResult, nil
	}
	result := &backend.ReplayResult{}
	for _, id := range deviceIDs {
		result.Successful = append(result.Successful, backend.ReplayOutcome{DeviceID: id})
	}
	return result, nil
}

func (f *fakeBackend) CreateDevice(ctx context.Context, req backend.CreateDeviceRequest) (*backend.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d := backend.Device{ID: "dev-" + req.DeviceID, DeviceID: req.DeviceID, Title: req.Title, DeviceStatus: req.DeviceStatus}
	f.devices = append(f.devices, d)
	return &d, nil
}

func (f *fakeBackend) GetDevice(ctx context.Context, id string) (*backend.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, d := range append(append([]backend.Device{}, f.devices...), f.offPage...) {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, &backend.Error{StatusCode: http.StatusNotFound, Message: "Device not found"}
}

func (f *fakeBackend) ListVideos(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Video], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rows := make([]backend.Video, 0, len(f.videos))
	for _, v := range f.videos {
		if params.Status == "" || v.Status == params.Status {
			rows = append(rows, v)
		}
	}
	return &backend.Page[backend.Video]{Rows: rows, Count: len(rows), Page: params.Page, Limit: params.Limit, TotalPages: 1}, nil
}

func (f *fakeBackend) DeleteDevice(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.deletes = append(f.deletes, id)
	for i, d := range f.devices {
		if d.ID == id {
			f.devices = append(f.devices[:i], f.devices[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) setDeviceStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.devices {
		if f.devices[i].ID == id {
			f.devices[i].DeviceStatus = status
		}
	}
}

func (f *fakeBackend) setSessions(sessions []backend.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = sessions
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) recordedUpdates() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate{}, f.updates...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	toasts  []Toast
	shakes  int
	changes int
}

func (n *recordingNotifier) Toast(toast Toast) {
	n.mu.Lock()
	n.toasts = append(n.toasts, toast)
	n.mu.Unlock()
}

func (n *recordingNotifier) Shake() {
	n.mu.Lock()
	n.shakes++
	n.mu.Unlock()
}

func (n *recordingNotifier) Changed(Dashboard) {
	n.mu.Lock()
	n.changes++
	n.mu.Unlock()
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	titles := make([]string, 0, len(n.toasts))
	for _, t := range n.toasts {
		titles = append(titles, t.Title)
	}
	return titles
}

func (n *recordingNotifier) last() Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.toasts) == 0 {
		return Toast{}
	}
	return n.toasts[len(n.toasts)-1]
}

func device(id, title string, online bool) backend.Device {
	status := "DISCONNECTED"
	if online {
		status = backend.DeviceConnected
	}
	return backend.Device{ID: id, DeviceID: "HW-" + id, Title: title, DeviceStatus: status}
}

func session(id, deviceID, status string) backend.Session {
	return backend.Session{ID: id, DeviceID: deviceID, Status: status}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
