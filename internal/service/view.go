package service

import (
	"sync"

	"github.com/noah-isme/gema-homework-api/internal/dto"
)

// Placeholders rendered instead of an empty list.
const (
	PlaceholderLoading         = "Loading..."
	PlaceholderNoTeacherWork   = "No homework assigned yet."
	PlaceholderNotInClass      = "You are not in any class."
	PlaceholderNoStudentWork   = "No homework found for your classes."
	PlaceholderNoStudents      = "No students"
	rosterSeparator            = ", "
	homeworkTextSeparator      = " – "
	viewSubscriberBufferLength = 1
)

// View holds the rendered dashboard state of one session and pushes every
// new version to its watchers. A slow watcher only ever misses intermediate
// versions, never the latest one.
type View struct {
	mu          sync.RWMutex
	current     dto.DashboardView
	subscribers map[chan dto.DashboardView]struct{}
	closed      bool
}

// NewView returns a view in the logged-out state.
func NewView() *View {
	v := &View{subscribers: make(map[chan dto.DashboardView]struct{})}
	v.current = loggedOutView()
	return v
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() dto.DashboardView {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.current.Clone()
}

// Update applies mutate to the state, bumps the version and notifies watchers.
func (v *View) Update(mutate func(view *dto.DashboardView)) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}

	mutate(&v.current)
	v.current.Version++

	for ch := range v.subscribers {
		deliverLatest(ch, v.current.Clone())
	}
}

// Watch streams view versions, starting with the current one. The returned
// cleanup closes the channel.
func (v *View) Watch() (<-chan dto.DashboardView, func()) {
	ch := make(chan dto.DashboardView, viewSubscriberBufferLength)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.subscribers[ch] = struct{}{}
	ch <- v.current.Clone()
	v.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()

			if _, ok := v.subscribers[ch]; ok {
				delete(v.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cleanup
}

// Close ends every watch stream.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	for ch := range v.subscribers {
		delete(v.subscribers, ch)
		close(ch)
	}
}

func deliverLatest(ch chan dto.DashboardView, view dto.DashboardView) {
	select {
	case ch <- view:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- view:
	default:
	}
}

func loggedOutView() dto.DashboardView {
	return dto.DashboardView{
		State:   string(StateLoggedOut),
		Visible: dto.Visibility{Auth: true},
		TeacherHomework: dto.ItemList{
			Items: []dto.ListItem{},
		},
		Classes:      []dto.ClassRow{},
		ClassOptions: []dto.ClassOption{},
		StudentHomework: dto.ItemList{
			Items: []dto.ListItem{},
		},
	}
}

// resetView clears everything but the version counter.
func resetView(view *dto.DashboardView) {
	version := view.Version
	*view = loggedOutView()
	view.Version = version
}

func loadingList() dto.ItemList {
	return dto.ItemList{Items: []dto.ListItem{}, Placeholder: PlaceholderLoading}
}

func setViewError(view *dto.DashboardView, err error) {
	if err == nil {
		view.Error = nil
		return
	}
	kind := KindName(err)
	if kind == "" {
		kind = "backend"
	}
	view.Error = &dto.ViewError{Kind: kind, Message: err.Error()}
}
