package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-homework-api/internal/dto"
)

func TestViewStartsLoggedOut(t *testing.T) {
	view := NewView()
	snapshot := view.Snapshot()

	require.Equal(t, string(StateLoggedOut), snapshot.State)
	require.Equal(t, dto.Visibility{Auth: true}, snapshot.Visible)
	require.NotNil(t, snapshot.Classes)
	require.NotNil(t, snapshot.TeacherHomework.Items)
	require.Zero(t, snapshot.Version)
}

func TestViewSnapshotIsACopy(t *testing.T) {
	view := NewView()
	view.Update(func(v *dto.DashboardView) {
		v.Classes = []dto.ClassRow{{ID: "c1", Name: "Algebra I", Roster: []dto.ListItem{{ID: "s1"}}}}
	})

	snapshot := view.Snapshot()
	snapshot.Classes[0].Name = "changed"
	snapshot.Classes[0].Roster[0].ID = "changed"

	fresh := view.Snapshot()
	require.Equal(t, "Algebra I", fresh.Classes[0].Name)
	require.Equal(t, "s1", fresh.Classes[0].Roster[0].ID)
	require.Equal(t, uint64(1), fresh.Version)
}

func TestViewWatchDeliversLatestVersion(t *testing.T) {
	view := NewView()
	updates, cleanup := view.Watch()
	defer cleanup()

	first := <-updates
	require.Zero(t, first.Version)

	for i := 0; i < 5; i++ {
		view.Update(func(v *dto.DashboardView) { v.Email = "teacher@x.com" })
	}

	latest := <-updates
	require.Equal(t, uint64(5), latest.Version)
	require.Equal(t, "teacher@x.com", latest.Email)

	cleanup()
	_, ok := <-updates
	require.False(t, ok)
	cleanup()
}

func TestViewCloseEndsWatchers(t *testing.T) {
	view := NewView()
	updates, cleanup := view.Watch()
	<-updates

	view.Close()
	_, ok := <-updates
	require.False(t, ok)
	cleanup()

	view.Update(func(v *dto.DashboardView) { v.Email = "late@x.com" })
	require.Empty(t, view.Snapshot().Email)

	closed, _ := view.Watch()
	_, ok = <-closed
	require.False(t, ok)
}

func TestSetViewErrorUsesKind(t *testing.T) {
	var v dto.DashboardView

	setViewError(&v, validationError("Enter a class name."))
	require.Equal(t, &dto.ViewError{Kind: "validation", Message: "Enter a class name."}, v.Error)

	setViewError(&v, nil)
	require.Nil(t, v.Error)
}
