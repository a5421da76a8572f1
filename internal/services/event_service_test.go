package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaemin-s/eventsync/internal/database/testutil"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []string
}

func (r *recordingNotifier) EventChanged(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, kind+":"+id)
}

func newEventService(t *testing.T) (*EventService, *recordingNotifier) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifier := &recordingNotifier{}
	svc, err := NewEventService(db, notifier)
	require.NoError(t, err)
	return svc, notifier
}

func TestNewEventServiceRequiresDB(t *testing.T) {
	_, err := NewEventService(nil, nil)
	require.Error(t, err)
}

func TestEventService_CreateAndGet(t *testing.T) {
	svc, notifier := newEventService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEventInput{Title: "  Launch  ", OrganizerID: "org-1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Launch", created.Title)
	require.Equal(t, "draft", created.Status)
	require.Equal(t, 1, created.Metadata.Data().Version)
	require.Equal(t, "org-1", created.Metadata.Data().LastModifiedBy)

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Title, fetched.Title)

	require.Equal(t, []string{"event.created:" + created.ID}, notifier.changes)
}

func TestEventService_CreateRejectsArchived(t *testing.T) {
	svc, _ := newEventService(t)

	_, err := svc.Create(context.Background(), CreateEventInput{Title: "Old", Status: "archived", OrganizerID: "org-1"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestEventService_RejectsBlankTitle(t *testing.T) {
	svc, notifier := newEventService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateEventInput{Title: " \t\n ", OrganizerID: "org-1"})
	require.ErrorIs(t, err, ErrBlankTitle)

	created, err := svc.Create(ctx, CreateEventInput{Title: "Launch", OrganizerID: "org-1"})
	require.NoError(t, err)

	blank := "   "
	_, err = svc.Update(ctx, created.ID, UpdateEventInput{Title: &blank})
	require.ErrorIs(t, err, ErrBlankTitle)

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Launch", fetched.Title)
	require.Equal(t, 1, fetched.Metadata.Data().Version)
	require.Len(t, notifier.changes, 1)
}

func TestEventService_UpdateBumpsRevision(t *testing.T) {
	svc, notifier := newEventService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEventInput{Title: "Launch", OrganizerID: "org-1"})
	require.NoError(t, err)

	title := "Launch v2"
	status := "published"
	updated, err := svc.Update(ctx, created.ID, UpdateEventInput{Title: &title, Status: &status, Actor: "alice"})
	require.NoError(t, err)
	require.Equal(t, "Launch v2", updated.Title)
	require.Equal(t, "published", updated.Status)
	require.Equal(t, 2, updated.Metadata.Data().Version)
	require.Equal(t, "alice", updated.Metadata.Data().LastModifiedBy)

	bad := "deleted"
	_, err = svc.Update(ctx, created.ID, UpdateEventInput{Status: &bad})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Update(ctx, "missing", UpdateEventInput{Title: &title})
	require.ErrorIs(t, err, ErrEventNotFound)

	require.Len(t, notifier.changes, 2)
}

func TestEventService_Delete(t *testing.T) {
	svc, notifier := newEventService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEventInput{Title: "Launch", OrganizerID: "org-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, created.ID), ErrEventNotFound)

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrEventNotFound)
	require.Equal(t, "event.deleted:"+created.ID, notifier.changes[len(notifier.changes)-1])
}

func TestEventService_ListPaginates(t *testing.T) {
	svc, _ := newEventService(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, CreateEventInput{Title: title, OrganizerID: "org-1"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListEventsOptions{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Equal(t, 2, page.Page)
	require.Equal(t, 2, page.PerPage)
	require.Len(t, page.Events, 1)

	page, err = svc.List(ctx, ListEventsOptions{PerPage: 1000})
	require.NoError(t, err)
	require.Equal(t, MaxPerPage, page.PerPage)
	require.Equal(t, 1, page.Page)
	require.Len(t, page.Events, 3)

	_, err = svc.List(ctx, ListEventsOptions{Status: "bogus"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}
