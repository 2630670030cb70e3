package calendarexport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// ErrReadOnly is returned by every mutating Backend method: export is
// one-way, engine to calendar, and never accepts writes back.
var ErrReadOnly = errors.New("scheduling: calendar export is read-only")

// Store holds the exported per-resource calendars currently being served,
// refreshed after each planning call.
type Store struct {
	mu        sync.RWMutex
	calendars map[int]*ical.Calendar
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{calendars: make(map[int]*ical.Calendar)}
}

// Replace atomically swaps the calendar exported for one resource.
func (s *Store) Replace(resourceID int, cal *ical.Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[resourceID] = cal
}

// ReplaceAll atomically swaps every exported calendar with calendars,
// dropping any resource no longer present in the latest planning call.
func (s *Store) ReplaceAll(calendars map[int]*ical.Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars = calendars
}

func (s *Store) get(resourceID int) (*ical.Calendar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cal, ok := s.calendars[resourceID]
	return cal, ok
}

func (s *Store) resourcePath(resourceID int) string {
	return fmt.Sprintf("/calendars/resource-%d.ics", resourceID)
}

// Backend implements caldav.Backend as a read-only view over a Store: it
// serves exactly the calendar objects Replace/ReplaceAll populated and
// rejects every write.
type Backend struct {
	store *Store
}

// NewBackend constructs a caldav.Backend serving store's calendars.
func NewBackend(store *Store) *Backend {
	return &Backend{store: store}
}

// NewHandler builds an http.Handler serving store's calendars read-only
// over CalDAV.
func NewHandler(store *Store) http.Handler {
	return &caldav.Handler{Backend: NewBackend(store)}
}

func (b *Backend) CalendarHomeSetPath(ctx context.Context) (string, error) {
	return "/calendars/", nil
}

func (b *Backend) Calendar(ctx context.Context) (*caldav.Calendar, error) {
	return &caldav.Calendar{
		Path:                  "/calendars/",
		Name:                  "Planning run calendar export",
		Description:           "Read-only export of the engine's assigned hours",
		SupportedComponentSet: []string{"VEVENT"},
	}, nil
}

func (b *Backend) GetCalendarObject(ctx context.Context, path string, req *caldav.CalendarCompRequest) (*caldav.CalendarObject, error) {
	resourceID, ok := resourceIDFromPath(b.store, path)
	if !ok {
		return nil, fmt.Errorf("scheduling: no calendar object at %q", path)
	}
	cal, _ := b.store.get(resourceID)
	return &caldav.CalendarObject{
		Path:     path,
		ModTime:  time.Now().UTC(),
		Calendar: cal,
	}, nil
}

func (b *Backend) ListCalendarObjects(ctx context.Context, req *caldav.CalendarCompRequest) ([]caldav.CalendarObject, error) {
	b.store.mu.RLock()
	resourceIDs := make([]int, 0, len(b.store.calendars))
	for id := range b.store.calendars {
		resourceIDs = append(resourceIDs, id)
	}
	b.store.mu.RUnlock()

	out := make([]caldav.CalendarObject, 0, len(resourceIDs))
	for _, id := range resourceIDs {
		cal, _ := b.store.get(id)
		out = append(out, caldav.CalendarObject{
			Path:     b.store.resourcePath(id),
			ModTime:  time.Now().UTC(),
			Calendar: cal,
		})
	}
	return out, nil
}

func (b *Backend) QueryCalendarObjects(ctx context.Context, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	return b.ListCalendarObjects(ctx, &query.CompRequest)
}

func (b *Backend) PutCalendarObject(ctx context.Context, path string, calendar *ical.Calendar, opts *caldav.PutCalendarObjectOptions) (*caldav.CalendarObject, error) {
	return nil, ErrReadOnly
}

func (b *Backend) DeleteCalendarObject(ctx context.Context, path string) error {
	return ErrReadOnly
}

func resourceIDFromPath(store *Store, path string) (int, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	for id := range store.calendars {
		if store.resourcePath(id) == path {
			return id, true
		}
	}
	return 0, false
}
