package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/models"
)

const defaultPageSize = 50

// Lister fetches persisted notifications from the backend.
type Lister interface {
	ListNotifications(ctx context.Context, entityID int64, pageNo, rowsPerPage int) (*models.NotificationListResponse, error)
}

// Store is the client-side notification cache. The server list is
// authoritative; local changes only ever flip IsRead or prepend records
// received in the foreground.
type Store struct {
	mu          sync.RWMutex
	records     []models.NotificationRecord
	unread      int
	nextLocalID int64
	subscribers []func(int)

	lister   Lister
	pageSize int
	logger   log.FieldLogger
}

// NewStore creates an empty store. lister may be nil when Refresh is not used.
func NewStore(lister Lister, pageSize int, logger log.FieldLogger) *Store {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		lister:      lister,
		pageSize:    pageSize,
		nextLocalID: -1,
		logger:      logger.WithField("component", "notifications"),
	}
}

// Refresh replaces the cache with the first page of the driver's
// notifications.
func (s *Store) Refresh(ctx context.Context, entityID int64) error {
	if s.lister == nil {
		return errors.New("notification store has no backend")
	}
	resp, err := s.lister.ListNotifications(ctx, entityID, 1, s.pageSize)
	if err != nil {
		s.logger.WithError(err).WithField("entity_id", entityID).Error("Error fetching notifications")
		return err
	}
	s.Replace(resp.Items)
	return nil
}

// Replace swaps in a server list, newest first.
func (s *Store) Replace(records []models.NotificationRecord) {
	sorted := make([]models.NotificationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	s.mu.Lock()
	s.records = sorted
	count := s.recount()
	subs := s.subscribers
	s.mu.Unlock()
	notify(subs, count)
}

// MarkRead flags the record with the given id as read. It reports whether
// such a record exists. Marking an already read record is a no-op.
func (s *Store) MarkRead(id int64) bool {
	s.mu.Lock()
	found := false
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].IsRead = true
			found = true
			break
		}
	}
	count := s.recount()
	subs := s.subscribers
	s.mu.Unlock()
	if found {
		notify(subs, count)
	}
	return found
}

// Add prepends a locally received record. Records without an id get a
// negative one so they never collide with server ids. A record whose id is
// already present replaces it in place.
func (s *Store) Add(record models.NotificationRecord) models.NotificationRecord {
	s.mu.Lock()
	if record.ID == 0 {
		record.ID = s.nextLocalID
		s.nextLocalID--
	}
	replaced := false
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append([]models.NotificationRecord{record}, s.records...)
	}
	count := s.recount()
	subs := s.subscribers
	s.mu.Unlock()
	notify(subs, count)
	return record
}

// Get returns the record with the given id.
func (s *Store) Get(id int64) (models.NotificationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.NotificationRecord{}, false
}

// List returns a snapshot of the cached records.
func (s *Store) List() []models.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NotificationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// UnreadCount returns the number of records not yet read.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Subscribe registers fn to receive the unread count after every mutation.
// fn is called once immediately with the current count.
func (s *Store) Subscribe(fn func(int)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	count := s.unread
	s.mu.Unlock()
	fn(count)
}

// Actionable reports whether record still offers accept and reject.
func Actionable(record models.NotificationRecord) bool {
	if record.IsRead {
		return false
	}
	_, ok := record.TripID()
	return ok
}

// recount must be called with mu held.
func (s *Store) recount() int {
	n := 0
	for _, r := range s.records {
		if !r.IsRead {
			n++
		}
	}
	s.unread = n
	return n
}

func notify(subs []func(int), count int) {
	for _, fn := range subs {
		fn(count)
	}
}
