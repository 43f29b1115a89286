package storefakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
)

var _ session.Store = (*FakeStore)(nil)

// FakeStore is an in-memory session.Store. Fault fields let tests inject
// errors on individual operations; counters record how often each operation
// ran so tests can assert "no write happened".
type FakeStore struct {
	lock sync.Mutex

	record *session.Session

	SaveErr   error
	LoadErr   error
	DeleteErr error

	Saves   int
	Loads   int
	Deletes int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Save(_ context.Context, s *session.Session) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.Saves++
	if fs.SaveErr != nil {
		return errors.Wrap(session.StorageFaultErr, fs.SaveErr.Error())
	}
	fs.record = s
	return nil
}

func (fs *FakeStore) Load(_ context.Context) (*session.Session, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.Loads++
	if fs.LoadErr != nil {
		return nil, fs.LoadErr
	}
	return fs.record, nil
}

func (fs *FakeStore) Delete(_ context.Context) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.Deletes++
	if fs.DeleteErr != nil {
		return errors.Wrap(session.StorageFaultErr, fs.DeleteErr.Error())
	}
	fs.record = nil
	return nil
}

// Stored returns the current record without counting as a Load.
func (fs *FakeStore) Stored() *session.Session {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.record
}

// Seed places a record in the store without counting as a Save.
func (fs *FakeStore) Seed(s *session.Session) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.record = s
}
