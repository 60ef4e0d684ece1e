// Package memory is a process-local Store. One mutex guards every table, so
// each repository call is trivially a transaction. It backs tests and the
// default development configuration.
package memory

import (
	"context"
	"sync"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"

	"github.com/google/uuid"
)

type pair struct {
	lo, hi uuid.UUID
}

func pairOf(a, b uuid.UUID) pair {
	lo, hi := model.PairKey(a, b)
	return pair{lo: lo, hi: hi}
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users    map[uuid.UUID]*model.User
	handles  map[string]uuid.UUID
	prekeys  map[uuid.UUID][]*model.OneTimePrekey
	contacts map[pair]*model.Contact
	byID     map[int64]pair
	ephemera []*model.EphemeralKey
	messages []*model.Envelope

	slotSeq, contactSeq, ephemeralSeq int64
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[uuid.UUID]*model.User),
		handles:  make(map[string]uuid.UUID),
		prekeys:  make(map[uuid.UUID][]*model.OneTimePrekey),
		contacts: make(map[pair]*model.Contact),
		byID:     make(map[int64]pair),
	}
}

func (s *Store) Users() repository.UserRepository           { return (*userRepo)(s) }
func (s *Store) Prekeys() repository.PrekeyRepository       { return (*prekeyRepo)(s) }
func (s *Store) Contacts() repository.ContactRepository     { return (*contactRepo)(s) }
func (s *Store) Ephemerals() repository.EphemeralRepository { return (*ephemeralRepo)(s) }
func (s *Store) Messages() repository.MessageRepository     { return (*messageRepo)(s) }

func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
