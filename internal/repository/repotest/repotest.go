// Package repotest is the conformance suite every repository.Store engine
// runs from its own tests.
package repotest

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) repository.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("prekeys", func(t *testing.T) { testPrekeys(t, newStore(t)) })
	t.Run("concurrent allocate", func(t *testing.T) { testConcurrentAllocate(t, newStore(t)) })
	t.Run("concurrent replenish", func(t *testing.T) { testConcurrentReplenish(t, newStore(t)) })
	t.Run("contacts", func(t *testing.T) { testContacts(t, newStore(t)) })
	t.Run("ephemerals", func(t *testing.T) { testEphemerals(t, newStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("concurrent drains", func(t *testing.T) { testConcurrentDrains(t, newStore(t)) })
	t.Run("concurrent sends", func(t *testing.T) { testConcurrentSends(t, newStore(t)) })
}

func Key() []byte {
	k := make([]byte, 32)
	_, _ = rand.Read(k)
	return k
}

// NewUser creates a user with a unique handle built from name.
func NewUser(t *testing.T, s repository.Store, name string) *model.User {
	t.Helper()
	u := &model.User{
		Handle:      fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		IdentityKey: Key(),
		SignedPrekey: model.SignedPrekey{
			KeyID:     1,
			PublicKey: Key(),
			Signature: []byte("sig"),
		},
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func Uploads(from uint32, n int) []model.PrekeyUpload {
	res := make([]model.PrekeyUpload, n)
	for i := range res {
		res[i] = model.PrekeyUpload{KeyID: from + uint32(i), PublicKey: Key()}
	}
	return res
}

func testUsers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := NewUser(t, s, "alice")
	assert.NotEqual(t, uuid.Nil, alice.ID)
	assert.False(t, alice.CreatedAt.IsZero())

	t.Run("lookup by handle and id", func(t *testing.T) {
		byHandle, err := s.Users().GetByHandle(ctx, alice.Handle)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byHandle.ID)
		assert.Equal(t, alice.IdentityKey, byHandle.IdentityKey)
		assert.Equal(t, alice.SignedPrekey, byHandle.SignedPrekey)

		byID, err := s.Users().GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Handle, byID.Handle)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Users().GetByHandle(ctx, "nobody@example.com")
		assert.True(t, apperr.IsNotFound(err))
		_, err = s.Users().GetByID(ctx, uuid.New())
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("duplicate handle", func(t *testing.T) {
		err := s.Users().Create(ctx, &model.User{Handle: alice.Handle, IdentityKey: Key()})
		assert.ErrorIs(t, err, apperr.ErrHandleTaken)
	})

	t.Run("batch lookup skips unknown ids", func(t *testing.T) {
		bob := NewUser(t, s, "bob")
		users, err := s.Users().GetByIDs(ctx, []uuid.UUID{alice.ID, bob.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, bob.Handle, users[bob.ID].Handle)
	})

	t.Run("rotate signed prekey", func(t *testing.T) {
		spk := model.SignedPrekey{KeyID: 2, PublicKey: Key(), Signature: []byte("sig2")}
		require.NoError(t, s.Users().UpdateSignedPrekey(ctx, alice.ID, spk))
		got, err := s.Users().GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, spk, got.SignedPrekey)

		err = s.Users().UpdateSignedPrekey(ctx, uuid.New(), spk)
		assert.True(t, apperr.IsNotFound(err))
	})
}

func testPrekeys(t *testing.T, s repository.Store) {
	ctx := context.Background()
	bob := NewUser(t, s, "bob")
	repo := s.Prekeys()

	t.Run("empty pool is degraded not an error", func(t *testing.T) {
		k, err := repo.Allocate(ctx, bob.ID)
		require.NoError(t, err)
		assert.Nil(t, k)
	})

	t.Run("allocate takes lowest slot once", func(t *testing.T) {
		res, err := repo.Replenish(ctx, bob.ID, Uploads(10, 3))
		require.NoError(t, err)
		assert.Equal(t, model.ReplenishResult{Appended: 3}, res)

		n, err := repo.CountUnused(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		first, err := repo.Allocate(ctx, bob.ID)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, uint32(10), first.KeyID)
		assert.True(t, first.Used)

		second, err := repo.Allocate(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(11), second.KeyID)

		n, _ = repo.CountUnused(ctx, bob.ID)
		assert.Equal(t, 1, n)
	})

	t.Run("replenish reuses used slots before appending", func(t *testing.T) {
		res, err := repo.Replenish(ctx, bob.ID, Uploads(20, 3))
		require.NoError(t, err)
		assert.Equal(t, model.ReplenishResult{Reused: 2, Appended: 1}, res)

		n, _ := repo.CountUnused(ctx, bob.ID)
		assert.Equal(t, 4, n)

		// slot of key 10 now carries key 20
		k, err := repo.Allocate(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(20), k.KeyID)
	})

	t.Run("single used slot is reused not appended", func(t *testing.T) {
		carol := NewUser(t, s, "carol")
		_, err := repo.Replenish(ctx, carol.ID, Uploads(1, 1))
		require.NoError(t, err)
		_, err = repo.Allocate(ctx, carol.ID)
		require.NoError(t, err)

		res, err := repo.Replenish(ctx, carol.ID, Uploads(2, 1))
		require.NoError(t, err)
		assert.Equal(t, model.ReplenishResult{Reused: 1}, res)

		n, _ := repo.CountUnused(ctx, carol.ID)
		assert.Equal(t, 1, n)
	})

	t.Run("claim bundle consumes one key", func(t *testing.T) {
		dave := NewUser(t, s, "dave")
		_, err := repo.Replenish(ctx, dave.ID, Uploads(1, 1))
		require.NoError(t, err)

		b, err := repo.ClaimBundle(ctx, dave.ID)
		require.NoError(t, err)
		assert.Equal(t, dave.Handle, b.Handle)
		assert.Equal(t, dave.IdentityKey, b.IdentityKey)
		assert.Equal(t, dave.SignedPrekey, b.SignedPrekey)
		require.NotNil(t, b.OneTimePrekey)
		assert.Equal(t, uint32(1), b.OneTimePrekey.KeyID)

		b, err = repo.ClaimBundle(ctx, dave.ID)
		require.NoError(t, err)
		assert.Nil(t, b.OneTimePrekey)

		_, err = repo.ClaimBundle(ctx, uuid.New())
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("pools are per owner", func(t *testing.T) {
		erin := NewUser(t, s, "erin")
		k, err := repo.Allocate(ctx, erin.ID)
		require.NoError(t, err)
		assert.Nil(t, k)
	})
}

func testConcurrentAllocate(t *testing.T, s repository.Store) {
	ctx := context.Background()
	bob := NewUser(t, s, "bob")
	const pool, callers = 20, 32

	_, err := s.Prekeys().Replenish(ctx, bob.ID, Uploads(1, pool))
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[uint32]int)
		none int
	)
	g, gctx := errgroup.WithContext(ctx)
	for range callers {
		g.Go(func() error {
			k, err := s.Prekeys().Allocate(gctx, bob.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if k == nil {
				none++
				return nil
			}
			if !k.Used {
				return fmt.Errorf("key %d returned unused", k.KeyID)
			}
			seen[k.KeyID]++
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, pool)
	for id, n := range seen {
		assert.Equal(t, 1, n, "key %d issued %d times", id, n)
	}
	assert.Equal(t, callers-pool, none)

	n, err := s.Prekeys().CountUnused(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Replenishes racing over the same used slots must all reuse before any of
// them appends.
func testConcurrentReplenish(t *testing.T, s repository.Store) {
	ctx := context.Background()
	bob := NewUser(t, s, "bob")
	const pool, callers = 12, 4

	_, err := s.Prekeys().Replenish(ctx, bob.ID, Uploads(1, pool))
	require.NoError(t, err)
	for range pool {
		k, err := s.Prekeys().Allocate(ctx, bob.ID)
		require.NoError(t, err)
		require.NotNil(t, k)
	}

	var (
		mu    sync.Mutex
		total model.ReplenishResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range callers {
		g.Go(func() error {
			res, err := s.Prekeys().Replenish(gctx, bob.ID, Uploads(uint32(100*(i+1)), pool/callers))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			total.Reused += res.Reused
			total.Appended += res.Appended
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, pool, total.Reused)
	assert.Zero(t, total.Appended, "pool grew while used slots were free")

	n, err := s.Prekeys().CountUnused(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, pool, n)
}

func request(a, b uuid.UUID) repository.ContactTransition {
	return func(cur *model.Contact) (*model.Contact, error) {
		return model.Request(cur, a, b, time.Now().UTC())
	}
}

func respond(caller uuid.UUID, accept bool) repository.ContactTransition {
	return func(cur *model.Contact) (*model.Contact, error) {
		return model.Respond(cur, caller, accept, time.Now().UTC())
	}
}

func testContacts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Contacts()
	alice, bob, carol := NewUser(t, s, "alice"), NewUser(t, s, "bob"), NewUser(t, s, "carol")

	c, err := repo.Get(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, c)

	pending, err := repo.UpdatePair(ctx, alice.ID, bob.ID, request(alice.ID, bob.ID))
	require.NoError(t, err)
	assert.NotZero(t, pending.ID)
	assert.Equal(t, model.ContactPending, pending.Status)

	t.Run("pair lookup is unordered", func(t *testing.T) {
		got, err := repo.Get(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, pending.ID, got.ID)
		assert.Equal(t, alice.ID, got.RequesterID)
	})

	t.Run("failed transition writes nothing", func(t *testing.T) {
		_, err := repo.UpdatePair(ctx, bob.ID, alice.ID, request(bob.ID, alice.ID))
		assert.ErrorIs(t, err, apperr.ErrReversePending)

		got, _ := repo.Get(ctx, alice.ID, bob.ID)
		assert.Equal(t, alice.ID, got.RequesterID)
		assert.Equal(t, model.ContactPending, got.Status)
	})

	t.Run("reject then request re-arms the same row", func(t *testing.T) {
		rejected, err := repo.UpdateByID(ctx, pending.ID, respond(bob.ID, false))
		require.NoError(t, err)
		assert.Equal(t, model.ContactRejected, rejected.Status)

		again, err := repo.UpdatePair(ctx, alice.ID, bob.ID, request(alice.ID, bob.ID))
		require.NoError(t, err)
		assert.Equal(t, pending.ID, again.ID)
		assert.Equal(t, model.ContactPending, again.Status)

		all, err := repo.ListByUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("unknown id reaches the transition as nil", func(t *testing.T) {
		_, err := repo.UpdateByID(ctx, 987654, respond(bob.ID, true))
		assert.ErrorIs(t, err, apperr.ErrRequestNotFound)
	})

	t.Run("list filters by status", func(t *testing.T) {
		_, err := repo.UpdateByID(ctx, pending.ID, respond(bob.ID, true))
		require.NoError(t, err)
		_, err = repo.UpdatePair(ctx, carol.ID, bob.ID, request(carol.ID, bob.ID))
		require.NoError(t, err)

		accepted, err := repo.ListByUser(ctx, bob.ID, model.ContactAccepted)
		require.NoError(t, err)
		require.Len(t, accepted, 1)
		assert.Equal(t, alice.ID, accepted[0].Peer(bob.ID))

		waiting, err := repo.ListByUser(ctx, bob.ID, model.ContactPending)
		require.NoError(t, err)
		require.Len(t, waiting, 1)
		assert.Equal(t, carol.ID, waiting[0].RequesterID)

		both, err := repo.ListByUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Len(t, both, 2)
	})
}

func testEphemerals(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Ephemerals()
	alice, bob := NewUser(t, s, "alice"), NewUser(t, s, "bob")

	k, err := repo.Latest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, k)

	prekeyID := uint32(7)
	first := &model.EphemeralKey{SenderID: alice.ID, RecipientID: bob.ID, PublicKey: Key(), PrekeyID: &prekeyID}
	require.NoError(t, repo.Create(ctx, first))
	second := &model.EphemeralKey{SenderID: alice.ID, RecipientID: bob.ID, PublicKey: Key()}
	require.NoError(t, repo.Create(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	latest, err := repo.Latest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, second.PublicKey, latest.PublicKey)
	assert.Nil(t, latest.PrekeyID)

	reverse, err := repo.Latest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, reverse, "lookup is for the ordered pair")
}

func send(t *testing.T, s repository.Store, from, to uuid.UUID, body string) *model.Envelope {
	t.Helper()
	e := &model.Envelope{SenderID: from, RecipientID: to, Kind: model.KindText, Ciphertext: []byte(body)}
	require.NoError(t, s.Messages().Create(context.Background(), e))
	return e
}

func testMessages(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Messages()
	alice, bob, carol := NewUser(t, s, "alice"), NewUser(t, s, "bob"), NewUser(t, s, "carol")

	m1 := send(t, s, alice.ID, bob.ID, "m1")
	m2 := send(t, s, alice.ID, bob.ID, "m2")
	c1 := send(t, s, carol.ID, bob.ID, "c1")
	r1 := send(t, s, bob.ID, alice.ID, "r1")
	assert.Less(t, m1.ID, m2.ID)
	assert.Less(t, m2.ID, c1.ID)

	t.Run("count undelivered per sender", func(t *testing.T) {
		counts, err := repo.CountUndelivered(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]int64{alice.ID: 2, carol.ID: 1}, counts)
	})

	t.Run("drain is ordered and marks delivered", func(t *testing.T) {
		got, err := repo.DrainUndelivered(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, m1.ID, got[0].ID)
		assert.Equal(t, []byte("m1"), got[0].Ciphertext)
		assert.Equal(t, m2.ID, got[1].ID)

		again, err := repo.DrainUndelivered(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, again)

		e, err := repo.Get(ctx, m1.ID)
		require.NoError(t, err)
		assert.True(t, e.Delivered)
		assert.False(t, e.Read)
	})

	t.Run("mark delivered is idempotent", func(t *testing.T) {
		changed, err := repo.MarkDelivered(ctx, c1.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.MarkDelivered(ctx, c1.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		e, _ := repo.Get(ctx, c1.ID)
		assert.True(t, e.Delivered)

		_, err = repo.MarkDelivered(ctx, 1<<40)
		assert.ErrorIs(t, err, apperr.ErrMessageNotFound)
	})

	t.Run("mark read is monotone", func(t *testing.T) {
		n, err := repo.MarkRead(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = repo.MarkRead(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		e, _ := repo.Get(ctx, m2.ID)
		assert.True(t, e.Read)
		assert.True(t, e.Delivered)

		r, _ := repo.Get(ctx, r1.ID)
		assert.False(t, r.Read, "other direction untouched")
	})

	t.Run("history pages newest first", func(t *testing.T) {
		page, err := repo.History(ctx, bob.ID, alice.ID, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, r1.ID, page[0].ID)
		assert.Equal(t, m2.ID, page[1].ID)

		rest, err := repo.History(ctx, alice.ID, bob.ID, page[1].ID, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, m1.ID, rest[0].ID)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := repo.Get(ctx, 1<<40)
		assert.True(t, apperr.IsNotFound(err))
	})
}

func testConcurrentDrains(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice, bob := NewUser(t, s, "alice"), NewUser(t, s, "bob")
	const backlog, drainers = 40, 8

	for i := range backlog {
		send(t, s, alice.ID, bob.ID, fmt.Sprintf("m%d", i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	for range drainers {
		g.Go(func() error {
			got, err := s.Messages().DrainUndelivered(gctx, bob.ID, alice.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range got {
				seen[e.ID]++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, backlog)
	for id, n := range seen {
		assert.Equal(t, 1, n, "envelope %d drained %d times", id, n)
	}

	n, err := s.Messages().CountUndelivered(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n[alice.ID])
}

// A drain running alongside a burst of sends must never hand out a later
// envelope of the pair before an earlier one.
func testConcurrentSends(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice, bob := NewUser(t, s, "alice"), NewUser(t, s, "bob")
	const senders, each = 8, 10

	var sent, drained []int64
	var mu sync.Mutex
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range each {
				e := &model.Envelope{
					SenderID:    alice.ID,
					RecipientID: bob.ID,
					Kind:        model.KindText,
					Ciphertext:  []byte(fmt.Sprintf("s%d-%d", i, j)),
				}
				if err := s.Messages().Create(gctx, e); err != nil {
					return err
				}
				mu.Lock()
				sent = append(sent, e.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	g.Go(func() error {
		for {
			select {
			case <-done:
				got, err := s.Messages().DrainUndelivered(gctx, bob.ID, alice.ID)
				for _, e := range got {
					drained = append(drained, e.ID)
				}
				return err
			default:
			}
			got, err := s.Messages().DrainUndelivered(gctx, bob.ID, alice.ID)
			if err != nil {
				return err
			}
			for _, e := range got {
				drained = append(drained, e.ID)
			}
		}
	})
	require.NoError(t, g.Wait())

	assert.ElementsMatch(t, sent, drained)
	for i := 1; i < len(drained); i++ {
		assert.Less(t, drained[i-1], drained[i], "envelope %d drained before %d", drained[i], drained[i-1])
	}
}
