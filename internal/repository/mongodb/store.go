// Package mongodb is the document Store. Atomicity comes from single-document
// operations: prekey allocation and reuse are FindOneAndUpdate calls, contact
// transitions are compare-and-swap on a version field, and ids come from a
// counters collection.
package mongodb

import (
	"context"
	"sync"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	colUsers      = "users"
	colPrekeys    = "prekeys"
	colContacts   = "contacts"
	colEphemerals = "ephemeral_keys"
	colMessages   = "messages"
	colCounters   = "counters"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// pairs holds one *sync.Mutex per sender/recipient pair.
	pairs sync.Map
}

var _ repository.Store = (*Store)(nil)

func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperr.Infrastructure("connect mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperr.Infrastructure("ping mongo", err)
	}

	log.Info("connected to mongo", zap.String("database", database))
	return New(client, database), nil
}

func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) Users() repository.UserRepository {
	return &userRepo{collection: s.db.Collection(colUsers)}
}

func (s *Store) Prekeys() repository.PrekeyRepository {
	return &prekeyRepo{store: s, collection: s.db.Collection(colPrekeys)}
}

func (s *Store) Contacts() repository.ContactRepository {
	return &contactRepo{store: s, collection: s.db.Collection(colContacts)}
}

func (s *Store) Ephemerals() repository.EphemeralRepository {
	return &ephemeralRepo{store: s, collection: s.db.Collection(colEphemerals)}
}

func (s *Store) Messages() repository.MessageRepository {
	return &messageRepo{store: s, collection: s.db.Collection(colMessages)}
}

func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "handle", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colPrekeys: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "used", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colContacts: {
			{Keys: bson.D{{Key: "user_lo", Value: 1}, {Key: "user_hi", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "requester_id", Value: 1}}},
			{Keys: bson.D{{Key: "recipient_id", Value: 1}}},
		},
		colEphemerals: {
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "_id", Value: -1}}},
		},
		colMessages: {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "delivered", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "_id", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return apperr.Infrastructure("create indexes on "+name, err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return apperr.Infrastructure("disconnect mongo", s.client.Disconnect(ctx))
}

// nextID returns the next value of the named sequence, starting at 1.
func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// lockPair serializes id allocation and insert for one sender/recipient pair
// so the pair's envelopes become visible in id order. The relay runs as one
// process, since presence lives in its memory.
func (s *Store) lockPair(sender, recipient uuid.UUID) func() {
	v, _ := s.pairs.LoadOrStore(sender.String()+":"+recipient.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
