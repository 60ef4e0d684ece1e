package mongodb

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// casAttempts bounds the compare-and-swap retries of one transition.
const casAttempts = 5

var errStale = errors.New("contact changed concurrently")

type contactRepo struct {
	store      *Store
	collection *mongo.Collection
}

func pairFilter(a, b uuid.UUID) bson.M {
	lo, hi := model.PairKey(a, b)
	return bson.M{"user_lo": lo.String(), "user_hi": hi.String()}
}

func (r *contactRepo) find(ctx context.Context, filter bson.M) (*contactDoc, error) {
	var doc contactDoc
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *contactRepo) Get(ctx context.Context, a, b uuid.UUID) (*model.Contact, error) {
	doc, err := r.find(ctx, pairFilter(a, b))
	if err != nil {
		return nil, apperr.Infrastructure("get contact", err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.model(), nil
}

// update reads the row, applies fn and writes the result only if the row's
// version is unchanged. A lost race re-reads and re-validates.
func (r *contactRepo) update(ctx context.Context, filter bson.M, fn repository.ContactTransition) (*model.Contact, error) {
	for range casAttempts {
		next, err := r.tryUpdate(ctx, filter, fn)
		if errors.Is(err, errStale) {
			continue
		}
		if err != nil {
			return nil, apperr.Infrastructure("update contact", err)
		}
		return next, nil
	}
	return nil, apperr.Infrastructure("update contact", errStale)
}

func (r *contactRepo) tryUpdate(ctx context.Context, filter bson.M, fn repository.ContactTransition) (*model.Contact, error) {
	doc, err := r.find(ctx, filter)
	if err != nil {
		return nil, err
	}

	var cur *model.Contact
	if doc != nil {
		cur = doc.model()
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}

	if doc == nil {
		if next.ID, err = r.store.nextID(ctx, colContacts); err != nil {
			return nil, err
		}
		_, err = r.collection.InsertOne(ctx, toContactDoc(next, 1))
		if mongo.IsDuplicateKeyError(err) {
			return nil, errStale
		}
		return next, err
	}

	res, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID, "version": doc.Version},
		toContactDoc(next, doc.Version+1),
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, errStale
	}
	return next, nil
}

func (r *contactRepo) UpdatePair(ctx context.Context, a, b uuid.UUID, fn repository.ContactTransition) (*model.Contact, error) {
	return r.update(ctx, pairFilter(a, b), fn)
}

func (r *contactRepo) UpdateByID(ctx context.Context, id int64, fn repository.ContactTransition) (*model.Contact, error) {
	return r.update(ctx, bson.M{"_id": id}, fn)
}

func (r *contactRepo) ListByUser(ctx context.Context, user uuid.UUID, statuses ...model.ContactStatus) ([]model.Contact, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"requester_id": user.String()},
		bson.M{"recipient_id": user.String()},
	}}
	if len(statuses) > 0 {
		in := make(bson.A, len(statuses))
		for i, s := range statuses {
			in[i] = string(s)
		}
		filter["status"] = bson.M{"$in": in}
	}

	cur, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Infrastructure("list contacts", err)
	}
	var docs []contactDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Infrastructure("list contacts", err)
	}

	res := make([]model.Contact, len(docs))
	for i := range docs {
		res[i] = *docs[i].model()
	}
	return res, nil
}
