package mongodb

import (
	"context"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageRepo struct {
	store      *Store
	collection *mongo.Collection
}

func (r *messageRepo) Create(ctx context.Context, e *model.Envelope) error {
	unlock := r.store.lockPair(e.SenderID, e.RecipientID)
	defer unlock()

	id, err := r.store.nextID(ctx, colMessages)
	if err != nil {
		return apperr.Infrastructure("next message id", err)
	}

	doc := messageDoc{
		ID:          id,
		SenderID:    e.SenderID.String(),
		RecipientID: e.RecipientID.String(),
		Kind:        string(e.Kind),
		Ciphertext:  e.Ciphertext,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := r.collection.InsertOne(ctx, &doc); err != nil {
		return apperr.Infrastructure("create message", err)
	}
	e.ID, e.CreatedAt = doc.ID, doc.CreatedAt
	e.Delivered, e.Read = false, false
	return nil
}

func (r *messageRepo) Get(ctx context.Context, id int64) (*model.Envelope, error) {
	var doc messageDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		return nil, apperr.Infrastructure("get message", err)
	}
	e := doc.model()
	return &e, nil
}

func (r *messageRepo) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "delivered": false},
		bson.M{"$set": bson.M{"delivered": true}},
	)
	if err != nil {
		return false, apperr.Infrastructure("mark delivered", err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, apperr.Infrastructure("mark delivered", err)
	}
	if n == 0 {
		return false, apperr.ErrMessageNotFound
	}
	return false, nil
}

func (r *messageRepo) MarkRead(ctx context.Context, sender, recipient uuid.UUID) (int, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"sender_id": sender.String(), "recipient_id": recipient.String(), "read": false},
		bson.M{"$set": bson.M{"read": true, "delivered": true}},
	)
	if err != nil {
		return 0, apperr.Infrastructure("mark read", err)
	}
	return int(res.ModifiedCount), nil
}

// DrainUndelivered claims envelopes one at a time, oldest first. Each claim
// flips delivered in the same document update, so concurrent drains split
// the backlog instead of both returning it.
func (r *messageRepo) DrainUndelivered(ctx context.Context, recipient, sender uuid.UUID) ([]model.Envelope, error) {
	filter := bson.M{"recipient_id": recipient.String(), "sender_id": sender.String(), "delivered": false}
	update := bson.M{"$set": bson.M{"delivered": true}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var res []model.Envelope
	for {
		var doc messageDoc
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return res, nil
		}
		if err != nil {
			if len(res) > 0 {
				// Claimed envelopes are already delivered; hand them over
				// and leave the rest for the next drain.
				return res, nil
			}
			return nil, apperr.Infrastructure("drain undelivered", err)
		}
		res = append(res, doc.model())
	}
}

func (r *messageRepo) History(ctx context.Context, a, b uuid.UUID, beforeID int64, limit int) ([]model.Envelope, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a.String(), "recipient_id": b.String()},
		bson.M{"sender_id": b.String(), "recipient_id": a.String()},
	}}
	if beforeID > 0 {
		filter["_id"] = bson.M{"$lt": beforeID}
	}

	cur, err := r.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, apperr.Infrastructure("history", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Infrastructure("history", err)
	}

	res := make([]model.Envelope, len(docs))
	for i := range docs {
		res[i] = docs[i].model()
	}
	return res, nil
}

func (r *messageRepo) CountUndelivered(ctx context.Context, recipient uuid.UUID) (map[uuid.UUID]int64, error) {
	cur, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"recipient_id": recipient.String(), "delivered": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$sender_id", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, apperr.Infrastructure("count undelivered", err)
	}
	var rows []struct {
		SenderID string `bson:"_id"`
		N        int64  `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, apperr.Infrastructure("count undelivered", err)
	}

	res := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		res[parseID(row.SenderID)] = row.N
	}
	return res, nil
}
