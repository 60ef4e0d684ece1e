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

type ephemeralRepo struct {
	store      *Store
	collection *mongo.Collection
}

func (r *ephemeralRepo) Create(ctx context.Context, k *model.EphemeralKey) error {
	id, err := r.store.nextID(ctx, colEphemerals)
	if err != nil {
		return apperr.Infrastructure("next ephemeral id", err)
	}

	doc := ephemeralDoc{
		ID:          id,
		SenderID:    k.SenderID.String(),
		RecipientID: k.RecipientID.String(),
		PublicKey:   k.PublicKey,
		PrekeyID:    k.PrekeyID,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := r.collection.InsertOne(ctx, &doc); err != nil {
		return apperr.Infrastructure("create ephemeral key", err)
	}
	k.ID, k.CreatedAt = doc.ID, doc.CreatedAt
	return nil
}

func (r *ephemeralRepo) Latest(ctx context.Context, sender, recipient uuid.UUID) (*model.EphemeralKey, error) {
	var doc ephemeralDoc
	err := r.collection.FindOne(ctx,
		bson.M{"sender_id": sender.String(), "recipient_id": recipient.String()},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure("latest ephemeral key", err)
	}
	return doc.model(), nil
}
