package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerrad567/gray-logic-relay/internal/mailbox"
)

type responseDoc struct {
	ID         int64     `bson:"_id"`
	DeviceID   string    `bson:"device_id"`
	DeviceCode string    `bson:"device_code"`
	Payload    string    `bson:"payload"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (d responseDoc) toResponse() mailbox.Response {
	return mailbox.Response{
		ID:         d.ID,
		DeviceID:   d.DeviceID,
		DeviceCode: d.DeviceCode,
		Payload:    json.RawMessage(d.Payload),
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

// ResponseRepository implements mailbox.Repository on MongoDB.
type ResponseRepository struct {
	coll  *mongo.Collection
	ids   *idAllocator
	locks *keyedMutex
}

var _ mailbox.Repository = (*ResponseRepository)(nil)

// Insert stores a response under a freshly allocated id.
func (r *ResponseRepository) Insert(ctx context.Context, resp *mailbox.Response) (int64, error) {
	id, err := r.ids.next(ctx, collResponses)
	if err != nil {
		return 0, err
	}
	doc := responseDoc{
		ID:         id,
		DeviceID:   resp.DeviceID,
		DeviceCode: resp.DeviceCode,
		Payload:    string(resp.Payload),
		CreatedAt:  resp.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return 0, fmt.Errorf("inserting response: %w", err)
	}
	return id, nil
}

// TakeRecent consumes responses newest first with FindOneAndDelete, so each
// response is handed to exactly one reader.
func (r *ResponseRepository) TakeRecent(ctx context.Context, code string, since time.Time, limit int) ([]mailbox.Response, error) {
	unlock := r.locks.Lock(code)
	defer unlock()

	filter := bson.D{
		{Key: "device_code", Value: code},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since}}},
	}
	opts := options.FindOneAndDelete().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var taken []mailbox.Response
	for len(taken) < limit {
		var doc responseDoc
		err := r.coll.FindOneAndDelete(ctx, filter, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return taken, fmt.Errorf("taking response: %w", err)
		}
		taken = append(taken, doc.toResponse())
	}
	return taken, nil
}

// DeleteBefore purges aged responses.
func (r *ResponseRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.D{
		{Key: "created_at", Value: bson.D{{Key: "$lt", Value: before}}},
	})
	if err != nil {
		return 0, fmt.Errorf("deleting responses: %w", err)
	}
	return result.DeletedCount, nil
}

// Count returns the number of stored responses.
func (r *ResponseRepository) Count(ctx context.Context) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("counting responses: %w", err)
	}
	return int(n), nil
}
