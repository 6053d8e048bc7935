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

	"github.com/nerrad567/gray-logic-relay/internal/command"
)

// commandDoc stores the payload as JSON text, mirroring the SQLite column,
// so a damaged document surfaces as a corrupt payload rather than a decode
// failure for the whole batch.
type commandDoc struct {
	ID         int64      `bson:"_id"`
	DeviceID   string     `bson:"device_id"`
	DeviceCode string     `bson:"device_code"`
	Payload    string     `bson:"payload"`
	Status     string     `bson:"status"`
	CreatedAt  time.Time  `bson:"created_at"`
	ExecutedAt *time.Time `bson:"executed_at,omitempty"`
}

func (d commandDoc) toCommand() command.Command {
	c := command.Command{
		ID:         d.ID,
		DeviceID:   d.DeviceID,
		DeviceCode: d.DeviceCode,
		Payload:    json.RawMessage(d.Payload),
		Status:     command.Status(d.Status),
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.ExecutedAt != nil {
		t := d.ExecutedAt.UTC()
		c.ExecutedAt = &t
	}
	return c
}

// CommandRepository implements command.Repository on MongoDB.
type CommandRepository struct {
	coll  *mongo.Collection
	ids   *idAllocator
	locks *keyedMutex
}

var _ command.Repository = (*CommandRepository)(nil)

// Insert stores a pending command under a freshly allocated id.
func (r *CommandRepository) Insert(ctx context.Context, c *command.Command) (int64, error) {
	id, err := r.ids.next(ctx, collCommands)
	if err != nil {
		return 0, err
	}
	doc := commandDoc{
		ID:         id,
		DeviceID:   c.DeviceID,
		DeviceCode: c.DeviceCode,
		Payload:    string(c.Payload),
		Status:     string(command.StatusPending),
		CreatedAt:  c.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return 0, fmt.Errorf("inserting command: %w", err)
	}
	return id, nil
}

// ClaimPending claims commands one document at a time. Each claim is an
// atomic pending→completed transition, so a command can be returned to at
// most one caller; the per-device lock keeps the batch in id order.
func (r *CommandRepository) ClaimPending(ctx context.Context, deviceID string, limit int, at time.Time) ([]command.Command, error) {
	unlock := r.locks.Lock(deviceID)
	defer unlock()

	executedAt := at.UTC()
	filter := bson.D{
		{Key: "device_id", Value: deviceID},
		{Key: "status", Value: string(command.StatusPending)},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(command.StatusCompleted)},
		{Key: "executed_at", Value: executedAt},
	}}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var claimed []command.Command
	for len(claimed) < limit {
		var doc commandDoc
		err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			// Already-claimed commands are delivered; the caller gets them
			// along with the error so none are lost.
			return claimed, fmt.Errorf("claiming command: %w", err)
		}
		claimed = append(claimed, doc.toCommand())
	}
	return claimed, nil
}

// DeleteCompletedBefore purges completed commands.
func (r *CommandRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.D{
		{Key: "status", Value: string(command.StatusCompleted)},
		{Key: "executed_at", Value: bson.D{{Key: "$lt", Value: before}}},
	})
	if err != nil {
		return 0, fmt.Errorf("deleting completed commands: %w", err)
	}
	return result.DeletedCount, nil
}

// CountByStatus returns command counts keyed by status, zero-filled.
func (r *CommandRepository) CountByStatus(ctx context.Context) (map[command.Status]int, error) {
	counts := make(map[command.Status]int, len(command.AllStatuses()))
	for _, s := range command.AllStatuses() {
		n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "status", Value: string(s)}})
		if err != nil {
			return nil, fmt.Errorf("counting %s commands: %w", s, err)
		}
		counts[s] = int(n)
	}
	return counts, nil
}
