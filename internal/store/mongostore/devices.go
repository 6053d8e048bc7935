package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nerrad567/gray-logic-relay/internal/device"
)

type deviceDoc struct {
	ID           string    `bson:"_id"`
	Code         string    `bson:"code"`
	Kind         string    `bson:"kind"`
	Status       string    `bson:"status"`
	LastSeen     time.Time `bson:"last_seen"`
	RegisteredAt time.Time `bson:"registered_at"`
}

func (d deviceDoc) toDevice() device.Device {
	return device.Device{
		ID:           d.ID,
		Code:         d.Code,
		Kind:         d.Kind,
		Status:       device.Status(d.Status),
		LastSeen:     d.LastSeen.UTC(),
		RegisteredAt: d.RegisteredAt.UTC(),
	}
}

// DeviceRepository implements device.Repository on MongoDB.
type DeviceRepository struct {
	coll *mongo.Collection
	// codes serialises registrations that derive the same code, so the
	// collision check and the upsert cannot interleave within this process.
	codes *keyedMutex
}

var _ device.Repository = (*DeviceRepository)(nil)

// Register upserts a device, keeping registered_at and never moving
// last_seen backwards.
func (r *DeviceRepository) Register(ctx context.Context, d *device.Device, liveSince time.Time) error {
	unlock := r.codes.Lock(d.Code)
	defer unlock()

	holders, err := r.coll.CountDocuments(ctx, bson.D{
		{Key: "code", Value: d.Code},
		{Key: "_id", Value: bson.D{{Key: "$ne", Value: d.ID}}},
		{Key: "status", Value: string(device.StatusOnline)},
		{Key: "last_seen", Value: bson.D{{Key: "$gte", Value: liveSince}}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("checking code holder: %w", err)
	}
	if holders > 0 {
		return fmt.Errorf("%w: %s", device.ErrCodeConflict, d.Code)
	}

	_, err = r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: d.ID}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "code", Value: d.Code},
				{Key: "kind", Value: d.Kind},
				{Key: "status", Value: string(device.StatusOnline)},
			}},
			{Key: "$max", Value: bson.D{{Key: "last_seen", Value: d.LastSeen}}},
			{Key: "$setOnInsert", Value: bson.D{{Key: "registered_at", Value: d.RegisteredAt}}},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}

	var doc deviceDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: d.ID}}).Decode(&doc); err != nil {
		return fmt.Errorf("reading registered device: %w", err)
	}
	*d = doc.toDevice()
	return nil
}

// Touch advances last_seen and marks the device online.
func (r *DeviceRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$max", Value: bson.D{{Key: "last_seen", Value: at}}},
			{Key: "$set", Value: bson.D{{Key: "status", Value: string(device.StatusOnline)}}},
		},
	)
	if err != nil {
		return false, fmt.Errorf("touching device: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// FindLiveByCode returns the most recently seen live device with code.
func (r *DeviceRepository) FindLiveByCode(ctx context.Context, code string, since time.Time) (*device.Device, error) {
	var doc deviceDoc
	err := r.coll.FindOne(ctx,
		liveFilter(since, bson.E{Key: "code", Value: code}),
		options.FindOne().SetSort(bson.D{{Key: "last_seen", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, device.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by code: %w", err)
	}
	d := doc.toDevice()
	return &d, nil
}

// ListLive returns live devices, most recently seen first.
func (r *DeviceRepository) ListLive(ctx context.Context, since time.Time) ([]device.Device, error) {
	cursor, err := r.coll.Find(ctx, liveFilter(since),
		options.Find().SetSort(bson.D{{Key: "last_seen", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("querying live devices: %w", err)
	}

	var docs []deviceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding live devices: %w", err)
	}
	devices := make([]device.Device, 0, len(docs))
	for _, doc := range docs {
		devices = append(devices, doc.toDevice())
	}
	return devices, nil
}

// MarkStale flips stale online devices to offline. Each flip is guarded by
// the same predicate, so a device that heartbeats between the scan and its
// update is left online and not reported.
func (r *DeviceRepository) MarkStale(ctx context.Context, before time.Time) ([]device.Device, error) {
	staleFilter := bson.D{
		{Key: "status", Value: string(device.StatusOnline)},
		{Key: "last_seen", Value: bson.D{{Key: "$lt", Value: before}}},
	}

	cursor, err := r.coll.Find(ctx, staleFilter, options.Find().SetSort(bson.D{{Key: "last_seen", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying stale devices: %w", err)
	}
	var docs []deviceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding stale devices: %w", err)
	}

	var flipped []device.Device
	for _, doc := range docs {
		filter := append(bson.D{{Key: "_id", Value: doc.ID}}, staleFilter...)
		result, err := r.coll.UpdateOne(ctx, filter,
			bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(device.StatusOffline)}}}},
		)
		if err != nil {
			return flipped, fmt.Errorf("marking device %s offline: %w", doc.ID, err)
		}
		if result.ModifiedCount == 1 {
			d := doc.toDevice()
			d.Status = device.StatusOffline
			flipped = append(flipped, d)
		}
	}
	return flipped, nil
}

// CountByStatus returns device counts keyed by status, zero-filled.
func (r *DeviceRepository) CountByStatus(ctx context.Context) (map[device.Status]int, error) {
	counts := make(map[device.Status]int, len(device.AllStatuses()))
	for _, s := range device.AllStatuses() {
		n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "status", Value: string(s)}})
		if err != nil {
			return nil, fmt.Errorf("counting %s devices: %w", s, err)
		}
		counts[s] = int(n)
	}
	return counts, nil
}

func liveFilter(since time.Time, extra ...bson.E) bson.D {
	filter := bson.D{
		{Key: "status", Value: string(device.StatusOnline)},
		{Key: "last_seen", Value: bson.D{{Key: "$gte", Value: since}}},
	}
	return append(filter, extra...)
}
