// Package mongostore implements the device, command and response
// repositories on MongoDB.
//
// MongoDB is used without multi-document transactions. At-most-once
// delivery rests on single-document atomic operations: a drain claims each
// command with FindOneAndUpdate from pending to completed, and a read
// consumes each response with FindOneAndDelete. A per-device (or per-code)
// lock inside the process keeps each caller's batch contiguous and in order.
//
// Integer ids are allocated from a counters collection so command and
// response ids stay monotonic, as they are with SQLite.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Collection names.
const (
	collDevices   = "devices"
	collCommands  = "commands"
	collResponses = "responses"
	collCounters  = "counters"
)

const defaultTimeout = 10 * time.Second

// ErrNotConnected is returned when the store is used after Close.
var ErrNotConnected = errors.New("mongostore: not connected")

// Store wraps a MongoDB client and hands out repositories bound to it.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	devices   *DeviceRepository
	commands  *CommandRepository
	responses *ResponseRepository
}

// Connect opens a client, verifies it with a ping against the primary and
// ensures the relay's indexes exist.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck // best effort on failed connect
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s := newStore(client, client.Database(cfg.Database))
	if err := s.EnsureIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck // best effort on failed connect
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, db *mongo.Database) *Store {
	ids := &idAllocator{coll: db.Collection(collCounters)}
	return &Store{
		client:    client,
		db:        db,
		devices:   &DeviceRepository{coll: db.Collection(collDevices), codes: newKeyedMutex()},
		commands:  &CommandRepository{coll: db.Collection(collCommands), ids: ids, locks: newKeyedMutex()},
		responses: &ResponseRepository{coll: db.Collection(collResponses), ids: ids, locks: newKeyedMutex()},
	}
}

// EnsureIndexes creates the indexes the repositories query by.
// Creating an index that already exists is a no-op.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collDevices: {
			{Keys: bson.D{{Key: "code", Value: 1}, {Key: "status", Value: 1}, {Key: "last_seen", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_seen", Value: 1}}},
		},
		collCommands: {
			{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "executed_at", Value: 1}}},
		},
		collResponses: {
			{Keys: bson.D{{Key: "device_code", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating %s indexes: %w", name, err)
		}
	}
	return nil
}

// Devices returns the device repository.
func (s *Store) Devices() *DeviceRepository { return s.devices }

// Commands returns the command repository.
func (s *Store) Commands() *CommandRepository { return s.commands }

// Responses returns the response repository.
func (s *Store) Responses() *ResponseRepository { return s.responses }

// HealthCheck pings the primary.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return ErrNotConnected
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	err := s.client.Disconnect(ctx)
	s.client = nil
	if err != nil {
		return fmt.Errorf("disconnecting mongodb: %w", err)
	}
	return nil
}

// idAllocator hands out monotonic int64 ids per sequence name.
type idAllocator struct {
	coll *mongo.Collection
}

func (a *idAllocator) next(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := a.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating %s id: %w", name, err)
	}
	return counter.Seq, nil
}
