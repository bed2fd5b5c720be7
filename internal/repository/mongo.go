package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trading-room-game/internal/model"
)

// roomCollection is the collection holding one document per room.
const roomCollection = "rooms"

// MongoStore persists rooms as documents in a MongoDB collection. The
// read-modify-write cycle runs inside a session transaction, which the
// driver retries on transient conflicts, so concurrent writers on the
// same room id never lose an update. Transactions require the server to
// run as a replica set.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore creates a MongoStore over the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(roomCollection),
	}
}

// List returns rooms ordered by most recent update.
func (s *MongoStore) List(ctx context.Context, limit int) ([]*model.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer cursor.Close(ctx)

	var rooms []*model.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return rooms, nil
}

// Get retrieves a room by id. Returns ErrRoomNotFound if absent.
func (s *MongoStore) Get(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

// RunAtomic re-reads the document inside a transaction, applies fn and
// replaces the document with the result.
func (s *MongoStore) RunAtomic(ctx context.Context, id string, fn MutateFunc) (*model.Room, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		var current *model.Room
		var room model.Room
		err := s.coll.FindOne(sc, bson.M{"_id": id}).Decode(&room)
		switch {
		case err == nil:
			current = &room
		case errors.Is(err, mongo.ErrNoDocuments):
			// no record yet, fn may insert one
		default:
			return nil, fmt.Errorf("failed to read room: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}

		if next == nil {
			if _, err := s.coll.DeleteOne(sc, bson.M{"_id": id}); err != nil {
				return nil, fmt.Errorf("failed to delete room: %w", err)
			}
			return (*model.Room)(nil), nil
		}

		next.UpdatedAt = time.Now()
		opts := options.Replace().SetUpsert(true)
		if _, err := s.coll.ReplaceOne(sc, bson.M{"_id": id}, next, opts); err != nil {
			return nil, fmt.Errorf("failed to write room: %w", err)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	room, _ := result.(*model.Room)
	return room, nil
}

// Delete removes the room document if present.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}
