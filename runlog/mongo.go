package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/hooks"
)

const (
	defaultMongoCollection = "coordination_run_events"
	defaultMongoTimeout    = 5 * time.Second
)

// MongoOptions configures a Mongo-backed Store.
type MongoOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore is a durable, Mongo-backed Store for deployments that need
// run event history to outlive local disk retention.
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type eventDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	RunID     string        `bson:"run_id"`
	AgentID   string        `bson:"agent_id"`
	SessionID string        `bson:"session_id"`
	TurnID    string        `bson:"turn_id"`
	Type      string        `bson:"type"`
	Payload   []byte        `bson:"payload"`
	Timestamp time.Time     `bson:"timestamp"`
}

// NewMongoStore builds a Mongo-backed Store and ensures its supporting
// index exists.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("runlog: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("runlog: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultMongoCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collName)
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongo.IndexModel{Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "_id", Value: 1}}}
	if _, err := coll.Indexes().CreateOne(ictx, index); err != nil {
		return nil, fmt.Errorf("runlog: ensure index: %w", err)
	}

	return &MongoStore{coll: coll, timeout: timeout}, nil
}

// Append implements Store.
func (s *MongoStore) Append(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("runlog: event is required")
	}
	if e.RunID == "" {
		return errors.New("runlog: run id is required")
	}
	if e.Type == "" {
		return errors.New("runlog: event type is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("runlog: timestamp is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := eventDocument{
		RunID:     e.RunID,
		AgentID:   string(e.AgentID),
		SessionID: e.SessionID,
		TurnID:    e.TurnID,
		Type:      string(e.Type),
		Payload:   append([]byte(nil), e.Payload...),
		Timestamp: e.Timestamp.UTC(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return fmt.Errorf("runlog: unexpected inserted id type %T", res.InsertedID)
	}
	e.ID = oid.Hex()
	return nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, runID string, cursor string, limit int) (page Page, err error) {
	if runID == "" {
		return Page{}, errors.New("runlog: run id is required")
	}
	if limit <= 0 {
		return Page{}, errors.New("runlog: limit must be > 0")
	}

	filter := bson.M{"run_id": runID}
	if cursor != "" {
		oid, perr := bson.ObjectIDFromHex(cursor)
		if perr != nil {
			return Page{}, fmt.Errorf("runlog: invalid cursor %q: %w", cursor, perr)
		}
		filter["_id"] = bson.M{"$gt": oid}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit+1)),
	)
	if err != nil {
		return Page{}, err
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var events []*Event
	for cur.Next(ctx) {
		var doc eventDocument
		if derr := cur.Decode(&doc); derr != nil {
			return Page{}, derr
		}
		events = append(events, &Event{
			ID:        doc.ID.Hex(),
			RunID:     doc.RunID,
			AgentID:   agent.Ident(doc.AgentID),
			SessionID: doc.SessionID,
			TurnID:    doc.TurnID,
			Type:      hooks.EventType(doc.Type),
			Payload:   append([]byte(nil), doc.Payload...),
			Timestamp: doc.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return Page{}, err
	}

	var next string
	if len(events) > limit {
		next = events[limit-1].ID
		events = events[:limit]
	}
	return Page{Events: events, NextCursor: next}, nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
