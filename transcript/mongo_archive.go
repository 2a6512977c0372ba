package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultArchiveCollection = "coordination_execution_traces"
	defaultArchiveTimeout    = 5 * time.Second
)

// MongoArchiveOptions configures a MongoArchive.
type MongoArchiveOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoArchive durably persists rendered ExecutionTrace markdown alongside
// the historical_workspaces metadata (spec §4.1, §4.7), for deployments that
// need trace history to outlive local disk retention on the run host.
type MongoArchive struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type traceDocument struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	RunID       string        `bson:"run_id"`
	AgentID     string        `bson:"agent_id"`
	AnswerLabel string        `bson:"answer_label"`
	Markdown    string        `bson:"markdown"`
	ArchivedAt  time.Time     `bson:"archived_at"`
}

// NewMongoArchive builds a MongoArchive and ensures its supporting index
// exists.
func NewMongoArchive(ctx context.Context, opts MongoArchiveOptions) (*MongoArchive, error) {
	if opts.Client == nil {
		return nil, errors.New("transcript: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("transcript: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultArchiveCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultArchiveTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collName)
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongo.IndexModel{Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "answer_label", Value: 1}}}
	if _, err := coll.Indexes().CreateOne(ictx, index); err != nil {
		return nil, fmt.Errorf("transcript: ensure index: %w", err)
	}

	return &MongoArchive{coll: coll, timeout: timeout}, nil
}

// Archive persists trace's rendered markdown for the given run/agent/answer
// label. No code in this module calls it: workspace.Manager.Snapshot writes
// execution_trace.md to local disk only.
func (a *MongoArchive) Archive(ctx context.Context, runID, agentID, answerLabel string, trace *Trace) error {
	if runID == "" {
		return errors.New("transcript: run id is required")
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	doc := traceDocument{
		RunID:       runID,
		AgentID:     agentID,
		AnswerLabel: answerLabel,
		Markdown:    trace.Render(),
		ArchivedAt:  time.Now().UTC(),
	}
	_, err := a.coll.InsertOne(ctx, doc)
	return err
}

// Fetch retrieves a previously archived trace's markdown.
func (a *MongoArchive) Fetch(ctx context.Context, runID, answerLabel string) (string, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	var doc traceDocument
	err := a.coll.FindOne(ctx, bson.M{"run_id": runID, "answer_label": answerLabel},
		options.FindOne().SetSort(bson.D{{Key: "archived_at", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		return "", err
	}
	return doc.Markdown, nil
}

func (a *MongoArchive) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
