package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tracseq/lims-core/pkg/mlog"
	"github.com/tracseq/lims-core/pkg/mmongo"
)

const (
	entriesCollection   = "audit_entries"
	sequencesCollection = "audit_sequence_counters"
)

// Repository is the append-only audit store. There is deliberately no
// Update or Delete method (spec.md §4.5: "no update/delete APIs").
//
//go:generate mockgen --destination=repository_mock.go --package=audit . Repository
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	History(ctx context.Context, entityType, entityID string) ([]Entry, error)
}

// MongoRepository is the production Repository, grounded on the teacher's
// components/audit/internal/adapters/mongodb/audit package: a thin model
// layer over a lazily-connected mmongo.Connection.
type MongoRepository struct {
	conn   *mmongo.Connection
	logger mlog.Logger
}

func NewMongoRepository(conn *mmongo.Connection, logger mlog.Logger) *MongoRepository {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &MongoRepository{conn: conn, logger: logger}
}

// nextSequence atomically increments a singleton counter document so ties
// in Timestamp are broken by a strictly increasing integer (spec.md §4.5).
func (r *MongoRepository) nextSequence(ctx context.Context) (int64, error) {
	coll, err := r.conn.Collection(ctx, sequencesCollection)
	if err != nil {
		return 0, fmt.Errorf("sequence collection: %w", err)
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Value int64 `bson:"value"`
	}

	err = coll.FindOneAndUpdate(ctx, bson.M{"_id": "audit_entry"}, bson.M{"$inc": bson.M{"value": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}

	return doc.Value, nil
}

// Append inserts one immutable audit row. Sequence is assigned here,
// overriding whatever the caller set, so it always reflects true insertion
// order.
func (r *MongoRepository) Append(ctx context.Context, entry *Entry) error {
	seq, err := r.nextSequence(ctx)
	if err != nil {
		return fmt.Errorf("audit: assign sequence: %w", err)
	}

	entry.Sequence = seq

	coll, err := r.conn.Collection(ctx, entriesCollection)
	if err != nil {
		return fmt.Errorf("audit: entries collection: %w", err)
	}

	if _, err := coll.InsertOne(ctx, fromEntity(entry)); err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}

	return nil
}

// History returns every entry recorded for an entity, ordered by
// (timestamp, sequence) ascending — the chain-of-custody order
// (spec.md §4.5).
func (r *MongoRepository) History(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	coll, err := r.conn.Collection(ctx, entriesCollection)
	if err != nil {
		return nil, fmt.Errorf("audit: entries collection: %w", err)
	}

	filter := bson.M{"entity_type": entityType, "entity_id": entityID}
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "sequence", Value: 1}})

	cur, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("audit: find history: %w", err)
	}
	defer cur.Close(ctx)

	var out []Entry

	for cur.Next(ctx) {
		var m mongoModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("audit: decode entry: %w", err)
		}

		out = append(out, *m.toEntity())
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate history: %w", err)
	}

	return out, nil
}

var _ Repository = (*MongoRepository)(nil)
