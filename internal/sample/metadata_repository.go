package sample

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tracseq/lims-core/pkg/mmongo"
)

const metadataCollection = "sample_metadata"

type metadataDocument struct {
	SampleID uuid.UUID      `bson:"sample_id"`
	Metadata map[string]any `bson:"metadata"`
}

// MetadataRepository stores the free-form metadata blob (spec.md §3:
// "metadata (free-form structured blob)") separately from the Postgres
// row, the same schemaless-side-channel pattern the teacher uses for audit
// entries (components/audit/internal/adapters/mongodb/audit/audit.go).
type MetadataRepository struct {
	conn *mmongo.Connection
}

func NewMetadataRepository(conn *mmongo.Connection) *MetadataRepository {
	return &MetadataRepository{conn: conn}
}

// Put upserts the metadata blob for sampleID; a nil or empty map is stored
// as given. Get returns an empty map both for a stored empty blob and for a
// sample with no document, so the two cases are not distinguished.
func (r *MetadataRepository) Put(ctx context.Context, sampleID uuid.UUID, metadata map[string]any) error {
	coll, err := r.conn.Collection(ctx, metadataCollection)
	if err != nil {
		return err
	}

	_, err = coll.UpdateOne(ctx,
		bson.M{"sample_id": sampleID},
		bson.M{"$set": metadataDocument{SampleID: sampleID, Metadata: metadata}},
		options.Update().SetUpsert(true))

	return err
}

// Get returns the stored metadata blob, or an empty map if none was set.
func (r *MetadataRepository) Get(ctx context.Context, sampleID uuid.UUID) (map[string]any, error) {
	coll, err := r.conn.Collection(ctx, metadataCollection)
	if err != nil {
		return nil, err
	}

	var doc metadataDocument

	err = coll.FindOne(ctx, bson.M{"sample_id": sampleID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return map[string]any{}, nil
		}

		return nil, err
	}

	if doc.Metadata == nil {
		return map[string]any{}, nil
	}

	return doc.Metadata, nil
}
