package mongodb

import (
	// Go Internal Packages
	"context"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TxRepository archives parsed transactions. Writes are upserts keyed by
// hash, so a transaction rediscovered after a restart is stored once.
type TxRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewTxRepository(client *mongo.Client, database string) *TxRepository {
	return &TxRepository{client: client, database: database, collection: "transactions"}
}

func (r *TxRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

func (r *TxRepository) Name() string { return "mongodb" }

// EnsureIndexes creates the indexes FindRecent and per-issuer lookups rely on.
func (r *TxRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "issuers", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

// Write stores a single parsed transaction.
func (r *TxRepository) Write(ctx context.Context, tx *models.ParsedTransaction) error {
	doc := tx.Transform()
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll().ReplaceOne(ctx, bson.M{"_id": doc.TxID}, doc, opts)
	return err
}

// FindRecent returns the latest archived transactions, newest first.
func (r *TxRepository) FindRecent(ctx context.Context, limit int64) ([]models.MongoTransaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := r.coll().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var txs []models.MongoTransaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
