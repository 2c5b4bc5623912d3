// Package mongo stores the provider exchange journal: one document per
// request/response exchange with an external provider, kept for dispute
// resolution and reconciliation. The journal is append-only.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/paynet-transfer-switch/internal/providers"
)

const (
	// JournalCollectionName is the name of the exchange journal collection
	JournalCollectionName = "provider_exchanges"
)

// JournalRepository implements the providers.Journal interface for MongoDB
type JournalRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewJournalRepository creates a new MongoDB exchange journal
func NewJournalRepository(logger *slog.Logger, db *mongo.Database) *JournalRepository {
	return &JournalRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one provider exchange to the journal
func (r *JournalRepository) Record(ctx context.Context, entry providers.JournalEntry) error {
	collection := r.db.Collection(JournalCollectionName)

	_, err := collection.InsertOne(ctx, entry)
	if err != nil {
		r.logger.Error("Failed to record provider exchange",
			"transfer_id", entry.TransferID,
			"provider_id", entry.ProviderID,
			"error", err)
		return fmt.Errorf("failed to record provider exchange: %w", err)
	}

	return nil
}

// ListByTransfer returns the journaled exchanges for one transfer in the
// order they happened.
func (r *JournalRepository) ListByTransfer(ctx context.Context, transferID string) ([]providers.JournalEntry, error) {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"transfer_id": transferID}
	opts := options.Find().SetSort(bson.M{"timestamp": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list provider exchanges",
			"transfer_id", transferID,
			"error", err)
		return nil, fmt.Errorf("failed to list provider exchanges: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []providers.JournalEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode provider exchanges: %w", err)
	}

	return entries, nil
}
