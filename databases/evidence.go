package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const evidenceName = "dispute_evidence"

// EvidenceDatabase stores evidence records and implements disputes.EvidenceStore
type EvidenceDatabase struct {
	db DatabaseHelper
}

// NewEvidenceDatabase initializes a new instance of evidence database with the provided db connection
func NewEvidenceDatabase(db DatabaseHelper) *EvidenceDatabase {
	return &EvidenceDatabase{
		db: db,
	}
}

// Insert appends an evidence record
func (e *EvidenceDatabase) Insert(ctx context.Context, ev *models.Evidence) error {
	_, err := e.db.Collection(evidenceName).InsertOne(ctx, ev)
	return duplicate(err)
}

// ListByDispute returns a dispute's evidence, oldest first
func (e *EvidenceDatabase) ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Evidence, error) {
	var evidence []models.Evidence
	opts := newMongoPaginate(0, 0).getPaginatedOpts(bson.D{{Key: "createdAt", Value: 1}})
	curr, err := e.db.Collection(evidenceName).Find(ctx, bson.M{"disputeId": disputeID}, opts)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	if err := curr.All(ctx, &evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}
