package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const activityName = "dispute_activity"

// ActivityDatabase is the dispute audit trail and implements disputes.AuditLog
type ActivityDatabase struct {
	db DatabaseHelper
}

// NewActivityDatabase initializes a new instance of activity database with the provided db connection
func NewActivityDatabase(db DatabaseHelper) *ActivityDatabase {
	return &ActivityDatabase{
		db: db,
	}
}

// Record appends an audit row
func (a *ActivityDatabase) Record(ctx context.Context, activity models.DisputeActivity) error {
	if activity.ID.IsZero() {
		activity.ID = primitive.NewObjectID()
	}
	_, err := a.db.Collection(activityName).InsertOne(ctx, activity)
	return err
}

// ListByDispute returns a dispute's audit trail, oldest first
func (a *ActivityDatabase) ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.DisputeActivity, error) {
	var rows []models.DisputeActivity
	opts := newMongoPaginate(0, 0).getPaginatedOpts(bson.D{{Key: "createdAt", Value: 1}})
	curr, err := a.db.Collection(activityName).Find(ctx, bson.M{"disputeId": disputeID}, opts)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	if err := curr.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
