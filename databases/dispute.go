package databases

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const disputeName = "disputes"

// DisputeDatabase stores disputes and implements disputes.DisputeStore
type DisputeDatabase struct {
	db DatabaseHelper
}

// NewDisputeDatabase initializes a new instance of dispute database with the provided db connection
func NewDisputeDatabase(db DatabaseHelper) *DisputeDatabase {
	return &DisputeDatabase{
		db: db,
	}
}

// Insert adds a new dispute
func (c *DisputeDatabase) Insert(ctx context.Context, d *models.Dispute) error {
	_, err := c.db.Collection(disputeName).InsertOne(ctx, d)
	return duplicate(err)
}

// FindByID returns disputes.ErrNotFound when no dispute has the id
func (c *DisputeDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Dispute, error) {
	dispute := &models.Dispute{}
	err := c.db.Collection(disputeName).FindOne(ctx, bson.M{"_id": id}).Decode(&dispute)
	if err != nil {
		return nil, notFound(err)
	}
	return dispute, nil
}

// Replace overwrites the dispute only while its stored version is still
// expectedVersion
func (c *DisputeDatabase) Replace(ctx context.Context, d *models.Dispute, expectedVersion int64) (bool, error) {
	res, err := c.db.Collection(disputeName).ReplaceOne(ctx, bson.M{"_id": d.ID, "version": expectedVersion}, d)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ListByChama pages through a chama's disputes, newest first
func (c *DisputeDatabase) ListByChama(ctx context.Context, chamaID string, status models.DisputeStatus, limit, offset int64) ([]models.Dispute, error) {
	filter := bson.M{"chamaId": chamaID}
	if status != "" {
		filter["status"] = status
	}
	opts := newMongoPaginate(limit, offset).getPaginatedOpts(bson.D{{Key: "createdAt", Value: -1}})
	return c.find(ctx, filter, opts)
}

// ListByParty returns disputes the user filed or is named in, newest first
func (c *DisputeDatabase) ListByParty(ctx context.Context, userID, chamaID string, status models.DisputeStatus) ([]models.Dispute, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"filedByUserId": userID},
		bson.M{"filedAgainstUserId": userID},
	}}
	if chamaID != "" {
		filter["chamaId"] = chamaID
	}
	if status != "" {
		filter["status"] = status
	}
	opts := newMongoPaginate(0, 0).getPaginatedOpts(bson.D{{Key: "createdAt", Value: -1}})
	return c.find(ctx, filter, opts)
}

// ListDeadlineBetween returns disputes in status whose phase deadline falls
// in (from, to]
func (c *DisputeDatabase) ListDeadlineBetween(ctx context.Context, status models.DisputeStatus, from, to time.Time) ([]models.Dispute, error) {
	field := "discussionDeadline"
	if status == models.StatusVoting {
		field = "votingDeadline"
	}
	filter := bson.M{
		"status": status,
		field:    bson.M{"$gt": from, "$lte": to},
	}
	opts := newMongoPaginate(0, 0).getPaginatedOpts(bson.D{{Key: field, Value: 1}})
	return c.find(ctx, filter, opts)
}

// ListEscalated is the platform review queue, oldest escalation first
func (c *DisputeDatabase) ListEscalated(ctx context.Context, limit, offset int64) ([]models.Dispute, error) {
	opts := newMongoPaginate(limit, offset).getPaginatedOpts(bson.D{{Key: "escalation.escalatedAt", Value: 1}})
	return c.find(ctx, bson.M{"status": models.StatusEscalated}, opts)
}

// ListCreatedBetween returns disputes created in [start, end)
func (c *DisputeDatabase) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Dispute, error) {
	filter := bson.M{"createdAt": bson.M{"$gte": start, "$lt": end}}
	opts := newMongoPaginate(0, 0).getPaginatedOpts(nil)
	return c.find(ctx, filter, opts)
}

func (c *DisputeDatabase) find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Dispute, error) {
	var disputes []models.Dispute
	curr, err := c.db.Collection(disputeName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &disputes)
	if err != nil {
		return nil, err
	}
	return disputes, nil
}
