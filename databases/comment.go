package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const commentName = "dispute_comments"

// CommentDatabase stores dispute comments and implements disputes.CommentStore
type CommentDatabase struct {
	db DatabaseHelper
}

// NewCommentDatabase initializes a new instance of comment database with the provided db connection
func NewCommentDatabase(db DatabaseHelper) *CommentDatabase {
	return &CommentDatabase{
		db: db,
	}
}

// Insert adds a comment
func (c *CommentDatabase) Insert(ctx context.Context, comment *models.Comment) error {
	_, err := c.db.Collection(commentName).InsertOne(ctx, comment)
	return duplicate(err)
}

// ListByDispute returns a dispute's comments, oldest first
func (c *CommentDatabase) ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Comment, error) {
	var comments []models.Comment
	opts := newMongoPaginate(0, 0).getPaginatedOpts(bson.D{{Key: "createdAt", Value: 1}})
	curr, err := c.db.Collection(commentName).Find(ctx, bson.M{"disputeId": disputeID}, opts)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	if err := curr.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}
