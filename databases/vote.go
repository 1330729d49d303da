package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const voteName = "dispute_votes"

// VoteDatabase stores votes and implements disputes.VoteStore. The unique
// (disputeId, userId) index turns a second vote into disputes.ErrConflict.
type VoteDatabase struct {
	db DatabaseHelper
}

// NewVoteDatabase initializes a new instance of vote database with the provided db connection
func NewVoteDatabase(db DatabaseHelper) *VoteDatabase {
	return &VoteDatabase{
		db: db,
	}
}

// Insert records a vote
func (v *VoteDatabase) Insert(ctx context.Context, vote *models.Vote) error {
	_, err := v.db.Collection(voteName).InsertOne(ctx, vote)
	return duplicate(err)
}

// ListByDispute returns every vote cast on a dispute in cast order
func (v *VoteDatabase) ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Vote, error) {
	var votes []models.Vote
	opts := newMongoPaginate(0, 0).getPaginatedOpts(bson.D{{Key: "castAt", Value: 1}})
	curr, err := v.db.Collection(voteName).Find(ctx, bson.M{"disputeId": disputeID}, opts)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	if err := curr.All(ctx, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}
