package databases

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the dispute collections rely on. The
// unique indexes on votes and reminder markers are load bearing: they are how
// duplicate votes and duplicate reminders are rejected.
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	indexes := map[string][]mongo.IndexModel{
		disputeName: {
			{Keys: bson.D{{Key: "chamaId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "discussionDeadline", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "votingDeadline", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "escalation.escalatedAt", Value: 1}}},
			{Keys: bson.D{{Key: "filedByUserId", Value: 1}}},
			{Keys: bson.D{{Key: "filedAgainstUserId", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		},
		voteName: {
			{Keys: bson.D{{Key: "disputeId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		reminderName: {
			{Keys: bson.D{{Key: "disputeId", Value: 1}, {Key: "userId", Value: 1}, {Key: "phase", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		evidenceName: {
			{Keys: bson.D{{Key: "disputeId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		commentName: {
			{Keys: bson.D{{Key: "disputeId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		activityName: {
			{Keys: bson.D{{Key: "disputeId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	for collection, ims := range indexes {
		if _, err := db.Collection(collection).CreateIndexes(ctx, ims); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
