package databases

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const reminderName = "dispute_reminder_markers"

// ReminderDatabase stores the per recipient reminder markers the deadline
// scanner claims before sending
type ReminderDatabase struct {
	db DatabaseHelper
}

// NewReminderDatabase initializes a new instance of reminder database with the provided db connection
func NewReminderDatabase(db DatabaseHelper) *ReminderDatabase {
	return &ReminderDatabase{
		db: db,
	}
}

// Claim atomically marks (disputeID, userID, phase) as reminded at now. It
// reports false when the recipient was already reminded within cooldown, in
// which case nothing should be sent.
func (r *ReminderDatabase) Claim(ctx context.Context, disputeID primitive.ObjectID, userID string, phase models.ReminderPhase, now time.Time, cooldown time.Duration) (bool, error) {
	filter := bson.M{
		"disputeId": disputeID,
		"userId":    userID,
		"phase":     phase,
		"$or": bson.A{
			bson.M{"lastReminderSentAt": bson.M{"$lte": now.Add(-cooldown)}},
			bson.M{"lastReminderSentAt": bson.M{"$exists": false}},
		},
	}
	update := bson.M{"$set": bson.M{"lastReminderSentAt": now}}

	res, err := r.db.Collection(reminderName).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// a fresh marker exists, so the upsert collided with it
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}
