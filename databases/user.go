package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const userName = "users"

// UserDatabase reads the contact details notification channels deliver to
type UserDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) *UserDatabase {
	return &UserDatabase{
		db: db,
	}
}

// Contacts returns the contact details of the given users. Ids that are not
// valid object ids or match no user are skipped.
func (u *UserDatabase) Contacts(ctx context.Context, userIDs []string) ([]models.UserContact, error) {
	ids := make([]primitive.ObjectID, 0, len(userIDs))
	for _, id := range userIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		ids = append(ids, oid)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var contacts []models.UserContact
	opts := options.Find().SetProjection(bson.M{"email": 1, "name": 1, "pushTokens": 1})
	curr, err := u.db.Collection(userName).Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	if err := curr.All(ctx, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}
