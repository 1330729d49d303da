package databases

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/chama-disputes-api/models"
)

const chamaName = "chamas"

// ChamaDatabase reads chama membership and implements disputes.Membership.
// Chamas are owned by another service, so nothing here writes.
type ChamaDatabase struct {
	db DatabaseHelper
}

// NewChamaDatabase initializes a new instance of chama database with the provided db connection
func NewChamaDatabase(db DatabaseHelper) *ChamaDatabase {
	return &ChamaDatabase{
		db: db,
	}
}

// IsActiveMember reports whether userID is an active member of the chama. An
// unknown chama has no members.
func (c *ChamaDatabase) IsActiveMember(ctx context.Context, chamaID, userID string) (bool, error) {
	m, err := c.member(ctx, chamaID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// Role returns the member's chama role, or "" when they are not an active member
func (c *ChamaDatabase) Role(ctx context.Context, chamaID, userID string) (string, error) {
	m, err := c.member(ctx, chamaID, userID)
	if err != nil || m == nil {
		return "", err
	}
	return m.Role, nil
}

// ActiveMembers lists the chama's active members with their roles
func (c *ChamaDatabase) ActiveMembers(ctx context.Context, chamaID string) ([]models.ChamaMember, error) {
	chama, err := c.find(ctx, chamaID)
	if err != nil || chama == nil {
		return nil, err
	}
	var active []models.ChamaMember
	for _, m := range chama.Members {
		if m.Active() {
			active = append(active, m)
		}
	}
	return active, nil
}

func (c *ChamaDatabase) member(ctx context.Context, chamaID, userID string) (*models.ChamaMember, error) {
	chama, err := c.find(ctx, chamaID)
	if err != nil || chama == nil {
		return nil, err
	}
	for _, m := range chama.Members {
		if m.UserID == userID && m.Active() {
			return &m, nil
		}
	}
	return nil, nil
}

func (c *ChamaDatabase) find(ctx context.Context, chamaID string) (*models.Chama, error) {
	cID, err := primitive.ObjectIDFromHex(chamaID)
	if err != nil {
		return nil, nil
	}
	chama := &models.Chama{}
	opts := options.FindOne().SetProjection(bson.M{"name": 1, "members": 1})
	err = c.db.Collection(chamaName).FindOne(ctx, bson.M{"_id": cID}, opts).Decode(&chama)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chama, nil
}
