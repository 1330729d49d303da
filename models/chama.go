package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Chama roles as stored on the membership record
const (
	ChamaRoleAdmin     = "admin"
	ChamaRoleTreasurer = "treasurer"
	ChamaRoleSecretary = "secretary"
	ChamaRoleMember    = "member"
)

// Chama is the read-only view of the chamas collection this service needs.
// Chama CRUD lives elsewhere.
type Chama struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Name    string             `json:"name" bson:"name"`
	Members []ChamaMember      `json:"members" bson:"members"`
}

// ChamaMember is one entry of a chama's member list
type ChamaMember struct {
	UserID string `json:"userId" bson:"userId"`
	Role   string `json:"role" bson:"role"`     // "admin", "treasurer", "secretary", "member"
	Status string `json:"status" bson:"status"` // "active", "suspended", "left"
}

// Active reports whether the member currently belongs to the chama
func (m ChamaMember) Active() bool {
	return m.Status == "" || m.Status == "active"
}

// UserContact is the read-only projection of a user used for notification
// delivery
type UserContact struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id"`
	Email      string             `json:"email" bson:"email"`
	Name       string             `json:"name" bson:"name"`
	PushTokens []string           `json:"pushTokens" bson:"pushTokens"`
}
