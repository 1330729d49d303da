package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DisputeActivity is a row of the dispute audit trail. Every transition and
// every administrative override writes one.
type DisputeActivity struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id"`
	DisputeID  primitive.ObjectID `json:"disputeId" bson:"disputeId"`
	ChamaID    string             `json:"chamaId" bson:"chamaId"`
	ActorID    string             `json:"actorId" bson:"actorId"`
	ActorRole  string             `json:"actorRole" bson:"actorRole"`
	Action     string             `json:"action" bson:"action"`
	FromStatus DisputeStatus      `json:"fromStatus,omitempty" bson:"fromStatus,omitempty"`
	ToStatus   DisputeStatus      `json:"toStatus,omitempty" bson:"toStatus,omitempty"`
	Details    string             `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}

// ReminderPhase scopes a reminder marker to the phase it was sent for
type ReminderPhase string

// Reminder phases
const (
	ReminderDiscussion        ReminderPhase = "discussion"
	ReminderVoting            ReminderPhase = "voting"
	ReminderDiscussionOverdue ReminderPhase = "discussion_overdue"
)

// ReminderMarker records the last time a recipient was reminded about a
// dispute in a given phase. Unique per (disputeId, userId, phase).
type ReminderMarker struct {
	ID                 primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	DisputeID          primitive.ObjectID `json:"disputeId" bson:"disputeId"`
	UserID             string             `json:"userId" bson:"userId"`
	Phase              ReminderPhase      `json:"phase" bson:"phase"`
	LastReminderSentAt time.Time          `json:"lastReminderSentAt" bson:"lastReminderSentAt"`
}
