package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DisputeType classifies what a dispute is about
type DisputeType string

// Dispute types a member can file
const (
	DisputeTypePayment       DisputeType = "payment_dispute"
	DisputeTypePayout        DisputeType = "payout_dispute"
	DisputeTypeMembership    DisputeType = "membership_dispute"
	DisputeTypeLoanDefault   DisputeType = "loan_default"
	DisputeTypeRuleViolation DisputeType = "rule_violation"
)

// DisputeTypes lists every valid dispute type
var DisputeTypes = []DisputeType{
	DisputeTypePayment,
	DisputeTypePayout,
	DisputeTypeMembership,
	DisputeTypeLoanDefault,
	DisputeTypeRuleViolation,
}

// Valid reports whether t is one of the known dispute types
func (t DisputeType) Valid() bool {
	for _, known := range DisputeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DisputeStatus is the lifecycle phase of a dispute
type DisputeStatus string

// Dispute statuses. Resolved and Rejected are terminal.
const (
	StatusFiled      DisputeStatus = "filed"
	StatusDiscussion DisputeStatus = "discussion"
	StatusVoting     DisputeStatus = "voting"
	StatusResolved   DisputeStatus = "resolved"
	StatusEscalated  DisputeStatus = "escalated"
	StatusRejected   DisputeStatus = "rejected"
)

// Valid reports whether s is a known status
func (s DisputeStatus) Valid() bool {
	switch s {
	case StatusFiled, StatusDiscussion, StatusVoting, StatusResolved, StatusEscalated, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s
func (s DisputeStatus) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// ResolutionType records how a resolved dispute ended
type ResolutionType string

// Resolution types. Upheld and Dismissed come out of a vote tally, Settled
// is an officer or platform decision.
const (
	ResolutionUpheld    ResolutionType = "upheld"
	ResolutionDismissed ResolutionType = "dismissed"
	ResolutionSettled   ResolutionType = "settled"
)

// Valid reports whether r is a known resolution type
func (r ResolutionType) Valid() bool {
	return r == ResolutionUpheld || r == ResolutionDismissed || r == ResolutionSettled
}

// Dispute holds the structure for the disputes collection in mongo
type Dispute struct {
	ID                 primitive.ObjectID `json:"_id" bson:"_id"`
	ChamaID            string             `json:"chamaId" bson:"chamaId"`
	FiledByUserID      string             `json:"filedByUserId" bson:"filedByUserId"`
	FiledAgainstUserID string             `json:"filedAgainstUserId,omitempty" bson:"filedAgainstUserId,omitempty"`
	DisputeType        DisputeType        `json:"disputeType" bson:"disputeType"`
	Title              string             `json:"title" bson:"title"`
	Description        string             `json:"description" bson:"description"`

	// Lifecycle
	Status             DisputeStatus  `json:"status" bson:"status"`
	DiscussionDeadline *time.Time     `json:"discussionDeadline,omitempty" bson:"discussionDeadline,omitempty"`
	VotingDeadline     *time.Time     `json:"votingDeadline,omitempty" bson:"votingDeadline,omitempty"`
	RequiredVotes      *int           `json:"requiredVotes,omitempty" bson:"requiredVotes,omitempty"`
	ResolutionType     ResolutionType `json:"resolutionType,omitempty" bson:"resolutionType,omitempty"`
	DecisionNotes      string         `json:"decisionNotes,omitempty" bson:"decisionNotes,omitempty"`
	ResolvedByUserID   string         `json:"resolvedByUserId,omitempty" bson:"resolvedByUserId,omitempty"`
	ResolvedAt         *time.Time     `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`

	// Escalation
	Escalation *Escalation `json:"escalation,omitempty" bson:"escalation,omitempty"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IsParty reports whether userID filed the dispute or is named in it
func (d Dispute) IsParty(userID string) bool {
	return userID != "" && (d.FiledByUserID == userID || d.FiledAgainstUserID == userID)
}

// Escalation records who sent a dispute to platform review and what the
// platform decided
type Escalation struct {
	EscalatedByUserID string     `json:"escalatedByUserId" bson:"escalatedByUserId"`
	Reason            string     `json:"reason" bson:"reason"`
	EscalatedAt       time.Time  `json:"escalatedAt" bson:"escalatedAt"`
	ReviewedByAdminID string     `json:"reviewedByAdminId,omitempty" bson:"reviewedByAdminId,omitempty"`
	PlatformDecision  string     `json:"platformDecision,omitempty" bson:"platformDecision,omitempty"`
	ActionDetails     string     `json:"platformActionDetails,omitempty" bson:"platformActionDetails,omitempty"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
}

// Evidence holds the structure for the dispute_evidence collection. Evidence
// is append-only.
type Evidence struct {
	ID                primitive.ObjectID `json:"_id" bson:"_id"`
	DisputeID         primitive.ObjectID `json:"disputeId" bson:"disputeId"`
	Title             string             `json:"title" bson:"title"`
	FileURL           string             `json:"fileUrl" bson:"fileUrl"`
	FileType          string             `json:"fileType" bson:"fileType"`
	FileSize          int64              `json:"fileSize" bson:"fileSize"`
	StorageKey        string             `json:"-" bson:"storageKey"`
	SubmittedByUserID string             `json:"submittedByUserId" bson:"submittedByUserId"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
}

// Comment holds the structure for the dispute_comments collection
type Comment struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	DisputeID primitive.ObjectID `json:"disputeId" bson:"disputeId"`
	UserID    string             `json:"userId" bson:"userId"`
	Content   string             `json:"content" bson:"content"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// VoteDecision is a member's position on a dispute
type VoteDecision string

// Vote decisions
const (
	VoteFor     VoteDecision = "for"
	VoteAgainst VoteDecision = "against"
	VoteAbstain VoteDecision = "abstain"
)

// Valid reports whether d is a known decision
func (d VoteDecision) Valid() bool {
	return d == VoteFor || d == VoteAgainst || d == VoteAbstain
}

// Vote holds the structure for the dispute_votes collection. There is at most
// one vote per (disputeId, userId).
type Vote struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	DisputeID primitive.ObjectID `json:"disputeId" bson:"disputeId"`
	UserID    string             `json:"userId" bson:"userId"`
	Decision  VoteDecision       `json:"decision" bson:"decision"`
	Reason    string             `json:"reason" bson:"reason"`
	CastAt    time.Time          `json:"castAt" bson:"castAt"`
}
