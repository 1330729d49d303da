package disputes

import (
	"context"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/models"
)

// DisputeStore persists disputes. Implementations return ErrNotFound for a
// missing dispute.
type DisputeStore interface {
	Insert(ctx context.Context, d *models.Dispute) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Dispute, error)
	// Replace writes d only if the stored version still equals
	// expectedVersion. It reports false when another writer got there first.
	Replace(ctx context.Context, d *models.Dispute, expectedVersion int64) (bool, error)
	ListByChama(ctx context.Context, chamaID string, status models.DisputeStatus, limit, offset int64) ([]models.Dispute, error)
	ListByParty(ctx context.Context, userID, chamaID string, status models.DisputeStatus) ([]models.Dispute, error)
	// ListDeadlineBetween returns disputes in status whose phase deadline
	// falls in (from, to].
	ListDeadlineBetween(ctx context.Context, status models.DisputeStatus, from, to time.Time) ([]models.Dispute, error)
	ListEscalated(ctx context.Context, limit, offset int64) ([]models.Dispute, error)
	ListCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Dispute, error)
}

// EvidenceStore persists append-only evidence records
type EvidenceStore interface {
	Insert(ctx context.Context, e *models.Evidence) error
	ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Evidence, error)
}

// CommentStore persists flat dispute comments
type CommentStore interface {
	Insert(ctx context.Context, c *models.Comment) error
	ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Comment, error)
}

// VoteStore persists votes. Insert returns ErrConflict when the user already
// voted on the dispute.
type VoteStore interface {
	Insert(ctx context.Context, v *models.Vote) error
	ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Vote, error)
}

// Membership answers chama membership questions
type Membership interface {
	IsActiveMember(ctx context.Context, chamaID, userID string) (bool, error)
	Role(ctx context.Context, chamaID, userID string) (string, error)
	ActiveMembers(ctx context.Context, chamaID string) ([]models.ChamaMember, error)
}

// UploadResult describes a stored file
type UploadResult struct {
	URL      string
	Size     int64
	MimeType string
	Key      string
}

// FileStorage stores evidence files outside the database
type FileStorage interface {
	Upload(ctx context.Context, file io.Reader, filename, folder string, allowedTypes []string, maxSize int64) (UploadResult, error)
	Delete(ctx context.Context, key string) error
}

// Notification is one fanout message
type Notification struct {
	Recipients []string
	Template   string
	Payload    map[string]string
}

// Notifier delivers notifications. Notify must not block on delivery and
// must not report delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// AuditLog records dispute activity for the audit trail
type AuditLog interface {
	Record(ctx context.Context, a models.DisputeActivity) error
}
