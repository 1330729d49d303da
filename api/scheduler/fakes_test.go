package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

type memDisputes struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.Dispute
}

func (m *memDisputes) put(d models.Dispute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[d.ID] = d
}

func (m *memDisputes) get(id primitive.ObjectID) models.Dispute {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memDisputes) Insert(ctx context.Context, d *models.Dispute) error {
	m.put(*d)
	return nil
}

func (m *memDisputes) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, disputes.ErrNotFound
	}
	return &d, nil
}

func (m *memDisputes) Replace(ctx context.Context, d *models.Dispute, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[d.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	m.byID[d.ID] = *d
	return true, nil
}

func (m *memDisputes) ListByChama(ctx context.Context, chamaID string, status models.DisputeStatus, limit, offset int64) ([]models.Dispute, error) {
	return nil, nil
}

func (m *memDisputes) ListByParty(ctx context.Context, userID, chamaID string, status models.DisputeStatus) ([]models.Dispute, error) {
	return nil, nil
}

func (m *memDisputes) ListDeadlineBetween(ctx context.Context, status models.DisputeStatus, from, to time.Time) ([]models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Dispute
	for _, d := range m.byID {
		if d.Status != status {
			continue
		}
		deadline := d.DiscussionDeadline
		if status == models.StatusVoting {
			deadline = d.VotingDeadline
		}
		if deadline != nil && deadline.After(from) && !deadline.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDisputes) ListEscalated(ctx context.Context, limit, offset int64) ([]models.Dispute, error) {
	return nil, nil
}

func (m *memDisputes) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Dispute, error) {
	return nil, nil
}

type memVotes struct {
	byDispute map[primitive.ObjectID][]models.Vote
}

func (m *memVotes) Insert(ctx context.Context, v *models.Vote) error {
	m.byDispute[v.DisputeID] = append(m.byDispute[v.DisputeID], *v)
	return nil
}

func (m *memVotes) ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Vote, error) {
	return m.byDispute[disputeID], nil
}

type memComments struct {
	byDispute map[primitive.ObjectID][]models.Comment
}

func (m *memComments) Insert(ctx context.Context, c *models.Comment) error {
	m.byDispute[c.DisputeID] = append(m.byDispute[c.DisputeID], *c)
	return nil
}

func (m *memComments) ListByDispute(ctx context.Context, disputeID primitive.ObjectID) ([]models.Comment, error) {
	return m.byDispute[disputeID], nil
}

// staticMembers serves one roster per chama. Chamas listed in broken fail.
type staticMembers struct {
	rosters map[string][]models.ChamaMember
	broken  map[string]bool
}

func (m *staticMembers) IsActiveMember(ctx context.Context, chamaID, userID string) (bool, error) {
	role, err := m.Role(ctx, chamaID, userID)
	return role != "", err
}

func (m *staticMembers) Role(ctx context.Context, chamaID, userID string) (string, error) {
	members, err := m.ActiveMembers(ctx, chamaID)
	if err != nil {
		return "", err
	}
	for _, mem := range members {
		if mem.UserID == userID {
			return mem.Role, nil
		}
	}
	return "", nil
}

func (m *staticMembers) ActiveMembers(ctx context.Context, chamaID string) ([]models.ChamaMember, error) {
	if m.broken[chamaID] {
		return nil, errors.New("members unavailable")
	}
	return m.rosters[chamaID], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []disputes.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, msg disputes.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) byTemplate(template string) []disputes.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []disputes.Notification
	for _, msg := range n.sent {
		if msg.Template == template {
			out = append(out, msg)
		}
	}
	return out
}

type markerKey struct {
	disputeID primitive.ObjectID
	userID    string
	phase     models.ReminderPhase
}

// memMarks mirrors the conditional upsert of the reminder collection
type memMarks struct {
	mu   sync.Mutex
	last map[markerKey]time.Time
}

func (m *memMarks) Claim(ctx context.Context, disputeID primitive.ObjectID, userID string, phase models.ReminderPhase, now time.Time, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := markerKey{disputeID, userID, phase}
	if at, ok := m.last[k]; ok && at.After(now.Add(-cooldown)) {
		return false, nil
	}
	m.last[k] = now
	return true, nil
}

type heldLock struct {
	held     bool
	released int
}

func (l *heldLock) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *heldLock) ReleaseLock(ctx context.Context, name, owner string) error {
	l.held = false
	l.released++
	return nil
}
