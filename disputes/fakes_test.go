package disputes

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/chama-disputes-api/models"
)

type memDisputes struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.Dispute

	// replaceHook runs before each Replace, letting a test interleave a
	// concurrent writer
	replaceHook func()
}

func newMemDisputes() *memDisputes {
	return &memDisputes{byID: map[primitive.ObjectID]models.Dispute{}}
}

func (m *memDisputes) Insert(ctx context.Context, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[d.ID] = *d
	return nil
}

func (m *memDisputes) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *memDisputes) Replace(ctx context.Context, d *models.Dispute, expectedVersion int64) (bool, error) {
	if hook := m.replaceHook; hook != nil {
		m.replaceHook = nil
		hook()
	}
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
	var out []models.Dispute
	for _, d := range m.all() {
		if d.ChamaID == chamaID && (status == "" || d.Status == status) {
			out = append(out, d)
		}
	}
	if offset >= int64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDisputes) ListByParty(ctx context.Context, userID, chamaID string, status models.DisputeStatus) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range m.all() {
		if d.IsParty(userID) && (chamaID == "" || d.ChamaID == chamaID) && (status == "" || d.Status == status) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDisputes) ListDeadlineBetween(ctx context.Context, status models.DisputeStatus, from, to time.Time) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range m.all() {
		if d.Status != status {
			continue
		}
		dl := d.DiscussionDeadline
		if status == models.StatusVoting {
			dl = d.VotingDeadline
		}
		if dl != nil && dl.After(from) && !dl.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDisputes) ListEscalated(ctx context.Context, limit, offset int64) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range m.all() {
		if d.Status == models.StatusEscalated {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Escalation.EscalatedAt.Before(out[j].Escalation.EscalatedAt) })
	return out, nil
}

func (m *memDisputes) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range m.all() {
		if !d.CreatedAt.Before(start) && d.CreatedAt.Before(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDisputes) all() []models.Dispute {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Dispute, 0, len(m.byID))
	for _, d := range m.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memVotes struct {
	mu    sync.Mutex
	votes []models.Vote
	err   error
}

func (m *memVotes) Insert(ctx context.Context, v *models.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.votes {
		if existing.DisputeID == v.DisputeID && existing.UserID == v.UserID {
			return ErrConflict
		}
	}
	m.votes = append(m.votes, *v)
	return nil
}

func (m *memVotes) ListByDispute(ctx context.Context, id primitive.ObjectID) ([]models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Vote
	for _, v := range m.votes {
		if v.DisputeID == id {
			out = append(out, v)
		}
	}
	return out, nil
}

type memComments struct {
	mu       sync.Mutex
	comments []models.Comment
}

func (m *memComments) Insert(ctx context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, *c)
	return nil
}

func (m *memComments) ListByDispute(ctx context.Context, id primitive.ObjectID) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Comment
	for _, c := range m.comments {
		if c.DisputeID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

type memEvidence struct {
	mu       sync.Mutex
	evidence []models.Evidence
	err      error
}

func (m *memEvidence) Insert(ctx context.Context, e *models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.evidence = append(m.evidence, *e)
	return nil
}

func (m *memEvidence) ListByDispute(ctx context.Context, id primitive.ObjectID) ([]models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Evidence
	for _, e := range m.evidence {
		if e.DisputeID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// staticMembers maps chamaId -> userId -> role
type staticMembers map[string]map[string]string

func (s staticMembers) IsActiveMember(ctx context.Context, chamaID, userID string) (bool, error) {
	_, ok := s[chamaID][userID]
	return ok, nil
}

func (s staticMembers) Role(ctx context.Context, chamaID, userID string) (string, error) {
	return s[chamaID][userID], nil
}

func (s staticMembers) ActiveMembers(ctx context.Context, chamaID string) ([]models.ChamaMember, error) {
	var out []models.ChamaMember
	for id, role := range s[chamaID] {
		out = append(out, models.ChamaMember{UserID: id, Role: role, Status: "active"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type fakeFiles struct {
	uploads []string
	deleted []string
	err     error
}

func (f *fakeFiles) Upload(ctx context.Context, file io.Reader, filename, folder string, allowedTypes []string, maxSize int64) (UploadResult, error) {
	if f.err != nil {
		return UploadResult{}, f.err
	}
	b, _ := io.ReadAll(file)
	key := folder + "/" + filename
	f.uploads = append(f.uploads, key)
	return UploadResult{URL: "https://files.test/" + key, Size: int64(len(b)), MimeType: "application/pdf", Key: key}, nil
}

func (f *fakeFiles) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.Template)
	}
	return out
}

func (r *recordingNotifier) count(template string) int {
	n := 0
	for _, t := range r.templates() {
		if t == template {
			n++
		}
	}
	return n
}

type recordingAudit struct {
	mu   sync.Mutex
	rows []models.DisputeActivity
}

func (r *recordingAudit) Record(ctx context.Context, a models.DisputeActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, a)
	return nil
}

// fixture is a service over in-memory collaborators with a settable clock
type fixture struct {
	svc      *Service
	disputes *memDisputes
	votes    *memVotes
	comments *memComments
	evidence *memEvidence
	files    *fakeFiles
	notifier *recordingNotifier
	audit    *recordingAudit
	now      time.Time
}

const testChama = "chama-1"

var (
	admin     = Actor{UserID: "u-admin"}
	treasurer = Actor{UserID: "u-treasurer"}
	filer     = Actor{UserID: "u-filer"}
	accused   = Actor{UserID: "u-accused"}
	memberA   = Actor{UserID: "u-a"}
	memberB   = Actor{UserID: "u-b"}
	memberC   = Actor{UserID: "u-c"}
	memberD   = Actor{UserID: "u-d"}
	outsider  = Actor{UserID: "u-outsider"}
	platform  = Actor{UserID: "u-platform", PlatformAdmin: true}
)

func newFixture() *fixture {
	f := &fixture{
		disputes: newMemDisputes(),
		votes:    &memVotes{},
		comments: &memComments{},
		evidence: &memEvidence{},
		files:    &fakeFiles{},
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = &Service{
		Disputes: f.disputes,
		Evidence: f.evidence,
		Comments: f.comments,
		Votes:    f.votes,
		Members: staticMembers{testChama: {
			admin.UserID:     models.ChamaRoleAdmin,
			treasurer.UserID: models.ChamaRoleTreasurer,
			filer.UserID:     models.ChamaRoleMember,
			accused.UserID:   models.ChamaRoleMember,
			memberA.UserID:   models.ChamaRoleMember,
			memberB.UserID:   models.ChamaRoleMember,
			memberC.UserID:   models.ChamaRoleMember,
			memberD.UserID:   models.ChamaRoleMember,
		}},
		Files:    f.files,
		Notifier: f.notifier,
		Audit:    f.audit,
		Policy:   DefaultPolicy(),
		Now:      func() time.Time { return f.now },
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}
