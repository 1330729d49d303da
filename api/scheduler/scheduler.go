package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/config"
	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

// runJitter is how much earlier than its slot a cron run may start. Markers
// are claimable this long before the cooldown ends so a run that fires a
// little early is not skipped.
const runJitter = 5 * time.Minute

// Pass names, used for the lock key and the scan metrics
const (
	PassReminders = "reminders"
	PassOverdue   = "overdue"
)

// Locker keeps a pass to one instance at a time. cache.RedisLock satisfies it.
type Locker interface {
	TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// ReminderMarks claims per recipient reminder markers.
// databases.ReminderDatabase satisfies it.
type ReminderMarks interface {
	Claim(ctx context.Context, disputeID primitive.ObjectID, userID string, phase models.ReminderPhase, now time.Time, cooldown time.Duration) (bool, error)
}

// Scheduler runs the dispute deadline scanner
type Scheduler struct {
	cron       *cron.Cron
	Service    *disputes.Service
	Reminders  ReminderMarks
	Lock       Locker
	Metrics    *api.Metrics
	instanceID string

	ReminderSchedule string
	OverdueSchedule  string

	// Window is how far ahead a deadline counts as approaching
	Window   time.Duration
	Cooldown time.Duration
	Timeout  time.Duration

	// Now is overridable for tests
	Now func() time.Time
}

// NewScheduler creates a new scheduler instance. lock may be nil, the passes
// are safe to run unlocked.
func NewScheduler(svc *disputes.Service, reminders ReminderMarks, lock Locker, metrics *api.Metrics, conf *config.Config) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = "instance-" + uuid.NewString()
	}
	if conf == nil {
		conf = config.Default()
	}

	return &Scheduler{
		cron:             cron.New(cron.WithLocation(time.UTC)),
		Service:          svc,
		Reminders:        reminders,
		Lock:             lock,
		Metrics:          metrics,
		instanceID:       instanceID,
		ReminderSchedule: conf.ReminderSchedule,
		OverdueSchedule:  conf.OverdueSchedule,
		Window:           conf.ReminderWindow,
		Cooldown:         conf.ReminderCooldown,
		Timeout:          conf.ScanTimeout,
	}
}

// Start registers both passes and starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.ReminderSchedule, s.job(PassReminders, s.RunReminders)); err != nil {
		return fmt.Errorf("failed to register reminder job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.OverdueSchedule, s.job(PassOverdue, s.RunOverdue)); err != nil {
		return fmt.Errorf("failed to register overdue job: %w", err)
	}

	s.cron.Start()
	zap.S().Infow("dispute scheduler started",
		"instance", s.instanceID,
		"reminderSchedule", s.ReminderSchedule,
		"overdueSchedule", s.OverdueSchedule)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running pass
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("dispute scheduler stopped")
}

// Run executes one pass immediately under the same lock and timeout as the
// cron job
func (s *Scheduler) Run(pass string) error {
	switch pass {
	case PassReminders:
		return s.runLocked(pass, s.RunReminders)
	case PassOverdue:
		return s.runLocked(pass, s.RunOverdue)
	}
	return fmt.Errorf("unknown pass %q", pass)
}

func (s *Scheduler) job(pass string, fn func(context.Context) error) func() {
	return func() {
		if err := s.runLocked(pass, fn); err != nil {
			zap.S().Errorw("dispute scan failed", "pass", pass, "error", err)
		}
	}
}

func (s *Scheduler) runLocked(pass string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	if s.Lock != nil {
		name := "dispute_scan_" + pass
		acquired, err := s.Lock.TryAcquireLock(ctx, name, s.instanceID, 2*s.timeout())
		switch {
		case err != nil:
			zap.S().Warnw("failed to acquire scan lock, running unlocked", "pass", pass, "error", err)
		case !acquired:
			zap.S().Debugw("scan already running on another instance, skipping", "pass", pass)
			s.countRun(pass, "skipped")
			return nil
		default:
			defer func() {
				if err := s.Lock.ReleaseLock(context.Background(), name, s.instanceID); err != nil {
					zap.S().Warnw("failed to release scan lock", "pass", pass, "error", err)
				}
			}()
		}
	}

	zap.S().Infow("running dispute scan", "pass", pass, "instance", s.instanceID)
	err := fn(ctx)
	if err != nil {
		s.countRun(pass, "error")
		return err
	}
	s.countRun(pass, "ok")
	return nil
}

// RunReminders is the approaching deadline pass. Disputes whose discussion
// or voting deadline falls within the window get one reminder per recipient
// per cooldown.
func (s *Scheduler) RunReminders(ctx context.Context) error {
	now := s.now()
	phases := []struct {
		status   models.DisputeStatus
		phase    models.ReminderPhase
		template string
	}{
		{models.StatusDiscussion, models.ReminderDiscussion, disputes.TemplateDiscussionReminder},
		{models.StatusVoting, models.ReminderVoting, disputes.TemplateVotingReminder},
	}

	var errs []error
	sent := 0
	for _, p := range phases {
		ds, err := s.Service.Disputes.ListDeadlineBetween(ctx, p.status, now, now.Add(s.window()))
		if err != nil {
			zap.S().Errorw("failed to list disputes with approaching deadline", "status", p.status, "error", err)
			errs = append(errs, fmt.Errorf("list %s disputes: %w", p.status, err))
			continue
		}
		for i := range ds {
			d := &ds[i]
			recipients, err := s.Service.ReminderRecipients(ctx, d, now.Add(-s.window()))
			if err != nil {
				zap.S().Errorw("failed to resolve reminder recipients", "disputeId", d.ID.Hex(), "error", err)
				errs = append(errs, err)
				continue
			}
			n, err := s.remind(ctx, d, p.phase, p.template, recipients, now)
			sent += n
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	zap.S().Infow("reminder pass complete", "remindersSent", sent, "failures", len(errs))
	return errors.Join(errs...)
}

// RunOverdue is the overdue pass. Voting disputes past their deadline are
// finalized. Discussion disputes past their deadline stay put and their
// officers are told an advance is needed.
func (s *Scheduler) RunOverdue(ctx context.Context) error {
	now := s.now()
	var errs []error

	voting, err := s.Service.Disputes.ListDeadlineBetween(ctx, models.StatusVoting, time.Time{}, now)
	if err != nil {
		zap.S().Errorw("failed to list overdue voting disputes", "error", err)
		errs = append(errs, fmt.Errorf("list voting disputes: %w", err))
	}
	finalized := 0
	for _, d := range voting {
		if _, err := s.Service.Finalize(ctx, d.ID); err != nil {
			if errors.Is(err, disputes.ErrVotingOpen) {
				// the service clock has not reached the deadline yet
				zap.S().Debugw("overdue dispute still open, leaving it for the next run", "disputeId", d.ID.Hex())
				continue
			}
			zap.S().Errorw("failed to finalize overdue dispute", "disputeId", d.ID.Hex(), "error", err)
			errs = append(errs, err)
			continue
		}
		finalized++
	}

	discussion, err := s.Service.Disputes.ListDeadlineBetween(ctx, models.StatusDiscussion, time.Time{}, now)
	if err != nil {
		zap.S().Errorw("failed to list overdue discussion disputes", "error", err)
		errs = append(errs, fmt.Errorf("list discussion disputes: %w", err))
	}
	alerted := 0
	for i := range discussion {
		d := &discussion[i]
		officers, err := s.Service.Officers(ctx, d)
		if err != nil {
			zap.S().Errorw("failed to list officers for overdue dispute", "disputeId", d.ID.Hex(), "error", err)
			errs = append(errs, err)
			continue
		}
		n, err := s.remind(ctx, d, models.ReminderDiscussionOverdue, disputes.TemplateDiscussionOverdue, officers, now)
		alerted += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	zap.S().Infow("overdue pass complete",
		"finalized", finalized,
		"overdueAlerts", alerted,
		"failures", len(errs))
	return errors.Join(errs...)
}

// remind claims a marker for every recipient and sends one notification to
// those it could claim
func (s *Scheduler) remind(ctx context.Context, d *models.Dispute, phase models.ReminderPhase, template string, recipients []string, now time.Time) (int, error) {
	var errs []error
	var claimed []string
	for _, userID := range recipients {
		ok, err := s.Reminders.Claim(ctx, d.ID, userID, phase, now, s.claimCooldown())
		if err != nil {
			zap.S().Errorw("failed to claim reminder marker",
				"disputeId", d.ID.Hex(),
				"userId", userID,
				"phase", phase,
				"error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			claimed = append(claimed, userID)
		}
	}
	if len(claimed) == 0 {
		return 0, errors.Join(errs...)
	}

	extra := map[string]string{}
	if deadline := phaseDeadline(d); deadline != nil {
		extra["deadline"] = deadline.UTC().Format(time.RFC3339)
	}
	s.Service.Send(ctx, d, template, claimed, extra)
	if s.Metrics != nil {
		s.Metrics.RemindersSent.WithLabelValues(string(phase)).Add(float64(len(claimed)))
	}
	return len(claimed), errors.Join(errs...)
}

func phaseDeadline(d *models.Dispute) *time.Time {
	if d.Status == models.StatusVoting {
		return d.VotingDeadline
	}
	return d.DiscussionDeadline
}

func (s *Scheduler) countRun(pass, result string) {
	if s.Metrics != nil {
		s.Metrics.ScanRuns.WithLabelValues(pass, result).Inc()
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Scheduler) window() time.Duration {
	if s.Window > 0 {
		return s.Window
	}
	return 24 * time.Hour
}

func (s *Scheduler) cooldown() time.Duration {
	if s.Cooldown > 0 {
		return s.Cooldown
	}
	return s.window()
}

// claimCooldown is the cooldown less the run jitter, capped at a tenth of
// the cooldown
func (s *Scheduler) claimCooldown() time.Duration {
	c := s.cooldown()
	return c - min(runJitter, c/10)
}

func (s *Scheduler) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 5 * time.Minute
}
