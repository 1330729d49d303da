// Package notifications delivers dispute notifications over email, Expo
// push, websockets and the dispute event stream.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

// DefaultTimeout bounds a single fanout across every channel
const DefaultTimeout = 30 * time.Second

// Channel delivers one notification to its recipients. contacts holds the
// resolved contact details of n.Recipients and may be shorter than it.
type Channel interface {
	Name() string
	Send(ctx context.Context, n disputes.Notification, contacts []models.UserContact) error
}

// ContactDirectory resolves user ids to contact details
type ContactDirectory interface {
	Contacts(ctx context.Context, userIDs []string) ([]models.UserContact, error)
}

// Gateway fans a notification out to every channel in the background. It
// implements disputes.Notifier.
type Gateway struct {
	Contacts ContactDirectory
	Channels []Channel
	Timeout  time.Duration
	// Failures counts failed deliveries by channel. Optional.
	Failures *prometheus.CounterVec

	wg sync.WaitGroup
}

// NewGateway returns a gateway over the given channels
func NewGateway(contacts ContactDirectory, failures *prometheus.CounterVec, channels ...Channel) *Gateway {
	return &Gateway{
		Contacts: contacts,
		Channels: channels,
		Timeout:  DefaultTimeout,
		Failures: failures,
	}
}

// Notify returns immediately. Delivery outlives the caller's context but not
// the gateway timeout, and failures are only logged.
func (g *Gateway) Notify(ctx context.Context, n disputes.Notification) {
	if len(n.Recipients) == 0 || len(g.Channels) == 0 {
		return
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		g.deliver(ctx, n)
	}()
}

// Wait blocks until in-flight deliveries finish
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) deliver(ctx context.Context, n disputes.Notification) {
	var contacts []models.UserContact
	if g.Contacts != nil {
		found, err := g.Contacts.Contacts(ctx, n.Recipients)
		if err != nil {
			zap.S().Warnw("failed to resolve notification contacts",
				"template", n.Template,
				"disputeId", n.Payload["disputeId"],
				"error", err)
		}
		contacts = found
	}

	// a plain group so one failing channel never cancels the others
	var eg errgroup.Group
	for _, ch := range g.Channels {
		ch := ch
		eg.Go(func() error {
			if err := ch.Send(ctx, n, contacts); err != nil {
				zap.S().Errorw("notification delivery failed",
					"channel", ch.Name(),
					"template", n.Template,
					"disputeId", n.Payload["disputeId"],
					"recipients", len(n.Recipients),
					"error", err)
				if g.Failures != nil {
					g.Failures.WithLabelValues(ch.Name()).Inc()
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
}
