package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/cache"
	"github.com/linesmerrill/chama-disputes-api/config"
	"github.com/linesmerrill/chama-disputes-api/databases"
	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/notifications"
	"github.com/linesmerrill/chama-disputes-api/storage"
)

// RequestTimeout bounds every /api/v1 request
const RequestTimeout = 30 * time.Second

// App stores the router and the wired service, so they can be reused by the
// HTTP server and the scheduler
type App struct {
	Router  *mux.Router
	Config  config.Config
	Service *disputes.Service
	Metrics *api.Metrics
	Auth    *api.Authenticator
	Hub     *notifications.Hub
	Gateway *notifications.Gateway

	// Reminders and Lock back the deadline scanner. Lock is nil without Redis.
	Reminders *databases.ReminderDatabase
	Lock      *cache.RedisLock

	client databases.ClientHelper
	redis  *redis.Client
	events *notifications.EventPublisher
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	r := api.New(a.Metrics)
	if a.Metrics != nil {
		r.Use(a.Metrics.MetricsMiddleware)
	}

	d := Dispute{Service: a.Service, Metrics: a.Metrics}
	ad := AdminDispute{Service: a.Service}
	auth := a.Auth.Middleware

	if a.Hub != nil {
		r.Handle("/ws/notifications", auth(a.Hub)).Methods("GET")
	}

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(RequestTimeout))

	apiCreate.Handle("/disputes", auth(http.HandlerFunc(d.CreateDisputeHandler))).Methods("POST")
	apiCreate.Handle("/disputes/user/my-disputes", auth(http.HandlerFunc(d.MyDisputesHandler))).Methods("GET")
	apiCreate.Handle("/disputes/chama/{chamaId}", auth(http.HandlerFunc(d.ChamaDisputesHandler))).Methods("GET")
	apiCreate.Handle("/disputes/{id}", auth(http.HandlerFunc(d.DisputeByIDHandler))).Methods("GET")
	apiCreate.Handle("/disputes/{id}/evidence", auth(http.HandlerFunc(d.SubmitEvidenceHandler))).Methods("POST")
	apiCreate.Handle("/disputes/{id}/evidence", auth(http.HandlerFunc(d.EvidenceHandler))).Methods("GET")
	apiCreate.Handle("/disputes/{id}/comments", auth(http.HandlerFunc(d.AddCommentHandler))).Methods("POST")
	apiCreate.Handle("/disputes/{id}/comments", auth(http.HandlerFunc(d.CommentsHandler))).Methods("GET")
	apiCreate.Handle("/disputes/{id}/start-discussion", auth(http.HandlerFunc(d.StartDiscussionHandler))).Methods("PUT")
	apiCreate.Handle("/disputes/{id}/start-voting", auth(http.HandlerFunc(d.StartVotingHandler))).Methods("PUT")
	apiCreate.Handle("/disputes/{id}/votes", auth(http.HandlerFunc(d.CastVoteHandler))).Methods("POST")
	apiCreate.Handle("/disputes/{id}/votes", auth(http.HandlerFunc(d.VotesHandler))).Methods("GET")
	apiCreate.Handle("/disputes/{id}/resolve", auth(http.HandlerFunc(d.ResolveHandler))).Methods("PUT")
	apiCreate.Handle("/disputes/{id}/escalate", auth(http.HandlerFunc(d.EscalateHandler))).Methods("POST")
	apiCreate.Handle("/disputes/{id}/status", auth(http.HandlerFunc(d.UpdateStatusHandler))).Methods("PUT")

	apiCreate.Handle("/admin/disputes/escalated", auth(http.HandlerFunc(ad.EscalatedHandler))).Methods("GET")
	apiCreate.Handle("/admin/disputes/analytics", auth(http.HandlerFunc(ad.AnalyticsHandler))).Methods("GET")
	apiCreate.Handle("/admin/disputes/{id}/review", auth(http.HandlerFunc(ad.ReviewHandler))).Methods("PUT")

	return r
}

// Initialize is invoked by main to connect with the database and the
// optional collaborators, wire the service and create a router
func (a *App) Initialize(ctx context.Context) error {
	if a.Config.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}
	if err := client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	a.client = client
	dbHelper := databases.NewDatabase(&a.Config, client)
	zap.S().Info("chama-disputes-api has connected to the database")

	if err := databases.EnsureIndexes(ctx, dbHelper); err != nil {
		zap.S().With(err).Error("failed to ensure indexes")
		return err
	}

	a.Metrics = api.NewMetrics()
	a.Auth = api.NewAuthenticator(a.Config.JWTSecret)
	a.Hub = notifications.NewHub()
	a.Reminders = databases.NewReminderDatabase(dbHelper)

	channels := []notifications.Channel{a.Hub, notifications.NewPushChannel(a.Config.ExpoPushURL)}
	if a.Config.SendGridAPIKey != "" {
		channels = append(channels, notifications.NewEmailChannel(a.Config.SendGridAPIKey, a.Config.EmailFrom, a.Config.BaseURL))
	} else {
		zap.S().Warn("SENDGRID_API_KEY not set, email notifications disabled")
	}
	if len(a.Config.KafkaBrokers) > 0 {
		a.events = notifications.NewEventPublisher(a.Config.KafkaBrokers, a.Config.KafkaTopic)
		channels = append(channels, a.events)
	}
	a.Gateway = notifications.NewGateway(databases.NewUserDatabase(dbHelper), a.Metrics.NotificationFailures, channels...)

	if a.Config.RedisURL != "" {
		rdb, err := cache.Connect(ctx, a.Config.RedisURL)
		if err != nil {
			// the scanner is safe without the lock, so only warn
			zap.S().Warnw("failed to connect to redis, scanner runs unlocked", "error", err)
		} else {
			a.redis = rdb
			a.Lock = cache.NewRedisLock(rdb)
		}
	}

	var files disputes.FileStorage
	if a.Config.CloudinaryURL != "" {
		cld, err := storage.NewCloudinary(a.Config.CloudinaryURL)
		if err != nil {
			zap.S().With(err).Error("failed to configure cloudinary")
			return err
		}
		files = cld
	} else {
		zap.S().Warn("CLOUDINARY_URL not set, evidence uploads disabled")
	}

	policy := disputes.DefaultPolicy()
	policy.AllowPartyVotes = a.Config.AllowPartyVotes
	if a.Config.EvidenceFolder != "" {
		policy.EvidenceFolder = a.Config.EvidenceFolder
	}
	if a.Config.EvidenceMaxBytes > 0 {
		policy.EvidenceMaxBytes = a.Config.EvidenceMaxBytes
	}

	a.Service = &disputes.Service{
		Disputes: databases.NewDisputeDatabase(dbHelper),
		Evidence: databases.NewEvidenceDatabase(dbHelper),
		Comments: databases.NewCommentDatabase(dbHelper),
		Votes:    databases.NewVoteDatabase(dbHelper),
		Members:  databases.NewChamaDatabase(dbHelper),
		Files:    files,
		Notifier: a.Gateway,
		Audit:    a.Metrics.Audit(databases.NewActivityDatabase(dbHelper)),
		Policy:   policy,
	}

	// initialize api router
	a.initializeRoutes()
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

// Close waits for in-flight notifications and releases connections
func (a *App) Close(ctx context.Context) {
	if a.Gateway != nil {
		a.Gateway.Wait()
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			zap.S().Warnw("failed to close event publisher", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.client != nil {
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
}
