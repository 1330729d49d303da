package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/api/handlers"
	"github.com/linesmerrill/chama-disputes-api/api/scheduler"
	"github.com/linesmerrill/chama-disputes-api/config"
)

// Version is set at build time with -ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "chama-disputes-api",
		Short:         "Dispute lifecycle service for chamas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the deadline scanner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Run one deadline scanner pass now",
	}
	for _, pass := range []string{scheduler.PassReminders, scheduler.PassOverdue} {
		scan.AddCommand(&cobra.Command{
			Use:   pass,
			Short: fmt.Sprintf("Run the %s pass once", pass),
			RunE: func(cmd *cobra.Command, args []string) error {
				return scanOnce(configPath, pass)
			},
		})
	}
	cmd.AddCommand(scan)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chama-disputes-api version %s\n", Version)
		},
	})

	return cmd
}

func setup(ctx context.Context, configPath string) (*handlers.App, *scheduler.Scheduler, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	a := &handlers.App{Config: *conf}
	if err := a.Initialize(ctx); err != nil { //initialize database and router
		return nil, nil, err
	}

	var lock scheduler.Locker
	if a.Lock != nil {
		lock = a.Lock
	}
	s := scheduler.NewScheduler(a.Service, a.Reminders, lock, a.Metrics, conf)
	return a, s, nil
}

func serve(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, s, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		a.Close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	zap.S().Infow("chama-disputes-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
		"version", Version,
	)

	select {
	case err = <-errc:
	case <-ctx.Done():
		zap.S().Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		zap.S().Warnw("failed to shut down http server", "error", serr)
	}
	s.Stop()
	a.Close(shutdownCtx)
	_ = zap.S().Sync()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func scanOnce(configPath, pass string) error {
	ctx := context.Background()
	a, s, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	return s.Run(pass)
}
