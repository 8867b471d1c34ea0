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

	"frontdesk/auth"
	"frontdesk/config"
	"frontdesk/db"
	"frontdesk/logging"
	"frontdesk/resolution"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "frontdesk",
		Short: "Front desk agent with supervisor escalation",
		Long: `frontdesk answers caller questions from business facts and learned answers,
escalates the rest to a human supervisor and learns from every answer given.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("FRONTDESK_CONFIG"), "path to a YAML config file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newAddSupervisorCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// withApp loads config, wires the services and hands them to fn.
func (o *rootOptions) withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the expiry sweeper and the notification dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return opts.withApp(ctx, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	httpServer := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.server().Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.sweeper.Run(ctx)
	})
	g.Go(func() error {
		return a.dispatcher.Run(ctx, a.cfg.Outbox.PollInterval)
	})

	err := g.Wait()
	a.logger.Info("front desk stopped")
	return err
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := db.Migrate(ctx, a.pool); err != nil {
					return err
				}
				names, _ := db.Migrations()
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", len(names))
				return nil
			})
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue help requests once and backfill missing learned answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				expired, err := a.sweeper.Sweep(ctx, time.Now())
				if err != nil {
					return err
				}
				learned, err := a.requests.Reconcile(ctx, 100)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d help requests, reconciled %d answers\n", expired, learned)
				return nil
			})
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var name, phone string
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Put a caller question to the front desk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := a.orchestrator.Resolve(ctx, resolution.Call{
					CallerName:  name,
					CallerPhone: phone,
					Question:    args[0],
				})
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if out.Escalated() {
					fmt.Fprintf(w, "%s\nescalated as help request %s (expires %s)\n",
						escalationReply, out.Request.ID, out.Request.ExpiresAt.Format(time.RFC3339))
					return nil
				}
				fmt.Fprintf(w, "[%s] %s\n", out.Source, out.Answer)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "caller name")
	cmd.Flags().StringVar(&phone, "phone", "", "caller phone number")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newAddSupervisorCmd(opts *rootOptions) *cobra.Command {
	var req auth.RegisterRequest
	var role string
	cmd := &cobra.Command{
		Use:   "add-supervisor",
		Short: "Create a supervisor account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("FRONTDESK_SUPERVISOR_PASSWORD")
			}
			req.Role = auth.Role(role)
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				sup, err := a.auth.Register(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", sup.Role, sup.Email, sup.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "supervisor email")
	cmd.Flags().StringVar(&req.FullName, "name", "", "supervisor full name")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (defaults to $FRONTDESK_SUPERVISOR_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleSupervisor), "supervisor or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
