package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.chrisrx.dev/x/log"
	"go.chrisrx.dev/x/run"

	"go.chrisrx.dev/reconf/config"
	"go.chrisrx.dev/reconf/session"
)

var opts struct {
	Config     string
	Controller string
	Token      string
	IDStyle    string
	Seed       string
	Out        string
}

type agent struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	current any
}

func main() {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Hold a configuration document and accept patches from a controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Seed == "" {
				return fmt.Errorf("must provide seed")
			}
			cfg, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("controller") {
				cfg.ControllerURL = opts.Controller
			}
			if cmd.Flags().Changed("token") {
				cfg.Token = opts.Token
			}
			if cmd.Flags().Changed("id-style") {
				cfg.IDStyle = opts.IDStyle
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			seed, err := config.LoadDocument(opts.Seed)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := &agent{
				cfg:     cfg,
				logger:  log.New(log.WithFormat(log.JSONFormat)),
				current: seed,
			}
			return a.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&opts.Controller, "controller", "", "websocket URL of the controller")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token presented to the controller")
	cmd.Flags().StringVar(&opts.IDStyle, "id-style", "", "correlation token style: phrase, uuid or ulid")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "initial document (.json, .toml, .yaml)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write every new document to this file")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// run keeps a session to the controller open until ctx is done, dialing
// again whenever the connection is lost.
func (a *agent) run(ctx context.Context) error {
	for {
		var s *session.Session
		err := run.Until(ctx, func() error {
			var err error
			s, err = session.Dial(ctx, a.cfg.ControllerURL, a.sessionOptions()...)
			if err != nil {
				a.logger.Warn("cannot reach controller", slog.Any("error", err))
			}
			return err
		}, a.cfg.DialRetry)
		if err != nil || s == nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := s.Notify(ctx, s.Config()); err != nil {
			a.logger.Error("cannot announce configuration", slog.Any("error", err))
		}
		a.watch(ctx, s)

		if ctx.Err() != nil {
			s.Close()
			return nil
		}
		a.logger.Warn("controller connection lost", slog.Any("error", s.Err()))
	}
}

func (a *agent) watch(ctx context.Context, s *session.Session) {
	for {
		select {
		case err := <-s.Errors():
			a.logger.Warn("protocol error", slog.Any("error", err))
		case <-s.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *agent) sessionOptions() []session.Option {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()

	sessionOpts := append(a.cfg.SessionOptions(),
		session.WithLogger(a.logger),
		session.WithConfig(current),
		session.WithReadResponder(),
		session.WithSubscriber(a.reconfigured),
	)
	if a.cfg.Token != "" {
		sessionOpts = append(sessionOpts, session.WithBearerToken(a.cfg.Token))
	}
	return sessionOpts
}

func (a *agent) reconfigured(r session.Reconfigure) {
	a.mu.Lock()
	a.current = r.Config
	a.mu.Unlock()

	a.logger.Info("reconfigured", slog.String("id", r.ID))
	if opts.Out == "" {
		return
	}
	if err := config.WriteDocument(opts.Out, r.Config); err != nil {
		a.logger.Error("cannot write configuration", slog.String("path", opts.Out), slog.Any("error", err))
	}
}
