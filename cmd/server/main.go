package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.chrisrx.dev/x/log"

	"go.chrisrx.dev/reconf/config"
	"go.chrisrx.dev/reconf/hub"
)

var opts struct {
	Config  string
	Addr    string
	Token   string
	IDStyle string
}

func main() {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept agents and reconfigure them over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = opts.Addr
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

			logger := log.New(log.WithFormat(log.JSONFormat))

			h := hub.New(
				hub.WithLogger(logger),
				hub.WithRequestTimeout(cfg.RequestTimeout),
				hub.WithSessionOptions(cfg.SessionOptions()...),
			)
			defer h.Close()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Use(middleware.Logger())
			e.Use(middleware.Recover())

			var auth []echo.MiddlewareFunc
			if cfg.Token != "" {
				auth = append(auth, middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
					return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Token)) == 1, nil
				}))
			}
			h.Register(e, auth...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				h.Close()
				_ = e.Shutdown(shutdownCtx)
			}()

			logger.Info("listening", slog.String("addr", cfg.Addr))
			if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token agents must present")
	cmd.Flags().StringVar(&opts.IDStyle, "id-style", "", "correlation token style: phrase, uuid or ulid")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
