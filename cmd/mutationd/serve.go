package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/container"
	httpapi "github.com/garyjia/mutation-workflow/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the effect worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting mutation workflow service",
				zap.String("version", version),
				zap.Int("port", cfg.Server.Port))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(cfg, logger)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Shutdown finished with errors", zap.Error(err))
				}
			}()

			auth, err := httpapi.NewAuthenticator(httpapi.AuthConfig{
				Secret:            cfg.Auth.JWTSecret,
				Issuer:            cfg.Auth.Issuer,
				TokenTTL:          cfg.Auth.TokenTTL,
				AllowPublicFiling: cfg.Auth.AllowPublicFiling,
			})
			if err != nil {
				return err
			}

			deps := httpapi.ServerDeps{
				Gateway: c.Gateway(),
				Auth:    auth,
				Health:  healthFunc(c),
			}
			if m := c.Metrics(); m != nil {
				deps.Metrics = m
			}

			server := httpapi.NewServer(httpapi.ServerConfig{
				Host:            cfg.Server.Host,
				Port:            cfg.Server.Port,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				EventKeepAlive:  cfg.Server.EventKeepAlive,
			}, deps, c.LoggerAdapter())

			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			logger.Info("Mutation workflow service stopped")
			return nil
		},
	}
}

func healthFunc(c *container.Container) httpapi.HealthFunc {
	return func() (bool, map[string]string) {
		status := c.Health()
		components := make(map[string]string, len(status.Components))
		for name, h := range status.Components {
			state := "up"
			if !h.Healthy {
				state = "down"
			}
			if h.Message != "" {
				state += ": " + h.Message
			}
			components[name] = state
		}
		return status.Overall, components
	}
}
