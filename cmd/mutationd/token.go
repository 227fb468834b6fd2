package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
	httpapi "github.com/garyjia/mutation-workflow/internal/interfaces/http"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		name    string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for development and testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			auth, err := httpapi.NewAuthenticator(httpapi.AuthConfig{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.Issuer,
				TokenTTL: ttl,
			})
			if err != nil {
				return err
			}

			token, err := auth.Issue(entity.Actor{
				ID:    subject,
				Role:  domainwf.Role(strings.ToUpper(role)),
				Name:  name,
				Email: email,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "user identifier (required)")
	cmd.Flags().StringVar(&role, "role", "", "AGENT, RESPONSABLE, DGR, CVR, DNCF or ADMIN (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
