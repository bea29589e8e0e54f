package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"frigate-wa-bridge/internal/auth"
	"frigate-wa-bridge/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a dashboard token signed with DASHBOARD_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.DashboardSecret == "" {
				return errors.New("DASHBOARD_SECRET is not set; dashboard auth is disabled")
			}
			tokenCfg := auth.DefaultTokenConfig(cfg.DashboardSecret)
			tokenCfg.Expiry = cfg.TokenExpiry
			if expiry > 0 {
				tokenCfg.Expiry = expiry
			}
			tok, err := auth.CreateToken(subject, tokenCfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dashboard", "token subject")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (defaults to TOKEN_EXPIRY_SECONDS)")
	return cmd
}
