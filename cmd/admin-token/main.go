// Command admin-token выпускает JWT для административного API бота.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/jwt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Issue a JWT for the admin API",
		Long: `Issue a JWT with the admin role signed by jwttoken.jwt_secret_key
from the bot config. The token is printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath = os.Getenv("CONFIG_PATH")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			token, err := jwt.NewJWTMaker(cfg.JWTSecretKey, ttl, clock.Real{}).GenerateToken(subject, jwt.RoleAdmin)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default $CONFIG_PATH)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default jwttoken.token_ttl)")
	return cmd
}
