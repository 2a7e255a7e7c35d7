package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/soypete/pedropost/pkg/social"
	"github.com/soypete/pedropost/pkg/tokens"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var (
	tokenAccess  string
	tokenRefresh string
	tokenExpires time.Duration
	tokenScope   string
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored X user token",
		Long: `Tokens are kept in PostgreSQL when DATABASE_URL is set and in the token
file otherwise. X rotates refresh tokens on every refresh, so the stored
token always wins over X_ACCESS_TOKEN and X_REFRESH_TOKEN once it exists.`,
	}

	cmd.AddCommand(tokenSetCmd())
	cmd.AddCommand(tokenShowCmd())

	return cmd
}

func tokenSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the stored X token",
		Long: `Replace the stored X token, for example after re-authorizing the app.

Examples:
  pedropost token set --access-token "$X_ACCESS_TOKEN" --refresh-token "$X_REFRESH_TOKEN" --expires-in 2h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenAccess == "" && tokenRefresh == "" {
				return fmt.Errorf("--access-token or --refresh-token is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, db, err := openTokenStore(ctx, cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			tok := &oauth2.Token{
				AccessToken:  tokenAccess,
				RefreshToken: tokenRefresh,
				TokenType:    "bearer",
			}
			if tokenExpires > 0 {
				tok.Expiry = time.Now().Add(tokenExpires)
			}
			if tokenScope != "" {
				tok = tok.WithExtra(map[string]interface{}{"scope": tokenScope})
			}

			saved, err := social.StoreXToken(ctx, store, tok)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Token saved for %s/%s\n", saved.Provider, saved.Service)
			printToken(cmd.OutOrStdout(), saved)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenAccess, "access-token", "", "OAuth 2.0 user access token")
	cmd.Flags().StringVar(&tokenRefresh, "refresh-token", "", "OAuth 2.0 refresh token (requires offline.access)")
	cmd.Flags().DurationVar(&tokenExpires, "expires-in", 0, "Access token lifetime, unknown when unset")
	cmd.Flags().StringVar(&tokenScope, "scope", "", "Space-separated scopes granted to the token")

	return cmd
}

func tokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored X token without its secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, db, err := openTokenStore(ctx, cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			tok, err := social.XToken(ctx, store)
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func printToken(w io.Writer, tok *tokens.OAuthToken) {
	fmt.Fprintf(w, "  Access token:  %s\n", mask(tok.AccessToken))
	fmt.Fprintf(w, "  Refresh token: %s\n", mask(tok.RefreshToken))
	if tok.Scope != "" {
		fmt.Fprintf(w, "  Scope:         %s\n", tok.Scope)
	}
	switch {
	case tok.ExpiresAt == nil:
		fmt.Fprintf(w, "  Expires:       unknown\n")
	case tok.IsExpired(0):
		fmt.Fprintf(w, "  Expires:       %s (expired)\n", tok.ExpiresAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(w, "  Expires:       %s\n", tok.ExpiresAt.Format(time.RFC3339))
	}
	if tok.LastRefreshed != nil {
		fmt.Fprintf(w, "  Refreshed:     %s\n", tok.LastRefreshed.Format(time.RFC3339))
	}
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	switch {
	case secret == "":
		return "(none)"
	case len(secret) <= 4:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}
