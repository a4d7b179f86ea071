/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/playlistd/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the side server's operator endpoints",
	Long:  "Sign a token with PLAYLISTD_JWT_SECRET. Scopes: audit, logs, sessions, events. No scopes grants all of them.",
	RunE:  runToken,
}

var (
	tokenSubject string
	tokenScopes  []string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "Granted scope (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("PLAYLISTD_JWT_SECRET is not set")
	}
	for _, s := range tokenScopes {
		switch s {
		case auth.ScopeAudit, auth.ScopeLogs, auth.ScopeSessions, auth.ScopeEvents:
		default:
			return fmt.Errorf("unknown scope %q", s)
		}
	}

	token, err := auth.Issue([]byte(cfg.JWTSecret), tokenSubject, tokenScopes, tokenTTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
