package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/HanTheDev/relationship-coach-api/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint an operator token offline",
	Long: `Sign an operator JWT with ADMIN_JWT_SECRET without running the server.

Example:
  server admin-token --subject alice --ttl 2h`,
	RunE: runAdminToken,
}

var genKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Print a random value for ADMIN_API_KEY",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator name recorded in the token (required)")
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	adminTokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(adminTokenCmd, genKeyCmd, versionCmd)
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	godotenv.Load()
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		return errors.New("ADMIN_JWT_SECRET is not set")
	}

	token, err := auth.GenerateToken(tokenSubject, secret, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
