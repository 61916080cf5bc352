package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scenegen/internal/infra"
	"scenegen/internal/infra/credentials"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored xAI API key",
	}
	var key string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the default xAI API key in Postgres (needs DATABASE_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key = strings.TrimSpace(key)
			if key == "" {
				key = strings.TrimSpace(os.Getenv("XAI_API_KEY"))
			}
			if key == "" {
				return fmt.Errorf("xai api key is required via --key or XAI_API_KEY")
			}
			dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
			if dbURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			if err := storeKey(cmd.Context(), dbURL, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "XAI API key stored successfully")
			return nil
		},
	}
	set.Flags().StringVar(&key, "key", "", "API key to store (defaults to XAI_API_KEY)")
	cmd.AddCommand(set)
	return cmd
}

func storeKey(ctx context.Context, dbURL, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cfg := &infra.Config{DatabaseURL: dbURL, WorkerCount: 1}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := infra.NewCLILogger(false).With().Str("provider", credentials.ProviderXAI).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure credentials schema: %w", err)
	}
	if err := store.SetXAIAPIKey(ctx, key); err != nil {
		return fmt.Errorf("persist xai api key: %w", err)
	}
	return nil
}
