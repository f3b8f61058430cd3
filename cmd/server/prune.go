package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/fedauth/internal/authkit"
	"go.uber.org/zap"
)

var buildPruneLogger = func() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-revocations",
		Short: "Delete revocation records whose credentials have already expired",
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return loadEnvFile(viper.GetString("env_file"))
		},
		RunE: runPrune,
	}
}

func runPrune(command *cobra.Command, arguments []string) error {
	logger, loggerErr := buildPruneLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	settings := loadRuntimeSettings()
	storeURL := revocationStoreURL(settings)
	if storeURL == "" {
		return fmt.Errorf("%s: %s", "config.missing_revocation_store_url", "revocation_store_url or database_url must be provided")
	}

	clock := authkit.NewSystemClock()
	stores := newBackends(logger)
	defer stores.Close()
	store, storeErr := stores.openRevocationStore(command.Context(), storeURL, clock)
	if storeErr != nil {
		return storeErr
	}

	removed, pruneErr := authkit.NewRevocations(store, clock).Prune(command.Context())
	if pruneErr != nil {
		logger.Error("revocation prune failed",
			zap.String("code", "revocation.prune.failed"),
			zap.Error(pruneErr))
		return pruneErr
	}
	logger.Info("revocation prune completed",
		zap.String("code", "revocation.prune.completed"),
		zap.Int64("removed", removed))
	fmt.Fprintf(command.OutOrStdout(), "removed %d expired revocation records\n", removed)
	return nil
}
