package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/solatis/rulelint/internal/core/auth"
	"github.com/solatis/rulelint/internal/core/config"
	"github.com/solatis/rulelint/internal/core/db"
)

var (
	apikeyName     string
	apikeySecretID string
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the gRPC service",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyListCmd, apikeyRevokeCmd)

	apikeyCreateCmd.Flags().StringVar(&apikeyName, "name", "", "label for the key")
	apikeyCreateCmd.Flags().StringVar(&apikeySecretID, "secret-id", "", "HMAC secret to bind the key to (default: lowest configured secret_id)")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID := apikeySecretID
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no HMAC secrets configured (set %s environment variable)", config.SecretEnvVar)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}

	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	authenticator := auth.NewAuthenticator(secrets, store.Queries(), logger)
	key, err := auth.GenerateAPIKey(secretID)
	if err != nil {
		return err
	}
	hash, err := authenticator.HashKey(key)
	if err != nil {
		return fmt.Errorf("secret %s: %w", secretID, err)
	}

	record := &db.APIKey{
		APIKeyID:  uuid.Must(uuid.NewV7()).String(),
		Name:      apikeyName,
		SecretID:  secretID,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.InsertAPIKey(ctx, record, hash); err != nil {
		return err
	}

	logger.Info("api key created", "api_key_id", record.APIKeyID, "name", record.Name, "secret_id", secretID)
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSECRET\tCREATED\tLAST USED\tSTATUS")
	for _, k := range keys {
		lastUsed, state := "-", "active"
		if k.LastUsedAt.Valid {
			lastUsed = k.LastUsedAt.Time.UTC().Format(time.RFC3339)
		}
		if k.RevokedAt.Valid {
			state = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.APIKeyID, k.Name, k.SecretID, k.CreatedAt.UTC().Format(time.RFC3339), lastUsed, state)
	}
	return w.Flush()
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := store.RevokeAPIKey(ctx, args[0], time.Now()); err != nil {
		return err
	}
	logger.Info("api key revoked", "api_key_id", args[0])
	return nil
}
