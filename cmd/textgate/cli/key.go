package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/textgate/textgate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys used to authenticate against the gateway.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		user     string
		name     string
		perHour  int64
		perDay   int64
		perMonth int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key for a user. The raw credential is shown once and cannot be retrieved again.",
		Example: `  textgate key create --user alice --name "CI pipeline"
  textgate key create --user alice --name laptop --per-hour 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(user, name, perHour, perDay, perMonth)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username or email of the key owner (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().Int64Var(&perHour, "per-hour", 0, "Hourly request quota (default 100)")
	cmd.Flags().Int64Var(&perDay, "per-day", 0, "Daily request quota (default 1000)")
	cmd.Flags().Int64Var(&perMonth, "per-month", 0, "Monthly request quota (default 10000)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(login, name string, perHour, perDay, perMonth int64) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	owner, err := findUser(ctx, st, login)
	if err != nil {
		return err
	}

	keys := service.NewAPIKeyService(st)
	key, credential, err := keys.Create(ctx, owner, service.KeyCreateInput{
		Name:              name,
		RateLimitPerHour:  perHour,
		RateLimitPerDay:   perDay,
		RateLimitPerMonth: perMonth,
	})
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", credential)
	fmt.Printf("  Owner:  %s\n", owner.Username)
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  Quota:  %d/hour, %d/day, %d/month\n",
		key.RateLimitPerHour, key.RateLimitPerDay, key.RateLimitPerMonth)
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		user       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List a user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(user, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username or email of the key owner (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyList(login string, jsonOutput bool) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	owner, err := findUser(ctx, st, login)
	if err != nil {
		return err
	}

	keys, err := service.NewAPIKeyService(st).List(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Printf("No API keys for %q. Use 'textgate key create' to create one.\n", owner.Username)
		return nil
	}

	fmt.Printf("%-6s %-24s %-30s %-8s %-10s\n", "ID", "NAME", "KEY ID", "ACTIVE", "USED/HOUR")
	fmt.Printf("%-6s %-24s %-30s %-8s %-10s\n", "--", "----", "------", "------", "---------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		fmt.Printf("%-6d %-24s %-30s %-8s %d/%d\n",
			k.ID, k.Name, k.KeyID, active, k.UsageCountHour, k.RateLimitPerHour)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key by its key ID",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(user, args[0])
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username or email of the key owner (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyRevoke(login, keyID string) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	owner, err := findUser(ctx, st, login)
	if err != nil {
		return err
	}

	keySvc := service.NewAPIKeyService(st)
	keys, err := keySvc.List(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	for _, k := range keys {
		if k.KeyID != keyID {
			continue
		}
		inactive := false
		if _, err := keySvc.Update(ctx, owner.ID, k.ID, service.KeyUpdate{IsActive: &inactive}); err != nil {
			return fmt.Errorf("revoke api key: %w", err)
		}
		fmt.Printf("Revoked API key %q (%s)\n", k.Name, k.KeyID)
		return nil
	}

	return fmt.Errorf("no API key with key ID %q for user %q", keyID, owner.Username)
}
