package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/textgate/textgate/internal/service"
)

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect usage analytics",
		Long:  "Summarize or list the request logs recorded for a user's gateway traffic.",
	}

	cmd.AddCommand(newUsageStatsCmd())
	cmd.AddCommand(newUsageRecentCmd())

	return cmd
}

// ---------- usage stats ----------

func newUsageStatsCmd() *cobra.Command {
	var (
		user  string
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated usage statistics for a user",
		Example: `  textgate usage stats --user alice
  textgate usage stats --user alice --start 2026-08-01T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsageStats(user, start, end)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username or email (required)")
	cmd.Flags().StringVar(&start, "start", "", "Period start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "Period end (RFC 3339)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runUsageStats(login, startStr, endStr string) error {
	start, err := parseTimeFlag(startStr)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := parseTimeFlag(endStr)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

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

	usage := service.NewUsageService(st, slog.Default())
	stats, err := usage.Stats(ctx, owner.ID, start, end)
	if err != nil {
		return fmt.Errorf("usage stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// ---------- usage recent ----------

func newUsageRecentCmd() *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List a user's most recent requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsageRecent(user, limit)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username or email (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runUsageRecent(login string, limit int) error {
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

	usage := service.NewUsageService(st, slog.Default())
	logs, err := usage.Recent(ctx, owner.ID, limit)
	if err != nil {
		return fmt.Errorf("recent usage: %w", err)
	}

	if len(logs) == 0 {
		fmt.Printf("No requests recorded for %q.\n", owner.Username)
		return nil
	}

	fmt.Printf("%-22s %-7s %-20s %-7s %-14s %-8s\n", "TIME", "METHOD", "ENDPOINT", "STATUS", "MODEL", "TOKENS")
	fmt.Printf("%-22s %-7s %-20s %-7s %-14s %-8s\n", "----", "------", "--------", "------", "-----", "------")
	for _, l := range logs {
		modelName := l.Model
		if modelName == "" {
			modelName = "-"
		}
		fmt.Printf("%-22s %-7s %-20s %-7d %-14s %d\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"), l.Method, l.Endpoint,
			l.StatusCode, modelName, l.TotalTokens)
	}

	return nil
}

// parseTimeFlag parses an optional RFC 3339 timestamp flag.
func parseTimeFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
