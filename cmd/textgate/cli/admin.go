package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
		Long:  "Create and list administrator accounts that can manage users and keys through the API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Example: `  textgate admin create --username admin --email admin@example.com
  textgate admin create --username admin --email admin@example.com --password 'S3cret!'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(username, email, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(username, email, password string) error {
	// Prompt for password if not provided
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	users := service.NewUserService(st, cfg.Auth.BcryptCost)
	created, err := users.EnsureAdmin(context.Background(), username, email, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	if !created {
		return fmt.Errorf("an admin account already exists")
	}

	fmt.Printf("Created admin account %q\n", username)
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(jsonOutput bool) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	type adminRow struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Active   bool   `json:"active"`
	}

	admins := []adminRow{}
	for _, u := range users {
		if u.Role == model.RoleAdmin {
			admins = append(admins, adminRow{Username: u.Username, Email: u.Email, Active: u.IsActive})
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(admins)
	}

	if len(admins) == 0 {
		fmt.Println("No admin accounts configured. Use 'textgate admin create' to create one.")
		return nil
	}

	fmt.Printf("%-24s %-30s %-8s\n", "USERNAME", "EMAIL", "ACTIVE")
	fmt.Printf("%-24s %-30s %-8s\n", "--------", "-----", "------")
	for _, a := range admins {
		active := "yes"
		if !a.Active {
			active = "no"
		}
		fmt.Printf("%-24s %-30s %-8s\n", a.Username, a.Email, active)
	}

	return nil
}
