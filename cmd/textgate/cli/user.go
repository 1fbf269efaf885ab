package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create, list, and modify the accounts that can sign in and own API keys.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserRoleCmd())
	cmd.AddCommand(newUserActivateCmd())
	cmd.AddCommand(newUserDeactivateCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		fullName string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Example: `  textgate user create --username alice --email alice@example.com
  textgate user create --username ci --email ci@example.com --role read_only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(username, email, password, fullName, role)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&fullName, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "Role: admin, developer, user, or read_only (default user)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(username, email, password, fullName, role string) error {
	if role != "" && !model.Role(role).Valid() {
		return fmt.Errorf("invalid role %q (use admin, developer, user, or read_only)", role)
	}

	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)
	}

	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	authSvc := service.NewAuthService(st, auth.NewTokenIssuer("unused", 0), cfg.Auth.BcryptCost)
	user, err := authSvc.Register(ctx, service.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	// Registration always yields the default role; apply an override after.
	if role != "" && model.Role(role) != user.Role {
		users := service.NewUserService(st, cfg.Auth.BcryptCost)
		if _, err := users.Update(ctx, user.ID, service.UserUpdate{Role: &role}, true); err != nil {
			return fmt.Errorf("set role: %w", err)
		}
		user.Role = model.Role(role)
	}

	fmt.Printf("Created user %q (role %s)\n", user.Username, user.Role)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
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

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users yet. Use 'textgate user create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-28s %-12s %-8s\n", "ID", "USERNAME", "EMAIL", "ROLE", "ACTIVE")
	fmt.Printf("%-6s %-20s %-28s %-12s %-8s\n", "--", "--------", "-----", "----", "------")
	for _, u := range users {
		active := "yes"
		if !u.IsActive {
			active = "no"
		}
		fmt.Printf("%-6d %-20s %-28s %-12s %-8s\n", u.ID, u.Username, u.Email, u.Role, active)
	}

	return nil
}

// ---------- user role ----------

func newUserRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role <username> <role>",
		Short: "Change a user's role",
		Long:  "Assign one of the roles admin, developer, user, or read_only to an account.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserRole(args[0], args[1])
		},
	}

	return cmd
}

func runUserRole(login, role string) error {
	if !model.Role(role).Valid() {
		return fmt.Errorf("invalid role %q (use admin, developer, user, or read_only)", role)
	}

	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	user, err := findUser(ctx, st, login)
	if err != nil {
		return err
	}

	users := service.NewUserService(st, cfg.Auth.BcryptCost)
	if _, err := users.Update(ctx, user.ID, service.UserUpdate{Role: &role}, true); err != nil {
		return fmt.Errorf("set role: %w", err)
	}

	fmt.Printf("User %q is now %s\n", user.Username, role)
	return nil
}

// ---------- user activate / deactivate ----------

func newUserActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <username>",
		Short: "Reactivate a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setUserActive(args[0], true)
		},
	}

	return cmd
}

func newUserDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <username>",
		Short: "Deactivate a user account",
		Long:  "Disable sign-in for an account. Its API keys stop authenticating as well.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setUserActive(args[0], false)
		},
	}

	return cmd
}

func setUserActive(login string, active bool) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	user, err := findUser(ctx, st, login)
	if err != nil {
		return err
	}

	users := service.NewUserService(st, cfg.Auth.BcryptCost)
	if _, err := users.Update(ctx, user.ID, service.UserUpdate{IsActive: &active}, true); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if active {
		fmt.Printf("Activated user %q\n", user.Username)
	} else {
		fmt.Printf("Deactivated user %q\n", user.Username)
	}
	return nil
}
