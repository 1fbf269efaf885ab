package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/textgate/textgate/internal/config"
	"github.com/textgate/textgate/internal/store"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the textgate configuration file and runtime settings.

File settings (server, store, auth, upstream) live in textgate.yaml and are
read at startup. Runtime settings (such as telemetry.enabled) are stored in
the database and take effect on the next server start.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default textgate.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func runConfigInit(force bool) error {
	path := cfgFile
	if path == "" {
		path = "textgate.yaml"
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	cfg := loadConfig()

	// Never print secrets, even redacted ones hint at presence only.
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "<set>"
	}
	if cfg.Auth.Bootstrap.Password != "" {
		cfg.Auth.Bootstrap.Password = "<set>"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

// ---------- config get ----------

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Read a runtime setting from the store",
		Example: `  textgate config get telemetry.enabled
  textgate config get instance_id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func runConfigGet(name string) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	value, err := st.GetSetting(context.Background(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("setting %q is not set", name)
		}
		return fmt.Errorf("get setting: %w", err)
	}

	fmt.Println(value)
	return nil
}

// ---------- config set ----------

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Write a runtime setting to the store",
		Example: `  textgate config set telemetry.enabled false
  textgate config set telemetry.enabled true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func runConfigSet(name, value string) error {
	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SetSetting(context.Background(), name, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}

	fmt.Printf("Set %s = %s\n", name, value)
	return nil
}
