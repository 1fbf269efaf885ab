package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/textgate/textgate/internal/config"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TEXTGATE_DATA_DIR env var, or ~/.textgate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TEXTGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.textgate"
}

// loadConfig loads the YAML config file, falling back to defaults when none
// exists. The --config flag wins; otherwise ./textgate.yaml and
// ~/.textgate/textgate.yaml are tried in order.
func loadConfig() *config.YAMLConfig {
	candidates := []string{}
	if cfgFile != "" {
		candidates = append(candidates, cfgFile)
	} else {
		candidates = append(candidates, "textgate.yaml")
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".textgate", "textgate.yaml"))
		}
	}
	for _, path := range candidates {
		if cfg, err := config.LoadYAMLConfig(path); err == nil {
			return cfg
		}
	}
	return config.DefaultYAMLConfig()
}

// openStore opens the entity store per the loaded config, honoring the
// --data-dir flag for the SQLite driver.
func openStore(cfg *config.YAMLConfig) (*store.Store, error) {
	driver := cfg.Store.Driver
	dsn := cfg.Store.DSN
	if driver == "" || driver == "sqlite" {
		dsn = cfg.Store.DataDir
		if dataDir != "" || dsn == "" {
			dsn = resolveDataDir()
		}
	}
	return store.New(driver, dsn)
}

// jwtSecret resolves the signing secret from config or environment. Serve
// refuses to start without one; CLI commands that never mint tokens pass
// allowEmpty.
func jwtSecret(cfg *config.YAMLConfig, allowEmpty bool) (string, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = viper.GetString("auth.jwt_secret")
	}
	if secret == "" && !allowEmpty {
		return "", fmt.Errorf("no JWT secret configured: set auth.jwt_secret in textgate.yaml or TEXTGATE_AUTH_JWT_SECRET")
	}
	return secret, nil
}

// parseDuration parses a config duration string, returning fallback for an
// empty or malformed value.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// findUser resolves a username or email to a user record.
func findUser(ctx context.Context, st *store.Store, login string) (*model.User, error) {
	user, err := st.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("user %q not found", login)
	}
	return user, nil
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "textgate.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "textgate.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
