package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/chrysalis/internal/config"
	"github.com/lazypower/chrysalis/internal/store"
)

var (
	configPath string
	ownerFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "chrysalis",
	Short: "Temporal identity chain for conversational agents",
	Long: "Chrysalis keeps a versioned chain of who someone has been, detects when a\n" +
		"conversation marks a boundary, and carries messages between past and future selves.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.chrysalis/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "chain owner (default from config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(continuityCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(confirmCmd)
}

// loadConfig reads the config file named by --config or the default path.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

// owner resolves the chain owner from the flag or config.
func owner(cfg config.Config) string {
	if ownerFlag != "" {
		return ownerFlag
	}
	return cfg.Hooks.Owner
}

// openDB opens the configured database for offline commands.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
