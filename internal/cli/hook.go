package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/config"
	"github.com/lazypower/chrysalis/internal/hooks"
	"github.com/lazypower/chrysalis/internal/logging"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle conversation hook events",
}

// hookEvents maps subcommands to the events the hook handler understands.
var hookEvents = []struct {
	name, short string
}{
	{"start", "Handle SessionStart: inject identity context"},
	{"submit", "Handle UserPromptSubmit: surface a past message when relevant"},
	{"stop", "Handle Stop: report the turn for boundary detection"},
	{"end", "Handle SessionEnd: clear turn state"},
}

func init() {
	for _, ev := range hookEvents {
		event := ev.name
		hookCmd.AddCommand(&cobra.Command{
			Use:   event,
			Short: ev.short,
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				runHook(cmd.Context(), event)
			},
		})
	}
}

// runHook never returns an error: hooks must not break the conversation.
func runHook(ctx context.Context, event string) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.Default()
	}
	log, lerr := logging.New(cfg.Log.Level, cfg.Log.Env)
	if lerr != nil {
		log = zap.NewNop()
	}
	defer log.Sync()
	log = log.Named("hook")
	if err != nil {
		log.Warn("config invalid, using defaults", zap.Error(err))
	}

	baseURL := os.Getenv("CHRYSALIS_URL")
	if baseURL == "" {
		baseURL = cfg.BaseURL()
	}
	timeout := time.Duration(cfg.Hooks.Timeout) * time.Second

	state, err := hooks.DefaultStateDir()
	if err != nil {
		log.Warn("turn state unavailable", zap.Error(err))
		state = hooks.StateDir{Dir: os.TempDir()}
	}

	h := &hooks.Handler{
		Client: hooks.NewClient(baseURL, owner(cfg), timeout),
		State:  state,
		Log:    log,
		Out:    os.Stdout,
	}
	h.Handle(ctx, event, os.Stdin)
}
