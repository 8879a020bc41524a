package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/chrysalis/internal/config"
	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/identity"
	"github.com/lazypower/chrysalis/internal/logging"
)

// offlineEngine opens the database directly for commands that don't need
// the server.
func offlineEngine() (*engine.Engine, config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		return nil, cfg, nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, cfg, nil, err
	}
	eng := engine.New(db, log, nil)
	eng.SetOptions(engineOptions(cfg))
	closeFn := func() {
		db.Close()
		log.Sync()
	}
	return eng, cfg, closeFn, nil
}

// --- seed command ---

var (
	seedCategory string
	seedPhase    string
	seedRoles    []string
	seedMoods    []string
	seedEssence  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Start an owner's chain with a first node",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedCategory, "category", "c", "", "category: earth, water, fire, air or ether")
	seedCmd.Flags().StringVar(&seedPhase, "phase", "", "phase label (default derived from category)")
	seedCmd.Flags().StringSliceVar(&seedRoles, "roles", nil, "role tags")
	seedCmd.Flags().StringSliceVar(&seedMoods, "moods", nil, "dominant moods")
	seedCmd.Flags().StringVar(&seedEssence, "essence", "", "essence summary")
	seedCmd.MarkFlagRequired("category")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cat, err := identity.ParseCategory(seedCategory)
	if err != nil {
		return err
	}
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	node, err := eng.SeedNode(cmd.Context(), identity.NodeInput{
		OwnerID:        owner(cfg),
		PhaseLabel:     seedPhase,
		Category:       cat,
		RoleTags:       seedRoles,
		DominantMoods:  seedMoods,
		EssenceSummary: seedEssence,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s's chain: %s [%s]\n", node.OwnerID, node.PhaseLabel, node.Category)
	return nil
}

// --- chain command ---

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show the identity chain, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runChain,
}

func runChain(cmd *cobra.Command, args []string) error {
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	nodes, err := eng.Chain(cmd.Context(), owner(cfg))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(nodes) == 0 {
		fmt.Fprintf(out, "No chain for %s yet. Start one with `chrysalis seed`.\n", owner(cfg))
		return nil
	}
	fmt.Fprintf(out, "## %s\n\n", owner(cfg))
	for _, n := range nodes {
		printNode(out, n)
	}
	return nil
}

func printNode(w io.Writer, n identity.Node) {
	marker := " "
	if n.IsCurrent() {
		marker = "*"
	}
	fmt.Fprintf(w, "%s %d. %s [%s]  continuity %.2f  %s\n",
		marker, n.Seq, n.PhaseLabel, n.Category, n.ContinuityScore, humanize.Time(n.CreatedAt))
	if len(n.RoleTags) > 0 {
		fmt.Fprintf(w, "     roles: %s\n", strings.Join(n.RoleTags, ", "))
	}
	if len(n.DominantMoods) > 0 {
		fmt.Fprintf(w, "     moods: %s\n", strings.Join(n.DominantMoods, ", "))
	}
	if n.EssenceSummary != "" {
		fmt.Fprintf(w, "     %s\n", n.EssenceSummary)
	}
}

// --- continuity command ---

var continuityCmd = &cobra.Command{
	Use:   "continuity",
	Short: "Show chain continuity metrics",
	Args:  cobra.NoArgs,
	RunE:  runContinuity,
}

func runContinuity(cmd *cobra.Command, args []string) error {
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	m, err := eng.Continuity(cmd.Context(), owner(cfg))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nodes:                %d\n", m.NodeCount)
	fmt.Fprintf(out, "transitions:          %d\n", m.TransitionCount)
	fmt.Fprintf(out, "reinterpretations:    %d\n", m.ReinterpretationCount)
	fmt.Fprintf(out, "average continuity:   %.2f\n", m.AverageContinuity)
	fmt.Fprintf(out, "chain coherence:      %.2f\n", m.ChainCoherence)
	fmt.Fprintf(out, "integration strength: %.2f\n", m.IntegrationStrength)
	fmt.Fprintf(out, "growth velocity:      %.2f\n", m.GrowthVelocity)
	if m.EssenceSimilarity != nil {
		fmt.Fprintf(out, "essence similarity:   %.2f\n", *m.EssenceSimilarity)
	}
	return nil
}
