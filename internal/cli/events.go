package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// --- events command ---

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent boundary events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 10, "number of events to show")
}

func runEvents(cmd *cobra.Command, args []string) error {
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	events, err := eng.DB.BoundaryEvents(cmd.Context(), owner(cfg), eventsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No boundaries detected yet.")
		return nil
	}
	for _, ev := range events {
		status := "awaiting confirmation"
		if ev.Confirmed() {
			status = "confirmed"
		}
		fmt.Fprintf(out, "%s  %-13s %.2f  %s  %s\n", ev.ID, ev.Kind, ev.Intensity, status, humanize.Time(ev.CreatedAt))
		if ev.PhaseTo != "" {
			fmt.Fprintf(out, "     toward %s\n", ev.PhaseTo)
		}
	}
	return nil
}

// --- confirm command ---

var confirmEssence string

var confirmCmd = &cobra.Command{
	Use:   "confirm <event-id>",
	Short: "Accept a detected boundary and append the node it proposed",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirm,
}

func init() {
	confirmCmd.Flags().StringVar(&confirmEssence, "essence", "", "essence summary for the new node")
}

func runConfirm(cmd *cobra.Command, args []string) error {
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	node, err := eng.ConfirmEvent(cmd.Context(), owner(cfg), args[0], confirmEssence)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stepped into %s [%s]\n", node.PhaseLabel, node.Category)
	return nil
}
