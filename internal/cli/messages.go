package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/identity"
)

// --- messages command ---

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List messages waiting for a future self",
	Args:  cobra.NoArgs,
	RunE:  runMessages,
}

func runMessages(cmd *cobra.Command, args []string) error {
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	msgs, err := eng.PendingMessages(cmd.Context(), owner(cfg))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages waiting.")
		return nil
	}
	for _, m := range msgs {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(out, "%s  %-17s %s  written %s\n", m.ID[:8], m.Type, title, humanize.Time(m.CreatedAt))
		if len(m.RelevanceTags) > 0 {
			fmt.Fprintf(out, "          tags: %s\n", strings.Join(m.RelevanceTags, ", "))
		}
	}
	return nil
}

// --- send command ---

var (
	sendType  string
	sendTitle string
	sendTags  []string
	sendTo    string
)

var sendCmd = &cobra.Command{
	Use:   "send [content]",
	Short: "Leave a message for a future self",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendType, "type", "t", string(identity.MessageLetter), "letter, symbolic_state, future_projection or wisdom_seed")
	sendCmd.Flags().StringVar(&sendTitle, "title", "", "message title")
	sendCmd.Flags().StringSliceVar(&sendTags, "tags", nil, "relevance tags")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "address a specific node id")
}

func runSend(cmd *cobra.Command, args []string) error {
	eng, cfg, closeFn, err := offlineEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	msg, err := eng.RecordFutureMessage(cmd.Context(), owner(cfg), strings.Join(args, " "), engine.MessageMeta{
		Type:          identity.MessageType(sendType),
		Title:         sendTitle,
		ToNodeID:      sendTo,
		RelevanceTags: sendTags,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s %s\n", msg.Type, msg.ID)
	return nil
}
