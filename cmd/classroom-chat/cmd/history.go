package cmd

import (
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/nfrund/classroom/internal/app"
	"github.com/nfrund/classroom/internal/domain"
	"github.com/nfrund/classroom/internal/rooms"
	"github.com/nfrund/classroom/internal/timeline"
)

var historyRoom string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a room's message history grouped by day",
	Long: `Fetch a room's history from the room API and print it oldest first,
grouped under Today, Yesterday or the date.

Examples:
  classroom-chat history --room algebra-1
  CHAT_LANG=fr classroom-chat history --room algebra-1`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyRoom, "room", "", "room id")
	_ = historyCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	injector := app.NewClientInjector(cfg, logger, "")
	defer injector.Shutdown()

	client, err := do.Invoke[*rooms.Client](injector)
	if err != nil {
		return err
	}
	room, err := client.GetRoom(cmd.Context(), historyRoom)
	if err != nil {
		return err
	}
	msgs, err := client.ListMessages(cmd.Context(), historyRoom)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	loc := cfg.Location()
	fmt.Fprintf(out, "== %s ==\n", room.Name)
	for _, g := range timeline.Group(normalized(msgs), time.Now(), timeline.WithLocation(loc), timeline.WithLanguage(cfg.Language)) {
		fmt.Fprintf(out, "--- %s ---\n", g.Label)
		for _, m := range g.Items {
			stamp := "--:--"
			if !m.SentAt.IsZero() {
				stamp = m.SentAt.In(loc).Format("15:04")
			}
			fmt.Fprintf(out, "%s %s: %s\n", stamp, m.User.DisplayName(), m.Content)
		}
	}
	return nil
}

func normalized(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Normalize()
	}
	return out
}
