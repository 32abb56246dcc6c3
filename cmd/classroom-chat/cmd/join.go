package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/classroom/internal/app"
	"github.com/nfrund/classroom/internal/chat"
	"github.com/nfrund/classroom/internal/render"
)

var (
	joinRoom string
	joinUser string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and chat interactively",
	Long: `Join a chat room and keep it open in the terminal. The room is redrawn
after every change. Type a line to send it, or use a composer command:

  /react N emoji   toggle a reaction on message N
  /reply [N]       reply to message N, or clear the reply target
  /edit N [text]   edit message N locally, or restore it
  /typing          tell the room you are typing
  /quit            leave the room

Reactions, replies and edits stay on this terminal.

Examples:
  classroom-chat join --room algebra-1 --user s1`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinRoom, "room", "", "room id to join")
	joinCmd.Flags().StringVar(&joinUser, "user", "", "user id to chat as")
	_ = joinCmd.MarkFlagRequired("room")
	_ = joinCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	injector := app.NewClientInjector(cfg, logger, joinUser)
	defer injector.Shutdown()

	session, err := app.OpenSession(injector, joinRoom)
	if err != nil {
		return err
	}
	session.Start(ctx)

	out := cmd.OutOrStdout()
	opts := render.Options{Location: cfg.Location(), Language: cfg.Language}
	err = compose(ctx, session, cmd.InOrStdin(), out, opts)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if closeErr := session.Close(closeCtx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// compose redraws the session on every update and runs composer lines read
// from in until /quit, end of input or ctx ends.
func compose(ctx context.Context, s *chat.Session, in io.Reader, out io.Writer, opts render.Options) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	redraw := func() error {
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
		return render.Session(out, s.Snapshot(), time.Now(), opts)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-s.Updates():
			if !ok {
				return nil
			}
			if err := redraw(); err != nil {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			quit, err := c.apply(ctx, s)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}
