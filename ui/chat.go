package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"veritas-client/orchestrator"
	"veritas-client/utils"
)

func (a *App) chatCommand() *cobra.Command {
	var conversationID, message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the verification assistant",
		Long: `Without --message an interactive session starts. Ctrl+C stops the reply
being streamed; /new starts a new conversation and /exit leaves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.apply(conversationMsg(conversationID))
			if message != "" {
				_, err := a.chatTurn(cmd, message)
				return err
			}
			return a.chatLoop(cmd)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}

// chatLoop reads messages line by line until EOF or /exit
func (a *App) chatLoop(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprintln(out, mutedStyle.Render("Type a message. /new starts over, /exit quits."))
	for {
		fmt.Fprint(out, titleStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			a.apply(conversationMsg(""))
			fmt.Fprintln(out, mutedStyle.Render("New conversation."))
			continue
		}

		if _, err := a.chatTurn(cmd, line); err != nil {
			if cmd.Context().Err() != nil {
				return err
			}
			var ae *orchestrator.AnalysisError
			if !errors.As(err, &ae) {
				a.renderer.Error(cmd.ErrOrStderr(), err)
			}
			// The session goes on after a failed turn
			continue
		}
	}
}

// chatTurn streams one reply to the terminal. An interrupt while the reply
// streams stops it; the partial text is kept.
func (a *App) chatTurn(cmd *cobra.Command, message string) (*orchestrator.ChatReply, error) {
	out := cmd.OutOrStdout()

	done := make(chan struct{})
	defer close(done)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	utils.SafeGo(a.logger, "chat interrupt", func() {
		select {
		case <-sig:
			a.orch.Abort()
		case <-done:
		}
	})

	fmt.Fprint(out, titleStyle.Render("Veritas: "))
	w := &deltaWriter{w: out}
	reply, err := a.orch.Chat(cmd.Context(), orchestrator.ChatInput{
		Message:        message,
		ConversationID: a.State().ConversationID,
	}, w.update)
	fmt.Fprintln(out)

	if err != nil {
		return reply, a.report(cmd, err)
	}
	if reply.Terminal == orchestrator.ReplyStopped {
		fmt.Fprintln(out, mutedStyle.Render("(stopped)"))
	}
	a.apply(conversationMsg(reply.ConversationID))
	a.logger.Debug("Chat turn in %s via %s", reply.ConversationID, reply.Transport)
	return reply, nil
}

// deltaWriter prints only the part of the cumulative text not printed yet
type deltaWriter struct {
	w       io.Writer
	printed string
}

func (d *deltaWriter) update(text string) {
	if strings.HasPrefix(text, d.printed) {
		fmt.Fprint(d.w, text[len(d.printed):])
	} else {
		fmt.Fprint(d.w, "\n"+text)
	}
	d.printed = text
}
