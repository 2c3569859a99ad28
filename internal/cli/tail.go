package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/feedline/feedline/internal/db"
	"github.com/feedline/feedline/internal/events"
	"github.com/feedline/feedline/internal/feed"
	"github.com/feedline/feedline/internal/tui"
)

func init() {
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail <conversation-id>",
	Short: "Open a conversation feed in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTail(cmd.Context(), args[0])
	},
}

func runTail(ctx context.Context, conversationID string) error {
	database, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	messages := db.NewMessageRepository(database)
	publisher := events.NewPublisher(events.WithBuffer(cfg.Feed.EventBuffer))
	defer publisher.Close()

	backend := feed.Backend{
		Querier:    messages,
		Writer:     messages,
		ReadMarker: messages,
		Profiles:   db.NewProfileRepository(database),
		Reactions:  db.NewReactionRepository(database),
		Events:     publisher,
	}
	engineCfg := feed.Config{
		PageSize:          cfg.Feed.PageSize,
		FetchCooldown:     cfg.Feed.FetchCooldown,
		ReadFlushDebounce: cfg.Feed.ReadFlushDebounce,
		JumpContextRadius: cfg.Feed.JumpContextRadius,
		AnchorJitterPx:    cfg.Feed.AnchorJitterPx,
	}

	viewport := tui.NewViewport()
	controller, err := feed.NewController(conversationID, viewerID(), backend, engineCfg,
		feed.WithViewport(viewport))
	if err != nil {
		return err
	}
	if err := controller.Open(ctx); err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}
	defer controller.Close()

	model := tui.NewModel(controller, viewport, tui.Config{
		ConversationID: conversationID,
		Viewer:         viewerID(),
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}
