package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/feedline/feedline/internal/db"
	"github.com/feedline/feedline/internal/models"
)

var sendFrom string
var sendReplyTo string

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "author id (default: configured viewer)")
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "id of the item this message replies to")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <body>...",
	Short: "Append a message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd.Context(), args[0], strings.Join(args[1:], " "))
	},
}

func runSend(ctx context.Context, conversationID, body string) error {
	database, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	author := sendFrom
	if author == "" {
		author = viewerID()
	}

	messages := db.NewMessageRepository(database)
	stored, err := messages.InsertMessage(ctx, models.FeedItem{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		AuthorID:       author,
		CreatedAt:      time.Now().UTC(),
		Body:           body,
		ReplyToID:      sendReplyTo,
	})
	if err != nil {
		return err
	}
	fmt.Println(stored.ID)
	return nil
}
