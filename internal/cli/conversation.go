package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"memories-social/internal/models"
	"memories-social/internal/storage"
)

type conversationReport struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

// NewShowConversationCommand creates the show-conversation command.
func NewShowConversationCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show-conversation <conversation-id>",
		Short: "Print a conversation, its participants and its first messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			convo, err := storage.NewGormConversationRepository(db).GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			messages, err := storage.NewGormMessageRepository(db).ListByConversation(ctx, convo.ID, limit)
			if err != nil {
				return err
			}

			report := conversationReport{Conversation: convo, Messages: messages}
			return rootOpts.emit(cmd.OutOrStdout(), report, func(w io.Writer) {
				kind := "direct"
				if convo.IsGroup {
					kind = "group " + convo.Name
				}
				fmt.Fprintf(w, "conversation %s (%s), created %s\n", convo.ID, kind, convo.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "participants: %v\n", convo.ParticipantIDs())
				for _, m := range messages {
					fmt.Fprintf(w, "  [%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05.000000"), m.SenderID, m.Content)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "messages", 20, "number of messages to print (0 for all)")
	return cmd
}

// NewListParticipantsCommand creates the list-participants command.
func NewListParticipantsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-participants <conversation-id>",
		Short: "List the members of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			participants, err := storage.NewGormConversationRepository(db).GetParticipants(ctx, args[0])
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(participants))
			for _, p := range participants {
				ids = append(ids, p.UserID)
			}
			users, err := storage.NewGormUserRepository(db).GetMultipleBasicInfoByIDs(ctx, ids)
			if err != nil {
				return err
			}

			return rootOpts.emit(cmd.OutOrStdout(), users, func(w io.Writer) {
				if len(users) == 0 {
					fmt.Fprintln(w, "no participants")
					return
				}
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Username, u.Nickname)
				}
			})
		},
	}
}
