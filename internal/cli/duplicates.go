package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"memories-social/internal/models"
	"memories-social/internal/storage"
)

// DirectAnomaly is a user pair whose direct conversations break the
// one-conversation-per-pair rule.
type DirectAnomaly struct {
	PairKey         string   `json:"pairKey"`
	CanonicalID     string   `json:"canonicalId"`
	ConversationIDs []string `json:"conversationIds"`
}

// FindDirectAnomalies groups direct conversations by participant pair and
// returns pairs with more than one conversation, or whose only conversation
// does not carry the pair's derived id. Conversations without exactly two
// participants are reported under their own id.
func FindDirectAnomalies(conversations []models.Conversation) []DirectAnomaly {
	byPair := make(map[string][]string)
	canonical := make(map[string]string)
	for _, c := range conversations {
		ids := c.ParticipantIDs()
		if len(ids) != 2 {
			key := "malformed:" + c.ID
			byPair[key] = append(byPair[key], c.ID)
			continue
		}
		key := models.PairKey(ids[0], ids[1])
		byPair[key] = append(byPair[key], c.ID)
		canonical[key] = models.DirectConversationID(ids[0], ids[1])
	}

	var anomalies []DirectAnomaly
	for key, ids := range byPair {
		want, ok := canonical[key]
		if ok && len(ids) == 1 && ids[0] == want {
			continue
		}
		anomalies = append(anomalies, DirectAnomaly{PairKey: key, CanonicalID: want, ConversationIDs: ids})
	}
	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].PairKey < anomalies[j].PairKey })
	return anomalies
}

// NewFindDuplicateDirectCommand creates the find-duplicate-direct command.
func NewFindDuplicateDirectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find-duplicate-direct",
		Short: "Report user pairs with more than one direct conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open()
			if err != nil {
				return err
			}

			direct, err := storage.NewGormConversationRepository(db).ListDirect(cmd.Context())
			if err != nil {
				return err
			}
			anomalies := FindDirectAnomalies(direct)

			return rootOpts.emit(cmd.OutOrStdout(), anomalies, func(w io.Writer) {
				if len(anomalies) == 0 {
					fmt.Fprintf(w, "checked %d direct conversations, no duplicates\n", len(direct))
					return
				}
				for _, a := range anomalies {
					fmt.Fprintf(w, "%s: %v (expected %s)\n", a.PairKey, a.ConversationIDs, a.CanonicalID)
				}
			})
		},
	}
}
