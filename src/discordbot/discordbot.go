// Package discordbot announces council outcomes to a Discord channel. The
// announcer is optional: without a token every method is a no-op.
package discordbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stake-plus/agora/src/types"
)

// Announcer posts vote results as embeds. A nil Announcer is a valid,
// disabled one.
type Announcer struct {
	session   *discordgo.Session
	channelID string
}

// New builds an announcer for the given channel. An empty token disables
// announcements and returns a nil Announcer without error.
func New(token, channelID string) (*Announcer, error) {
	if token == "" || channelID == "" {
		return nil, nil
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.AddHandler(func(s *discordgo.Session, event *discordgo.Ready) {
		log.Printf("discordbot: logged in as %s", event.User.Username)
	})
	return &Announcer{session: dg, channelID: channelID}, nil
}

func (a *Announcer) Name() string { return "discord" }

func (a *Announcer) Start(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.session.Open()
}

func (a *Announcer) Stop(ctx context.Context) {
	if a == nil {
		return
	}
	if err := a.session.Close(); err != nil {
		log.Printf("discordbot: close: %v", err)
	}
}

// AnnounceVote posts one deliberation outcome. Failures are logged and
// swallowed: Discord being down must never fail a vote.
func (a *Announcer) AnnounceVote(result *types.VoteResult) {
	if a == nil || result == nil {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Council decision",
		Description: truncate(result.Response, 2000),
		Color:       0x0099ff,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Query",
				Value: truncate(result.Prompt, 1024),
			},
			{
				Name:  "Proposals",
				Value: fmt.Sprintf("%d submitted, %d abstentions", len(result.Proposals), countAbstentions(result.Votes)),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Agora council"},
	}
	if result.TieBreak != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Tie break",
			Value: fmt.Sprintf("%d proposals tied; settled by arbitration", len(result.TieBreak.TiedProposals)),
		})
	}
	if removed := removedCount(result.Evictions); removed > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Membership",
			Value: fmt.Sprintf("%d member(s) removed by supermajority and replaced from the pool", removed),
		})
	}

	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		log.Printf("discordbot: announce failed: %v", err)
	}
}

func countAbstentions(votes []types.Vote) int {
	n := 0
	for _, v := range votes {
		if v.Abstained {
			n++
		}
	}
	return n
}

func removedCount(outcomes []types.EvictionOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Evicted {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(empty)"
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
