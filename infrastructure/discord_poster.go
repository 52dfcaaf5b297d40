package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"poolbet/domain/entities"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const (
	colorSettled = 0x2ECC71
	colorNoWin   = 0x95A5A6
)

// DiscordResultPoster announces settled pools in a Discord channel
type DiscordResultPoster struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordResultPoster creates a poster using a bot token. Only the REST API is
// used, so no gateway connection is opened.
func NewDiscordResultPoster(token, channelID string) (*DiscordResultPoster, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordResultPoster{session: session, channelID: channelID}, nil
}

// PostSettlement sends the winners embed for a settled pool
func (p *DiscordResultPoster) PostSettlement(ctx context.Context, pool *entities.Pool, winners []*entities.WinnerEntry) error {
	embed := BuildSettlementEmbed(pool, winners)

	_, err := p.session.ChannelMessageSendComplex(p.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post settlement for pool %d: %w", pool.ID, err)
	}

	log.WithFields(log.Fields{
		"pool_id":    pool.ID,
		"channel_id": p.channelID,
		"tiers":      len(winners),
	}).Info("Posted pool settlement to Discord")
	return nil
}

// BuildSettlementEmbed renders the winner tiers of a pool
func BuildSettlementEmbed(pool *entities.Pool, winners []*entities.WinnerEntry) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s settled", pool.Name),
		Description: fmt.Sprintf("%s pool, %d players, %d entry", pool.Variant, pool.CurrentPlayers, pool.EntryFee),
		Color:       colorSettled,
	}

	if len(winners) == 0 {
		embed.Color = colorNoWin
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "No winners",
			Value: "Nobody locked in a number this round.",
		}}
		return embed
	}

	for _, w := range winners {
		players := strings.Join(w.PlayerIDs, ", ")
		if len(w.PlayerIDs) > 5 {
			players = fmt.Sprintf("%s and %d more", strings.Join(w.PlayerIDs[:5], ", "), len(w.PlayerIDs)-5)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d: number %d", w.Position, w.Number),
			Value: fmt.Sprintf("%d each (%d total)\n%s", w.PrizePerPlayer, w.Prize, players),
		})
	}
	return embed
}

// NoopResultPoster is used when no Discord token is configured
type NoopResultPoster struct{}

// NewNoopResultPoster creates a poster that only logs
func NewNoopResultPoster() *NoopResultPoster {
	return &NoopResultPoster{}
}

// PostSettlement logs the settlement at debug level
func (NoopResultPoster) PostSettlement(ctx context.Context, pool *entities.Pool, winners []*entities.WinnerEntry) error {
	log.WithFields(log.Fields{
		"pool_id": pool.ID,
		"tiers":   len(winners),
	}).Debug("Settlement announcement skipped, no poster configured")
	return nil
}
