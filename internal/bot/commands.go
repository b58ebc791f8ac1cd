package bot

import (
	"fmt"

	"github.com/attribot/attribot/internal/config"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
)

// Option names shared by all attribution commands.
const (
	optExecutionID     = "execution_id"
	optMetadata        = "metadata"
	optTranscriptionID = "transcription_id"
)

// buildCommands translates the routes config into Discord application
// commands. Every route exposes the same three options.
func buildCommands(routes *config.RoutesFile) []*discordgo.ApplicationCommand {
	commands := make([]*discordgo.ApplicationCommand, 0, len(routes.Routes))
	for _, route := range routes.Routes {
		commands = append(commands, &discordgo.ApplicationCommand{
			Name:        route.Name,
			Description: route.Description,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optExecutionID,
					Description: "The n8n execution ID provided in the initial message.",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optMetadata,
					Description: "Speaker mapping, e.g. 'speaker_00:Alice,speaker_01:Bob'.",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optTranscriptionID,
					Description: "The transcription ID to associate with this metadata.",
					Required:    true,
				},
			},
		})
	}
	return commands
}

// syncCommands bulk-overwrites the application commands derived from the
// active routes. Guild registration fans out concurrently; global
// registration is a single call but can take up to an hour to propagate.
func (b *Bot) syncCommands() error {
	b.mu.RLock()
	routes := b.routes
	b.mu.RUnlock()
	if routes == nil {
		return fmt.Errorf("no routes configured")
	}

	commands := buildCommands(routes)
	appID := b.session.State.User.ID

	if len(b.cfg.GuildIDs) == 0 {
		synced, err := b.session.ApplicationCommandBulkOverwrite(appID, "", commands)
		if err != nil {
			return fmt.Errorf("overwrite global commands: %w", err)
		}
		b.logger.Info("Synced %d global command(s) (propagation can take up to an hour)", len(synced))
		return nil
	}

	var g errgroup.Group
	for _, guildID := range b.cfg.GuildIDs {
		g.Go(func() error {
			synced, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, commands)
			if err != nil {
				return fmt.Errorf("overwrite commands for guild %s: %w", guildID, err)
			}
			b.logger.Info("Synced %d command(s) to guild %s", len(synced), guildID)
			return nil
		})
	}
	return g.Wait()
}
