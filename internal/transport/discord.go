package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// ChannelDiscord is the Discord chat channel: direct messages and
// guild-mentions both start a conversation, handled by a single
// MessageCreate handler over a standard New/Run/Close gateway session
// lifecycle.
type ChannelDiscord struct {
	session *discordgo.Session
	act     ActFunc
	logger  *slog.Logger

	mu        sync.Mutex
	channelOf map[string]string // author ID -> Discord channel ID to reply on
}

// NewChannelDiscord creates a ChannelDiscord, opens the gateway connection,
// and registers the message handler. cfg.TokenEnv must name a set
// environment variable holding the bot token.
func NewChannelDiscord(cfg config.DiscordConfig, act ActFunc, logger *slog.Logger) (*ChannelDiscord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("transport: discord: environment variable %q is not set", cfg.TokenEnv)
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("transport: discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &ChannelDiscord{
		session:   session,
		act:       act,
		logger:    logger,
		channelOf: make(map[string]string),
	}
	session.AddHandler(c.handleMessageCreate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("transport: discord: open session: %w", err)
	}
	return c, nil
}

func (c *ChannelDiscord) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	c.mu.Lock()
	c.channelOf[m.Author.ID] = m.ChannelID
	c.mu.Unlock()

	isDM := m.GuildID == ""
	isMentioned := mentionsUser(m.Mentions, s.State.User)

	id := chattypes.UserID{Channel: chattypes.ChannelDiscord, ExternalID: m.Author.ID}.String()
	text := Normalize(m.Content)
	c.act(context.Background(), id, chattypes.NewMessage{
		Text:              text,
		StartConversation: isDM || isMentioned,
	})
}

func mentionsUser(mentions []*discordgo.User, self *discordgo.User) bool {
	if self == nil {
		return false
	}
	for _, u := range mentions {
		if u.ID == self.ID {
			return true
		}
	}
	return false
}

// SendTo implements ChannelSender: externalID is the Discord author ID,
// resolved back to the channel that ID last messaged on.
func (c *ChannelDiscord) SendTo(ctx context.Context, externalID string, text string) error {
	c.mu.Lock()
	channelID, ok := c.channelOf[externalID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: discord: no known channel for author %q", externalID)
	}
	_, err := c.session.ChannelMessageSend(channelID, text)
	if err != nil {
		return fmt.Errorf("transport: discord: send: %w", err)
	}
	return nil
}

// Run blocks until ctx is cancelled; the gateway connection is already live
// from NewChannelDiscord, so there is nothing else to drive here.
func (c *ChannelDiscord) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from the Discord gateway.
func (c *ChannelDiscord) Close() error {
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("transport: discord: close session: %w", err)
	}
	return nil
}
