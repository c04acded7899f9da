package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/config"
	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/state"
)

// SheetStore is the spreadsheet persistence used by the command handlers.
type SheetStore interface {
	LoadRegisteredUsers(ctx context.Context) (map[string]string, error)
	AppendRegisteredUser(ctx context.Context, username, realName string) error
	AppendSubmission(ctx context.Context, date, username, imageURL, problemName string) error
	SubmittedUsernames(ctx context.Context, date string) (map[string]bool, error)
}

// ImageStore downloads attachment images and hands out permanent URLs.
type ImageStore interface {
	Save(ctx context.Context, sourceURL string) (string, error)
	PublicURL(filename string) string
}

// Bot represents the Discord bot instance
type Bot struct {
	config  *config.Config
	session *discordgo.Session
	state   *state.State
	sheets  SheetStore
	images  ImageStore

	now func() time.Time
}

// New creates a new Bot instance
func New(cfg *config.Config, st *state.State, sheets SheetStore, images ImageStore) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Commands arrive as plain prefixed messages, in DMs and guild channels.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		config:  cfg,
		session: session,
		state:   st,
		sheets:  sheets,
		images:  images,
		now:     time.Now,
	}

	session.AddHandler(b.onMessage)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	return b, nil
}

// Start opens the Discord connection
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	slog.Info("Connected to Discord", "user", b.session.State.User.Username)
	return nil
}

// Stop closes the Discord session
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// SendDM delivers a direct message to a discord user ID. Used by the daily
// reminder.
func (b *Bot) SendDM(userID, content string) error {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	if _, err := b.session.ChannelMessageSend(ch.ID, content); err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	return nil
}

// onMessage is the single entry point for all incoming messages. It
// translates the discord event into an incoming value and sends back
// whatever reply the handlers produce.
func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	in := incoming{
		Username:  m.Author.Username,
		UserID:    m.Author.ID,
		ChannelID: m.ChannelID,
		IsDM:      m.GuildID == "",
		Content:   m.Content,
	}

	for _, a := range m.Attachments {
		in.Attachments = append(in.Attachments, a.URL)
	}

	if !in.IsDM {
		perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil {
			slog.Warn("Failed to resolve member permissions", "user", in.Username, "error", err)
		}
		in.IsAdmin = perms&discordgo.PermissionAdministrator != 0
	}

	reply := b.handleMessage(context.Background(), in)
	if reply == "" {
		return
	}

	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		slog.Error("Failed to send reply", "channel", m.ChannelID, "error", err)
	}
}
