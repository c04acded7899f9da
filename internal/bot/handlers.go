package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/CHiPSET-SRM-RMP/CHIPSETCPBot/internal/sheets"
)

// defaultProblemName is recorded when /submit is called without one.
const defaultProblemName = "No Name"

// incoming describes one received message, independent of the discord
// transport so the handlers can be tested directly.
type incoming struct {
	Username    string
	UserID      string
	ChannelID   string
	IsDM        bool
	IsAdmin     bool
	Content     string
	Attachments []string
}

// handleMessage routes a message: a pending registration conversation
// consumes the message first, otherwise it is parsed as a prefixed command.
// Returns the reply to send, or "" for messages the bot ignores.
func (b *Bot) handleMessage(ctx context.Context, in incoming) string {
	if b.state.IsRegistered(in.Username) && in.UserID != "" {
		// Keep the user ID fresh so the daily reminder can DM them.
		b.state.SetUserID(in.Username, in.UserID)
	}

	ok, expired := b.state.TakePendingRegistration(in.Username, in.ChannelID)
	if ok {
		return b.completeRegistration(ctx, in)
	}
	if expired {
		return "⏳ Timeout! Try /register again."
	}

	cmd, args, ok := b.parseCommand(in.Content)
	if !ok {
		return ""
	}

	switch cmd {
	case "register":
		return b.handleRegister(in)
	case "submit":
		return b.handleSubmit(ctx, in, args)
	case "status":
		return b.handleStatus(in)
	case "notcompleted":
		return b.handleNotCompleted(ctx, in)
	default:
		return ""
	}
}

// parseCommand splits "<prefix><command> [args]" and reports whether the
// message is a command at all.
func (b *Bot) parseCommand(content string) (cmd, args string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, b.config.CommandPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, b.config.CommandPrefix)
	if rest == "" {
		return "", "", false
	}

	cmd, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(cmd), strings.TrimSpace(args), true
}

// handleRegister starts the registration conversation.
func (b *Bot) handleRegister(in incoming) string {
	if !in.IsDM {
		return "📩 DM me to register!"
	}
	if b.state.IsRegistered(in.Username) {
		return "Already registered 🤝"
	}

	b.state.BeginRegistration(in.Username, in.ChannelID)
	return "Send your REAL FULL NAME 👇"
}

// completeRegistration consumes the real-name reply of a registration
// conversation. The user is stored in memory first and in the sheet second;
// there is no rollback if the sheet append fails.
func (b *Bot) completeRegistration(ctx context.Context, in incoming) string {
	realName := strings.TrimSpace(in.Content)
	if realName == "" {
		b.state.BeginRegistration(in.Username, in.ChannelID)
		return "Send your REAL FULL NAME 👇"
	}

	if !b.state.Register(in.Username, realName) {
		return "Already registered 🤝"
	}
	if in.UserID != "" {
		b.state.SetUserID(in.Username, in.UserID)
	}

	if err := b.sheets.AppendRegisteredUser(ctx, in.Username, realName); err != nil {
		slog.Error("Failed to persist registration", "user", in.Username, "error", err)
		return fmt.Sprintf("✔ Registered %s, but saving to the sheet failed 😥", realName)
	}

	slog.Info("User registered", "user", in.Username, "name", realName)
	return fmt.Sprintf("✔ Registered Successfully %s 🎯", realName)
}

// handleSubmit stores the attached screenshot and records the submission.
func (b *Bot) handleSubmit(ctx context.Context, in incoming, problemName string) string {
	if !in.IsDM {
		return "Submit privately here 😄"
	}
	if !b.state.IsRegistered(in.Username) {
		return "❌ Register first using `/register`"
	}
	if len(in.Attachments) == 0 {
		return "⚠️ Attach screenshot also!"
	}

	filename, err := b.images.Save(ctx, in.Attachments[0])
	if err != nil {
		slog.Error("Failed to store image", "user", in.Username, "error", err)
		return "❌ Failed to upload image. Try again!"
	}
	permanentURL := b.images.PublicURL(filename)

	if problemName == "" {
		problemName = defaultProblemName
	}

	count := b.state.IncrementSubmission(in.Username)
	date := b.now().Format("2006-01-02")

	if err := b.sheets.AppendSubmission(ctx, date, in.Username, permanentURL, problemName); err != nil {
		slog.Error("Failed to record submission", "user", in.Username, "error", err)
		return "⚠️ Image stored but recording to the sheet failed. Try again!"
	}

	slog.Info("Submission recorded", "user", in.Username, "count", count, "problem", problemName)
	return fmt.Sprintf("🔥 Submission #%d saved with permanent link!", count)
}

// handleStatus reports the caller's submission count for today.
func (b *Bot) handleStatus(in incoming) string {
	if !in.IsDM {
		return "DM me 😄"
	}

	count := b.state.Submissions(in.Username)
	if count > 0 {
		return fmt.Sprintf("✔ You submitted %d time(s) today! 🔥", count)
	}
	return "❌ No submissions yet today 😬"
}

// handleNotCompleted lists the real names of registered users without a
// submission today. Admin only, guild channels only.
func (b *Bot) handleNotCompleted(ctx context.Context, in incoming) string {
	if in.IsDM {
		return "Use this in server 😄"
	}
	if !in.IsAdmin {
		return "❌ Admin only!"
	}

	date := b.now().Format("2006-01-02")
	submitted, err := b.sheets.SubmittedUsernames(ctx, date)
	if err != nil {
		if errors.Is(err, sheets.ErrWorksheetNotFound) {
			return "⚠️ Nobody submitted today 😅"
		}
		slog.Error("Failed to read today's sheet", "date", date, "error", err)
		return "❌ Couldn't read today's sheet. Try again!"
	}

	var notDone []string
	for username, realName := range b.state.Registered() {
		if !submitted[username] {
			notDone = append(notDone, realName)
		}
	}

	if len(notDone) == 0 {
		return "🎉 Everyone completed today!"
	}

	sort.Strings(notDone)
	var sb strings.Builder
	sb.WriteString("❌ Pending Submissions:\n")
	for _, name := range notDone {
		sb.WriteString("\n• ")
		sb.WriteString(name)
	}
	return sb.String()
}
