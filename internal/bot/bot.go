package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/luqta/shopbot/internal/assistant"
	"github.com/luqta/shopbot/internal/backend"
	"github.com/luqta/shopbot/internal/models"
)

// systemPrompt frames the AI support chat. Kept short; the assistant
// only needs to know its role and the command surface.
const systemPrompt = "You are a helpful customer support assistant for a Telegram shop bot. " +
	"Users interact mainly through commands: /login to sign in, /register to create an account, " +
	"/products to browse the catalog, /help for the full command list. " +
	"Answer concisely. If you do not know the answer, say so instead of guessing."

// Authenticator is the credential lifecycle the handlers depend on.
type Authenticator interface {
	Resolve(ctx context.Context, principal string) (string, error)
	Authenticated(ctx context.Context, principal string) (bool, error)
	Login(ctx context.Context, principal, username, password string) (backend.TokenPair, error)
	Logout(ctx context.Context, principal string) error
	Register(ctx context.Context, req backend.RegisterRequest) error
	IsStaff(ctx context.Context, principal string) bool
}

// Catalog lists products.
type Catalog interface {
	Get(ctx context.Context, slug string) (models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	ListByOwner(ctx context.Context, owner, accessToken string) ([]models.Product, error)
}

// Directory lists user accounts (staff only).
type Directory interface {
	List(ctx context.Context, params url.Values, accessToken string) ([]models.User, error)
}

// Completer generates AI support replies.
type Completer interface {
	Complete(ctx context.Context, messages []assistant.Message) (string, error)
}

// Conversations stores per-user chat history with the assistant.
type Conversations interface {
	Messages(ctx context.Context, principal string) ([]assistant.Message, error)
	Append(ctx context.Context, principal string, msg assistant.Message) error
	Clear(ctx context.Context, principal string) error
}

// Config holds the bot's runtime knobs.
type Config struct {
	PollTimeout    time.Duration
	HandlerTimeout time.Duration
}

// Bot runs the long-poll loop and dispatches commands.
type Bot struct {
	api      *Client
	auth     Authenticator
	products Catalog
	users    Directory
	ai       Completer
	history  Conversations
	cfg      Config
	logger   *slog.Logger
}

// New assembles a bot from its collaborators.
func New(api *Client, auth Authenticator, products Catalog, users Directory, ai Completer, history Conversations, cfg Config, logger *slog.Logger) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}

	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Bot{
		api:      api,
		auth:     auth,
		products: products,
		users:    users,
		ai:       ai,
		history:  history,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run verifies the token and polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}

	b.logger.Info("bot started",
		slog.String("username", me.Username),
		slog.Int64("id", me.ID),
	)

	var offset int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, next, err := b.api.GetUpdates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}

			if isPollTimeout(err) {
				continue
			}

			b.logger.Error("getUpdates failed", slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}

			continue
		}

		offset = next

		for _, update := range updates {
			go b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches one update under its own timeout, so a slow
// backend call cannot stall the poll loop or sibling handlers.
func (b *Bot) handleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot || msg.Text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	principal := strconv.FormatInt(msg.From.ID, 10)
	command, args := parseCommand(msg.Text)

	b.logger.Debug("dispatching update",
		slog.String("principal", principal),
		slog.String("command", command),
	)

	var reply string

	switch command {
	case "start":
		reply = "Welcome! This bot helps you browse the shop and manage your account. Type /help to see what it can do."
	case "help":
		reply = helpText
	case "login":
		reply = b.handleLogin(ctx, principal, args)
	case "logout":
		reply = b.handleLogout(ctx, principal)
	case "register":
		reply = b.handleRegister(ctx, args)
	case "whoami":
		reply = b.handleWhoami(ctx, principal, msg.From)
	case "product":
		reply = b.handleProduct(ctx, args)
	case "products":
		b.handleProducts(ctx, msg.Chat.ID)
	case "myproducts":
		b.handleMyProducts(ctx, msg.Chat.ID, principal)
	case "users":
		reply = b.handleUsers(ctx, principal)
	case "reset", "clear_chat":
		reply = b.handleReset(ctx, principal)
	case "ask":
		reply = b.handleAsk(ctx, msg.Chat.ID, principal, strings.Join(args, " "))
	case "":
		// Plain text goes to the support assistant.
		reply = b.handleAsk(ctx, msg.Chat.ID, principal, msg.Text)
	default:
		reply = "Unknown command. Type /help for the list of commands."
	}

	if reply == "" {
		return
	}

	if err := b.api.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		b.logger.Error("sendMessage failed",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)
	}
}

const helpText = "<b>Help</b>\n" +
	"Available commands:\n" +
	"/login &lt;username&gt; &lt;password&gt; - Log in to your account\n" +
	"/register &lt;username&gt; &lt;password&gt; - Create a new account\n" +
	"/logout - Log out\n" +
	"/whoami - Show your session status\n" +
	"/products - Browse the catalog\n" +
	"/product &lt;slug&gt; - Show one product in detail\n" +
	"/myproducts - List your own products\n" +
	"/users - List accounts (staff only)\n" +
	"/ask &lt;question&gt; - Ask the support assistant\n" +
	"/reset - Clear your assistant conversation\n\n" +
	"You can also just type a message to chat with the assistant."

// parseCommand splits a message into a command name (without the leading
// slash or an @botname suffix) and its arguments. Non-command text
// returns an empty command.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}

	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}

	return strings.ToLower(command), fields[1:]
}

func (b *Bot) handleLogin(ctx context.Context, principal string, args []string) string {
	authenticated, err := b.auth.Authenticated(ctx, principal)
	if err != nil {
		return temporarilyUnavailable
	}

	if authenticated {
		return "<b>You are already logged in.</b> Use /logout to log out first."
	}

	if len(args) != 2 {
		return "Usage: /login &lt;username&gt; &lt;password&gt;\n\n" +
			"<i>For security, delete your message after logging in.</i>"
	}

	if _, err := b.auth.Login(ctx, principal, args[0], args[1]); err != nil {
		return renderFailure("Login failed", err)
	}

	return "<b>✅ Login successful!</b>\n\nYou are now authenticated and can use all features."
}

func (b *Bot) handleLogout(ctx context.Context, principal string) string {
	authenticated, err := b.auth.Authenticated(ctx, principal)
	if err != nil {
		return temporarilyUnavailable
	}

	if !authenticated {
		return "You are not logged in. Use /login to log in first."
	}

	if err := b.auth.Logout(ctx, principal); err != nil {
		return temporarilyUnavailable
	}

	return "<b>Logout successful.</b> Use /login to log in again."
}

func (b *Bot) handleRegister(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /register &lt;username&gt; &lt;password&gt; [first name] [last name]"
	}

	req := backend.RegisterRequest{Username: args[0], Password: args[1]}
	if len(args) > 2 {
		req.FirstName = args[2]
	}

	if len(args) > 3 {
		req.LastName = args[3]
	}

	if err := b.auth.Register(ctx, req); err != nil {
		return renderFailure("Registration failed", err)
	}

	return "<b>✅ Registration successful!</b>\n\nUse /login to sign in."
}

func (b *Bot) handleWhoami(ctx context.Context, principal string, from *User) string {
	authenticated, err := b.auth.Authenticated(ctx, principal)
	if err != nil {
		return temporarilyUnavailable
	}

	status := "not logged in"
	if authenticated {
		status = "logged in"
		if b.auth.IsStaff(ctx, principal) {
			status = "logged in (staff)"
		}
	}

	return fmt.Sprintf("<b>%s</b>\nTelegram id: <code>%s</code>\nStatus: %s",
		escapeHTML(displayName(from)), principal, status)
}

func (b *Bot) handleProduct(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /product &lt;slug&gt;"
	}

	product, err := b.products.Get(ctx, args[0])
	if err != nil {
		return renderFailure("Product lookup failed", err)
	}

	return renderProductDetails(product)
}

func (b *Bot) handleProducts(ctx context.Context, chatID int64) {
	products, err := b.products.List(ctx)
	if err != nil {
		b.send(ctx, chatID, temporarilyUnavailable)
		return
	}

	if len(products) == 0 {
		b.send(ctx, chatID, "There are no products available at the moment.")
		return
	}

	for _, product := range products {
		b.send(ctx, chatID, renderProductShort(product))
	}
}

func (b *Bot) handleMyProducts(ctx context.Context, chatID int64, principal string) {
	token, err := b.auth.Resolve(ctx, principal)
	if err != nil {
		b.send(ctx, chatID, temporarilyUnavailable)
		return
	}

	if token == "" {
		b.send(ctx, chatID, "You need to log in first. Use /login.")
		return
	}

	// The backend resolves the reserved owner "me" from the bearer token.
	products, err := b.products.ListByOwner(ctx, "me", token)
	if err != nil {
		b.send(ctx, chatID, temporarilyUnavailable)
		return
	}

	if len(products) == 0 {
		b.send(ctx, chatID, "You have no products.")
		return
	}

	for _, product := range products {
		b.send(ctx, chatID, renderProductShort(product))
	}
}

func (b *Bot) handleUsers(ctx context.Context, principal string) string {
	if !b.auth.IsStaff(ctx, principal) {
		return "This command is only available to staff."
	}

	token, err := b.auth.Resolve(ctx, principal)
	if err != nil || token == "" {
		return temporarilyUnavailable
	}

	users, err := b.users.List(ctx, nil, token)
	if err != nil {
		return temporarilyUnavailable
	}

	if len(users) == 0 {
		return "No users found."
	}

	return renderUserList(users)
}

func (b *Bot) handleAsk(ctx context.Context, chatID int64, principal, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return "Usage: /ask &lt;question&gt;"
	}

	if err := b.api.SendChatAction(ctx, chatID, "typing"); err != nil {
		b.logger.Debug("sendChatAction failed", slog.String("error", err.Error()))
	}

	history, err := b.history.Messages(ctx, principal)
	if err != nil {
		b.logger.Warn("reading conversation history failed",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)
	}

	messages := make([]assistant.Message, 0, len(history)+2)
	messages = append(messages, assistant.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)

	userMsg := assistant.Message{Role: "user", Content: question}
	messages = append(messages, userMsg)

	reply, err := b.ai.Complete(ctx, messages)
	if err != nil {
		b.logger.Error("completion failed",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)

		return "<b>❌ Error</b>\n\nI couldn't process your request."
	}

	if err := b.history.Append(ctx, principal, userMsg); err == nil {
		if err := b.history.Append(ctx, principal, assistant.Message{Role: "assistant", Content: reply}); err != nil {
			b.logger.Warn("storing assistant reply failed", slog.String("error", err.Error()))
		}
	} else {
		b.logger.Warn("storing user message failed", slog.String("error", err.Error()))
	}

	return escapeHTML(reply)
}

func (b *Bot) handleReset(ctx context.Context, principal string) string {
	if err := b.history.Clear(ctx, principal); err != nil {
		return temporarilyUnavailable
	}

	return "Your conversation history has been cleared."
}

const temporarilyUnavailable = "<b>❌ Temporarily unavailable</b>\n\nPlease try again later."

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.api.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Error("sendMessage failed", slog.String("error", err.Error()))
	}
}

// renderFailure formats a failed backend operation. An explicit backend
// rejection shows its message and field errors; anything else stays
// generic so infrastructure details never reach the chat.
func renderFailure(title string, err error) string {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		return temporarilyUnavailable
	}

	text := fmt.Sprintf("<b>❌ %s</b>\n\n%s", title, escapeHTML(apiErr.Message))
	for _, line := range apiErr.Details() {
		text += "\n• " + escapeHTML(line)
	}

	return text
}
