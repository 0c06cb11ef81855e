package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bat-bot-referral/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/internal/messages"
	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/internal/utils"
	"github.com/BatmanBruc/bat-bot-referral/store"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

type Registrar interface {
	RegisterOrTouch(ctx context.Context, userID, displayName, referrerCandidate string) (*types.User, error)
}

type OptionsReader interface {
	GetUserOptions(ctx context.Context, userID int64) (map[string]string, error)
}

type Middlewares struct {
	registrar Registrar
	options   OptionsReader
	log       *slog.Logger
}

// NewMessageAnalyzer accepts a nil options reader; the client language is
// used then.
func NewMessageAnalyzer(registrar Registrar, options OptionsReader, log *slog.Logger) *Middlewares {
	return &Middlewares{
		registrar: registrar,
		options:   options,
		log:       log,
	}
}

// Chain wraps h so that the first middleware runs outermost.
func Chain(h utils.HandlerFunc, mws ...func(utils.HandlerFunc) utils.HandlerFunc) utils.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover keeps one bad update from taking the bot down.
func (m *Middlewares) Recover(next utils.HandlerFunc) utils.HandlerFunc {
	return func(ctx context.Context, s utils.Sender, update *models.Update) {
		defer func() {
			if r := recover(); r != nil {
				var updateID int64
				if update != nil {
					updateID = update.ID
				}
				m.log.ErrorContext(ctx, "panic in update handler",
					"panic", r,
					"update_id", updateID,
					"stack", string(debug.Stack()),
				)
			}
		}()
		next(ctx, s, update)
	}
}

// AnalyzeMessageMiddleware resolves who sent the update and what kind of
// update it is. Updates without a user are dropped.
func (m *Middlewares) AnalyzeMessageMiddleware(next utils.HandlerFunc) utils.HandlerFunc {
	return func(ctx context.Context, s utils.Sender, update *models.Update) {
		var from *models.User
		switch {
		case update.CallbackQuery != nil:
			from = &update.CallbackQuery.From
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
		case update.Message != nil && update.Message.From != nil:
			from = update.Message.From
			ctx = contextkeys.WithMessageType(ctx, messageType(update.Message))
		default:
			return
		}

		chatID := utils.ChatIDFromUpdate(update)
		if from.ID == 0 || chatID == 0 {
			return
		}
		ctx = contextkeys.WithIdentity(ctx, contextkeys.Identity{
			UserID:       from.ID,
			ChatID:       chatID,
			DisplayName:  DisplayName(from),
			Username:     from.Username,
			LanguageCode: from.LanguageCode,
		})
		ctx = contextkeys.WithLang(ctx, string(m.lang(ctx, from)))
		next(ctx, s, update)
	}
}

// RegisterUserMiddleware registers the sender on every contact. A /start
// payload is passed along as the referral code; the resolver ignores it
// once a referrer is stored.
func (m *Middlewares) RegisterUserMiddleware(next utils.HandlerFunc) utils.HandlerFunc {
	return func(ctx context.Context, s utils.Sender, update *models.Update) {
		id, ok := contextkeys.GetIdentity(ctx)
		if !ok {
			return
		}
		code := ""
		if update.Message != nil {
			code = StartPayload(update.Message.Text)
		}
		userID := strconv.FormatInt(id.UserID, 10)
		if _, err := m.registrar.RegisterOrTouch(ctx, userID, id.DisplayName, referral.ParseCode(code)); err != nil {
			m.log.ErrorContext(ctx, "register user failed", "user_id", userID, "error", err)
			if _, err := s.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:    id.ChatID,
				Text:      messages.ErrorDefault(i18n.FromContext(ctx)),
				ParseMode: messages.ParseModeHTML,
			}); err != nil {
				m.log.WarnContext(ctx, "send failed", "chat_id", id.ChatID, "error", err)
			}
			return
		}
		next(ctx, s, update)
	}
}

func (m *Middlewares) lang(ctx context.Context, from *models.User) i18n.Lang {
	if m.options != nil {
		opts, err := m.options.GetUserOptions(ctx, from.ID)
		if err != nil {
			m.log.WarnContext(ctx, "load user options failed", "user_id", from.ID, "error", err)
		} else if v := opts[store.OptionLang]; v != "" {
			return i18n.Parse(v)
		}
	}
	return i18n.FromLanguageCode(from.LanguageCode)
}

func messageType(msg *models.Message) contextkeys.MessageType {
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/"):
		return contextkeys.MessageTypeCommand
	case text != "" || msg.Caption != "":
		return contextkeys.MessageTypeText
	default:
		return contextkeys.MessageTypeUnknown
	}
}

// DisplayName prefers the full name, then @username.
func DisplayName(u *models.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	return name
}

// StartPayload returns the argument of a /start command, "" otherwise.
func StartPayload(text string) string {
	cmd, arg := SplitCommand(text)
	if cmd != "/start" {
		return ""
	}
	return arg
}

// SplitCommand splits "/cmd@bot rest" into "/cmd" and "rest".
func SplitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		cmd, rest = text[:i], text[i+1:]
	}
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}
