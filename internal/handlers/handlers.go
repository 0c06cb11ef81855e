package handlers

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bat-bot-referral/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/internal/messages"
	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/internal/utils"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

type UserReader interface {
	Get(ctx context.Context, id string) (*types.User, error)
}

type LeaderboardReader interface {
	TopN(ctx context.Context, n int) ([]*types.LeaderboardEntry, error)
}

type OptionsWriter interface {
	SetUserOption(ctx context.Context, userID int64, name, value string) error
}

type Broadcaster interface {
	EnqueueBroadcast(ctx context.Context, text string, requestedBy int64, lang i18n.Lang) (string, error)
}

type Config struct {
	BotUsername string
	OfferURL    string
	DefaultTopN int
	Admins      map[int64]bool
}

type Handlers struct {
	users       UserReader
	board       LeaderboardReader
	options     OptionsWriter
	broadcaster Broadcaster
	cfg         Config
	log         *slog.Logger
}

func NewHandlers(users UserReader, board LeaderboardReader, options OptionsWriter, broadcaster Broadcaster, cfg Config, log *slog.Logger) *Handlers {
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = referral.DefaultTopN
	}
	cfg.DefaultTopN = referral.ClampTopN(cfg.DefaultTopN)
	if cfg.Admins == nil {
		cfg.Admins = map[int64]bool{}
	}
	return &Handlers{
		users:       users,
		board:       board,
		options:     options,
		broadcaster: broadcaster,
		cfg:         cfg,
		log:         log,
	}
}

// SetBotUsername is used once the bot has introduced itself via getMe.
func (bh *Handlers) SetBotUsername(name string) {
	bh.cfg.BotUsername = name
}

func (bh *Handlers) MainHandler(ctx context.Context, s utils.Sender, update *models.Update) {
	id, ok := contextkeys.GetIdentity(ctx)
	if !ok {
		bh.log.WarnContext(ctx, "update without identity")
		return
	}
	lang := i18n.FromContext(ctx)
	messageType, _ := contextkeys.GetMessageType(ctx)

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, s, update, id)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, s, update, id)
	default:
		bh.reply(ctx, s, id.ChatID, messages.ErrorUnsupportedMessageType(lang), nil)
	}
}

func (bh *Handlers) isAdmin(userID int64) bool {
	return bh.cfg.Admins[userID]
}

func (bh *Handlers) deepLink(userID string) string {
	return referral.DeepLink(bh.cfg.BotUsername, userID)
}

func userKey(id contextkeys.Identity) string {
	return strconv.FormatInt(id.UserID, 10)
}

// reply sends one message. A failed send is logged and dropped.
func (bh *Handlers) reply(ctx context.Context, s utils.Sender, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := s.SendMessage(ctx, params); err != nil {
		bh.log.WarnContext(ctx, "send failed", "chat_id", chatID, "error", err)
	}
}
