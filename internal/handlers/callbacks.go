package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bat-bot-referral/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/internal/messages"
	"github.com/BatmanBruc/bat-bot-referral/internal/utils"
)

// HandleClickButton redraws the message the button belongs to.
func (bh *Handlers) HandleClickButton(ctx context.Context, s utils.Sender, update *models.Update, id contextkeys.Identity) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	lang := i18n.FromContext(ctx)
	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = cq.Data
	}
	action, n := parseCallback(data, bh.cfg.DefaultTopN)

	var (
		text     string
		keyboard *models.InlineKeyboardMarkup
		ok       bool
	)
	switch action {
	case callbackTop:
		text, ok = bh.leaderboardText(ctx, n, userKey(id), lang)
		keyboard = topKeyboard(lang, n)
	case callbackMe:
		text, ok = bh.profileText(ctx, id, lang)
		keyboard = profileKeyboard(lang)
	default:
		bh.answerCallback(ctx, s, cq.ID, "")
		return
	}
	if !ok {
		bh.answerCallback(ctx, s, cq.ID, stripTags(messages.ErrorDefault(lang)))
		return
	}

	msg := cq.Message.Message
	if msg == nil {
		bh.answerCallback(ctx, s, cq.ID, "")
		bh.reply(ctx, s, id.ChatID, text, keyboard)
		return
	}
	_, err := s.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      msg.Chat.ID,
		MessageID:   msg.ID,
		Text:        text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: keyboard,
	})
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		bh.log.WarnContext(ctx, "edit message failed", "chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
	bh.answerCallback(ctx, s, cq.ID, messages.Refreshed(lang))
}

func (bh *Handlers) answerCallback(ctx context.Context, s utils.Sender, callbackID, text string) {
	if _, err := s.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		bh.log.WarnContext(ctx, "answer callback failed", "callback_id", callbackID, "error", err)
	}
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
