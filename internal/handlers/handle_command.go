package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bat-bot-referral/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/internal/messages"
	"github.com/BatmanBruc/bat-bot-referral/internal/middleware"
	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/internal/utils"
	"github.com/BatmanBruc/bat-bot-referral/store"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

func (bh *Handlers) HandleCommand(ctx context.Context, s utils.Sender, update *models.Update, id contextkeys.Identity) {
	if update.Message == nil {
		return
	}
	lang := i18n.FromContext(ctx)
	cmd, arg := middleware.SplitCommand(update.Message.Text)

	switch cmd {
	case "/start":
		bh.handleStart(ctx, s, id, lang)
	case "/link":
		bh.reply(ctx, s, id.ChatID, messages.Links(lang, bh.deepLink(userKey(id)), referral.OfferLink(bh.cfg.OfferURL, userKey(id))), nil)
	case "/me":
		text, ok := bh.profileText(ctx, id, lang)
		if !ok {
			bh.reply(ctx, s, id.ChatID, messages.ErrorDefault(lang), nil)
			return
		}
		bh.reply(ctx, s, id.ChatID, text, profileKeyboard(lang))
	case "/top":
		n := bh.cfg.DefaultTopN
		if arg != "" {
			if v, err := strconv.Atoi(arg); err == nil {
				n = referral.ClampTopN(v)
			}
		}
		text, ok := bh.leaderboardText(ctx, n, userKey(id), lang)
		if !ok {
			bh.reply(ctx, s, id.ChatID, messages.ErrorDefault(lang), nil)
			return
		}
		bh.reply(ctx, s, id.ChatID, text, topKeyboard(lang, n))
	case "/lang":
		bh.handleLang(ctx, s, id, arg, lang)
	case "/help":
		bh.reply(ctx, s, id.ChatID, messages.Help(lang, bh.isAdmin(id.UserID)), nil)
	case "/broadcast":
		if !bh.isAdmin(id.UserID) {
			bh.reply(ctx, s, id.ChatID, messages.ErrorUnknownCommand(lang), nil)
			return
		}
		bh.handleBroadcast(ctx, s, id, arg, lang)
	default:
		bh.reply(ctx, s, id.ChatID, messages.ErrorUnknownCommand(lang), nil)
	}
}

func (bh *Handlers) handleStart(ctx context.Context, s utils.Sender, id contextkeys.Identity, lang i18n.Lang) {
	referred := false
	if u, err := bh.users.Get(ctx, userKey(id)); err == nil {
		referred = u.HasReferrer()
	} else if !errors.Is(err, types.ErrNotFound) {
		bh.log.WarnContext(ctx, "load user failed", "user_id", userKey(id), "error", err)
	}
	bh.reply(ctx, s, id.ChatID, messages.Welcome(lang, id.DisplayName, referred), startKeyboard(lang))
}

func (bh *Handlers) handleBroadcast(ctx context.Context, s utils.Sender, id contextkeys.Identity, text string, lang i18n.Lang) {
	if text == "" {
		bh.reply(ctx, s, id.ChatID, messages.BroadcastUsage(lang), nil)
		return
	}
	jobID, err := bh.broadcaster.EnqueueBroadcast(ctx, text, id.ChatID, lang)
	if err != nil {
		bh.log.ErrorContext(ctx, "enqueue broadcast failed", "admin_id", id.UserID, "error", err)
		bh.reply(ctx, s, id.ChatID, messages.ErrorDefault(lang), nil)
		return
	}
	bh.log.InfoContext(ctx, "broadcast queued", "job_id", jobID, "admin_id", id.UserID)
	bh.reply(ctx, s, id.ChatID, messages.BroadcastQueued(lang, jobID), nil)
}

func (bh *Handlers) profileText(ctx context.Context, id contextkeys.Identity, lang i18n.Lang) (string, bool) {
	u, err := bh.users.Get(ctx, userKey(id))
	if err != nil {
		bh.log.ErrorContext(ctx, "load user failed", "user_id", userKey(id), "error", err)
		return "", false
	}
	return messages.Profile(lang, u, bh.deepLink(u.ID)), true
}

func (bh *Handlers) leaderboardText(ctx context.Context, n int, selfID string, lang i18n.Lang) (string, bool) {
	entries, err := bh.board.TopN(ctx, n)
	if err != nil {
		bh.log.ErrorContext(ctx, "leaderboard query failed", "n", n, "error", err)
		return "", false
	}
	return messages.Leaderboard(lang, entries, selfID), true
}

func (bh *Handlers) handleLang(ctx context.Context, s utils.Sender, id contextkeys.Identity, arg string, lang i18n.Lang) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	var (
		value string
		reply func(i18n.Lang) string
		next  i18n.Lang
	)
	switch arg {
	case "ru", "en":
		value, reply, next = arg, messages.LangSet, i18n.Parse(arg)
	case "auto":
		value, reply, next = "", messages.LangAuto, i18n.FromLanguageCode(id.LanguageCode)
	default:
		bh.reply(ctx, s, id.ChatID, messages.LangUsage(lang), nil)
		return
	}
	if err := bh.options.SetUserOption(ctx, id.UserID, store.OptionLang, value); err != nil {
		bh.log.ErrorContext(ctx, "save language failed", "user_id", id.UserID, "error", err)
		bh.reply(ctx, s, id.ChatID, messages.ErrorDefault(lang), nil)
		return
	}
	bh.reply(ctx, s, id.ChatID, reply(next), nil)
}
