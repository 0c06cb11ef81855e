package handlers

import (
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/internal/messages"
	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/internal/utils"
)

const (
	callbackTop = "top"
	callbackMe  = "me"
)

func topCallbackData(n int) string {
	return callbackTop + ":" + strconv.Itoa(n)
}

// parseCallback splits "top:10" into its action and size. Unknown sizes
// fall back to def.
func parseCallback(data string, def int) (string, int) {
	action, arg, _ := strings.Cut(strings.TrimSpace(data), ":")
	n := def
	if v, err := strconv.Atoi(arg); err == nil {
		n = referral.ClampTopN(v)
	}
	return action, n
}

func startKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	return utils.BuildInlineKeyboard([]utils.Button{
		{Text: messages.BtnTop(lang), CallbackData: topCallbackData(referral.DefaultTopN)},
		{Text: messages.BtnMe(lang), CallbackData: callbackMe},
	}, 2)
}

func topKeyboard(lang i18n.Lang, n int) *models.InlineKeyboardMarkup {
	return utils.BuildInlineKeyboard([]utils.Button{
		{Text: messages.BtnRefresh(lang), CallbackData: topCallbackData(n)},
		{Text: messages.BtnMe(lang), CallbackData: callbackMe},
	}, 2)
}

func profileKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	return utils.BuildInlineKeyboard([]utils.Button{
		{Text: messages.BtnRefresh(lang), CallbackData: callbackMe},
		{Text: messages.BtnTop(lang), CallbackData: topCallbackData(referral.DefaultTopN)},
	}, 2)
}
