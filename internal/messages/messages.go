package messages

import (
	"fmt"
	"strings"

	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ <b>%s</b>", Escape(text))
}

func ErrorDefault(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🚫 <b>Error</b>\nPlease try again.",
		"🚫 <b>Ошибка</b>\nПопробуйте ещё раз.")
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"❓ <b>Unknown command</b>\nSee /help.",
		"❓ <b>Команда не найдена</b>\nСм. /help.")
}

func ErrorUnsupportedMessageType(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🤖 <b>I only understand commands</b>\nSee /help.",
		"🤖 <b>Я понимаю только команды</b>\nСм. /help.")
}

func Welcome(lang i18n.Lang, name string, referred bool) string {
	var b strings.Builder
	if name = Escape(name); name != "" {
		b.WriteString(i18n.Pick(lang, "👋 <b>Hi, ", "👋 <b>Привет, ") + name + "!</b>\n")
	} else {
		b.WriteString(i18n.Pick(lang, "👋 <b>Hi!</b>\n", "👋 <b>Привет!</b>\n"))
	}
	b.WriteString(i18n.Pick(lang,
		"Invite friends with your link. You get a point every time one of them installs the app.\n",
		"Приглашайте друзей по своей ссылке. За каждую установку приложения другом вы получаете балл.\n"))
	if referred {
		b.WriteString(i18n.Pick(lang,
			"\n🤝 You joined through a friend's invite.\n",
			"\n🤝 Вы пришли по приглашению друга.\n"))
	}
	b.WriteString(i18n.Pick(lang,
		"\n/link your links\n/me your points\n/top leaderboard",
		"\n/link ваши ссылки\n/me ваши баллы\n/top рейтинг"))
	return b.String()
}

func Links(lang i18n.Lang, deepLink, offerLink string) string {
	var b strings.Builder
	b.WriteString(i18n.Pick(lang, "🔗 <b>Your links</b>\n", "🔗 <b>Ваши ссылки</b>\n"))
	if deepLink != "" {
		b.WriteString(i18n.Pick(lang, "\nInvite friends:\n", "\nПриглашение друзей:\n"))
		b.WriteString(Escape(deepLink) + "\n")
	}
	if offerLink != "" {
		b.WriteString(i18n.Pick(lang, "\nInstall the app:\n", "\nУстановить приложение:\n"))
		b.WriteString(Escape(offerLink) + "\n")
	}
	if deepLink == "" && offerLink == "" {
		b.WriteString(i18n.Pick(lang, "\nLinks are not available right now.", "\nСсылки сейчас недоступны."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func Profile(lang i18n.Lang, u *types.User, deepLink string) string {
	var b strings.Builder
	b.WriteString(i18n.Pick(lang, "👤 <b>Your stats</b>\n", "👤 <b>Ваша статистика</b>\n"))
	fmt.Fprintf(&b, i18n.Pick(lang, "\n🏅 Points: <b>%d</b>", "\n🏅 Баллы: <b>%d</b>"), u.Points)
	fmt.Fprintf(&b, i18n.Pick(lang, "\n📲 Your installs: <b>%d</b>", "\n📲 Ваши установки: <b>%d</b>"), u.CompletedInstalls)
	if u.TaskCompleted {
		b.WriteString(i18n.Pick(lang, "\n✅ Task completed", "\n✅ Задание выполнено"))
	}
	if deepLink != "" {
		b.WriteString(i18n.Pick(lang, "\n\nInvite link:\n", "\n\nСсылка-приглашение:\n"))
		b.WriteString(Escape(deepLink))
	}
	return b.String()
}

func Leaderboard(lang i18n.Lang, entries []*types.LeaderboardEntry, selfID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, i18n.Pick(lang, "🏆 <b>Top %d</b>\n", "🏆 <b>Топ %d</b>\n"), len(entries))
	if len(entries) == 0 {
		b.WriteString(i18n.Pick(lang, "\nNobody here yet. Be the first!", "\nПока никого нет. Будьте первым!"))
		return b.String()
	}
	for i, e := range entries {
		name := Escape(e.DisplayName)
		if name == "" {
			name = i18n.Pick(lang, "user ", "пользователь ") + Escape(e.UserID)
		}
		line := fmt.Sprintf("%s %s: %d", rankMark(i+1), name, e.Points)
		if e.UserID == selfID {
			line = "<b>" + line + "</b>"
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

func rankMark(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

func Help(lang i18n.Lang, admin bool) string {
	text := i18n.Pick(lang,
		"ℹ️ <b>Commands</b>\n"+
			"/start start the bot\n"+
			"/link your invite and install links\n"+
			"/me your points and installs\n"+
			"/top [n] leaderboard, n from 1 to 100\n"+
			"/lang ru|en|auto language\n"+
			"/help this message",
		"ℹ️ <b>Команды</b>\n"+
			"/start запуск бота\n"+
			"/link ссылки для приглашения и установки\n"+
			"/me ваши баллы и установки\n"+
			"/top [n] рейтинг, n от 1 до 100\n"+
			"/lang ru|en|auto язык\n"+
			"/help это сообщение")
	if admin {
		text += i18n.Pick(lang,
			"\n/broadcast &lt;text&gt; message every user",
			"\n/broadcast &lt;текст&gt; рассылка всем пользователям")
	}
	return text
}

func BroadcastUsage(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"📣 Usage: <code>/broadcast text</code>",
		"📣 Использование: <code>/broadcast текст</code>")
}

func BroadcastQueued(lang i18n.Lang, jobID string) string {
	return fmt.Sprintf(i18n.Pick(lang,
		"📣 <b>Broadcast queued</b>\nID: <code>%s</code>",
		"📣 <b>Рассылка поставлена в очередь</b>\nID: <code>%s</code>"), Escape(jobID))
}

func BroadcastFinished(lang i18n.Lang, jobID string, sent, failed, skipped int) string {
	return fmt.Sprintf(i18n.Pick(lang,
		"📣 <b>Broadcast finished</b>\nID: <code>%s</code>\nSent: %d\nFailed: %d\nSkipped: %d",
		"📣 <b>Рассылка завершена</b>\nID: <code>%s</code>\nОтправлено: %d\nОшибок: %d\nПропущено: %d"),
		Escape(jobID), sent, failed, skipped)
}

func BtnRefresh(lang i18n.Lang) string {
	return i18n.Pick(lang, "🔄 Refresh", "🔄 Обновить")
}

func BtnTop(lang i18n.Lang) string {
	return i18n.Pick(lang, "🏆 Top", "🏆 Рейтинг")
}

func BtnMe(lang i18n.Lang) string {
	return i18n.Pick(lang, "👤 My stats", "👤 Моя статистика")
}

func Refreshed(lang i18n.Lang) string {
	return i18n.Pick(lang, "Updated", "Обновлено")
}

func LangUsage(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🌐 Usage: <code>/lang ru</code>, <code>/lang en</code> or <code>/lang auto</code>",
		"🌐 Использование: <code>/lang ru</code>, <code>/lang en</code> или <code>/lang auto</code>")
}

func LangSet(lang i18n.Lang) string {
	return i18n.Pick(lang, "🌐 Language: English", "🌐 Язык: русский")
}

func LangAuto(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🌐 Language follows your Telegram settings",
		"🌐 Язык как в настройках Telegram")
}
