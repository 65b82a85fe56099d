// Package bot is the Telegram transport. It long-polls the Bot API,
// dispatches updates to the homework, schedule, and analytics services, and
// renders their results as chat messages and inline keyboards. All domain
// decisions live in the services package; this package only translates.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/calendar"
	"github.com/ddanshin/go-homework-bot/internal/config"
	"github.com/ddanshin/go-homework-bot/internal/services"
	"github.com/ddanshin/go-homework-bot/internal/state"
)

// Bot wires the Telegram Bot API to the application services.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg config.TelegramConfig

	db        *gorm.DB
	states    *state.Store
	homework  *services.HomeworkService
	schedule  *services.ScheduleService
	analytics *services.AnalyticsService

	http   *http.Client
	logger zerolog.Logger
}

// New builds the transport around an authorized Bot API client.
func New(
	cfg config.TelegramConfig,
	db *gorm.DB,
	states *state.Store,
	homework *services.HomeworkService,
	schedule *services.ScheduleService,
	analytics *services.AnalyticsService,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	api.Debug = cfg.DebugAPILog

	return &Bot{
		api:       api,
		cfg:       cfg,
		db:        db,
		states:    states,
		homework:  homework,
		schedule:  schedule,
		analytics: analytics,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    log.With().Str("component", "bot").Logger(),
	}, nil
}

// Username returns the authorized bot account name.
func (b *Bot) Username() string { return b.api.Self.UserName }

// SetCommands registers the command menus, one set for private chats and one
// for groups.
func (b *Bot) SetCommands() error {
	private := tgbotapi.NewSetMyCommandsWithScope(
		tgbotapi.NewBotCommandScopeAllPrivateChats(),
		tgbotapi.BotCommand{Command: "start", Description: "Главное меню"},
		tgbotapi.BotCommand{Command: "schedule", Description: "Изменить расписание"},
		tgbotapi.BotCommand{Command: "my_schedule", Description: "Посмотреть расписание"},
		tgbotapi.BotCommand{Command: "stats", Description: "Нагрузка класса"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Отменить текущее действие"},
		tgbotapi.BotCommand{Command: "help", Description: "Справка по командам"},
	)
	if _, err := b.api.Request(private); err != nil {
		return fmt.Errorf("set private commands: %w", err)
	}

	group := tgbotapi.NewSetMyCommandsWithScope(
		tgbotapi.NewBotCommandScopeAllGroupChats(),
		tgbotapi.BotCommand{Command: "hw", Description: "Список домашних заданий"},
		tgbotapi.BotCommand{Command: "stats", Description: "Нагрузка класса"},
		tgbotapi.BotCommand{Command: "export_csv", Description: "Экспорт метрик в CSV (admin)"},
		tgbotapi.BotCommand{Command: "setup_subjects", Description: "Настроить предметы (admin)"},
		tgbotapi.BotCommand{Command: "link_schedule", Description: "Привязать расписание (admin)"},
		tgbotapi.BotCommand{Command: "clear_hw", Description: "Очистить список ДЗ (admin)"},
		tgbotapi.BotCommand{Command: "help", Description: "Справка"},
	)
	if _, err := b.api.Request(group); err != nil {
		return fmt.Errorf("set group commands: %w", err)
	}
	return nil
}

// Run polls for updates until ctx is canceled. Updates are handled by a
// fixed-size worker pool; Run returns after in-flight handlers finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.cfg.PollTimeout.Seconds())
	u.AllowedUpdates = []string{"message", "callback_query", "channel_post"}

	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	sem := make(chan struct{}, b.cfg.UpdateWorkers)

	b.logger.Info().Str("username", b.Username()).Msg("bot polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			wg.Wait()
			b.logger.Info().Msg("bot polling stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer func() {
					if rec := recover(); rec != nil {
						b.logger.Error().Interface("panic", rec).Msg("update handler panicked")
					}
					<-sem
					wg.Done()
				}()
				b.dispatch(ctx, update)
			}(update)
		}
	}
}

// dispatch routes one update to the right handler.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.ChannelPost != nil:
		b.handleChannelPost(ctx, update.ChannelPost)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil {
		return
	}
	if m.Chat.IsPrivate() {
		b.handlePrivate(ctx, m)
		return
	}
	if m.Chat.IsGroup() || m.Chat.IsSuperGroup() {
		b.handleGroup(ctx, m)
	}
}

// handleChannelPost treats channel posts like group traffic without a sender:
// commands work (posting implies admin rights) and the monitor runs.
func (b *Bot) handleChannelPost(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil {
		return
	}
	b.handleGroup(ctx, m)
}

// ---- send helpers ----

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn().Err(err).Msg("telegram send failed")
	}
}

func (b *Bot) reply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}
	b.send(msg)
}

func (b *Bot) answer(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	b.send(msg)
}

func (b *Bot) editText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	b.send(edit)
}

func (b *Bot) editTextAndMarkup(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	edit.ParseMode = tgbotapi.ModeHTML
	b.send(edit)
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Debug().Err(err).Msg("delete message failed")
	}
}

func (b *Bot) answerCallback(id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.logger.Debug().Err(err).Msg("answer callback failed")
	}
}

func (b *Bot) alertCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		b.logger.Debug().Err(err).Msg("answer callback failed")
	}
}

// isChatAdmin reports whether the user is a creator or administrator of the
// chat. The configured admin user passes everywhere. Lookup failures deny.
func (b *Bot) isChatAdmin(chatID, userID int64) bool {
	if b.cfg.AdminUserID != 0 && userID == b.cfg.AdminUserID {
		return true
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

// downloadPhoto fetches the largest size of a message photo, capped at the
// configured download limit.
func (b *Bot) downloadPhoto(ctx context.Context, photos []tgbotapi.PhotoSize) ([]byte, string, error) {
	if len(photos) == 0 {
		return nil, "", fmt.Errorf("no photo sizes")
	}
	largest := photos[len(photos)-1]

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: largest.FileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(b.cfg.DownloadLimit)))
	if err != nil {
		return nil, "", err
	}
	return data, "image/jpeg", nil
}

// calendarNotAuthorized reports whether the error chain carries the calendar
// authorization sentinel.
func calendarNotAuthorized(err error) bool {
	return errors.Is(err, calendar.ErrNotAuthorized)
}
