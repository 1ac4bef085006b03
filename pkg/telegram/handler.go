// pkg/telegram/handler.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"lvbot/pkg/availability"
	"lvbot/pkg/config"
	"lvbot/pkg/queue"
	"lvbot/pkg/users"
)

const updateTimeoutSeconds = 30

// Handler is the Telegram command surface. It stays thin: every command
// resolves to one call into the domain packages and one reply.
type Handler struct {
	bot      *tgbotapi.BotAPI
	checker  *availability.Checker
	queue    *queue.Queue
	users    *users.Store
	testMode *config.TestModeStore
	cfg      *config.Config
	logger   *zap.Logger
}

func NewHandler(bot *tgbotapi.BotAPI, checker *availability.Checker, reservationQueue *queue.Queue,
	userStore *users.Store, testMode *config.TestModeStore, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		bot:      bot,
		checker:  checker,
		queue:    reservationQueue,
		users:    userStore,
		testMode: testMode,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run consumes the update stream until ctx ends.
func (h *Handler) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = updateTimeoutSeconds
	updates := h.bot.GetUpdatesChan(updateConfig)

	h.logger.Info("telegram_handler_started", zap.String("bot", h.bot.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			h.logger.Info("telegram_handler_stopped")
			return
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
				continue
			}
			h.handleCommand(ctx, update.Message)
		}
	}
}

// Notify sends a plain message to a user. Used by the scheduler for booking
// outcomes.
func (h *Handler) Notify(userID int64, message string) {
	h.reply(userID, message)
}

func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	command := message.Command()
	h.logger.Info("command_received",
		zap.String("command", command),
		zap.Int64("user_id", userID))

	switch command {
	case "start", "help":
		h.reply(message.Chat.ID, helpText)
	case "disponibilidad":
		h.handleAvailability(ctx, message.Chat.ID)
	case "perfil":
		h.handleProfile(message)
	case "reservar":
		h.handleReserve(message)
	case "misreservas":
		h.handleMyReservations(message)
	case "cancelar":
		h.handleCancel(message)
	case "testmode":
		h.handleTestMode(message)
	default:
		h.reply(message.Chat.ID, "Comando no reconocido. Usa /help para ver los comandos.")
	}
}

const helpText = `🎾 *Bot de Reservas La Villa*

/disponibilidad - horarios disponibles por cancha
/perfil Nombre Apellido correo teléfono - guarda tus datos
/reservar FECHA HORA [canchas] - encola una reserva (ej: /reservar 2026-03-14 06:00 2,1,3)
/misreservas - tus reservas en cola
/cancelar ID - cancela una reserva`

func (h *Handler) handleAvailability(ctx context.Context, chatID int64) {
	h.reply(chatID, "Verificando disponibilidad, un momento...")

	matrix := h.checker.CheckAvailability(ctx, availability.CheckOptions{})
	reference := time.Now().In(h.cfg.Timezone)
	h.replyMarkdown(chatID, availability.FormatMessage(matrix, reference))
}

func (h *Handler) handleProfile(message *tgbotapi.Message) {
	fields := strings.Fields(message.CommandArguments())
	if len(fields) != 4 {
		h.reply(message.Chat.ID, "Uso: /perfil Nombre Apellido correo teléfono")
		return
	}
	profile := users.Profile{
		UserID:    message.From.ID,
		FirstName: fields[0],
		LastName:  fields[1],
		Email:     fields[2],
		Phone:     fields[3],
	}
	if saveError := h.users.Save(profile); saveError != nil {
		h.reply(message.Chat.ID, "Datos inválidos. Revisa el correo y el teléfono.")
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("Perfil guardado, %s ✅", profile.FirstName))
}

func (h *Handler) handleReserve(message *tgbotapi.Message) {
	profile, hasProfile := h.users.Get(message.From.ID)
	if !hasProfile {
		h.reply(message.Chat.ID, "Primero guarda tus datos con /perfil")
		return
	}

	fields := strings.Fields(message.CommandArguments())
	if len(fields) < 2 {
		h.reply(message.Chat.ID, "Uso: /reservar FECHA HORA [canchas]\nEj: /reservar 2026-03-14 06:00 2,1,3")
		return
	}
	targetDate, targetTime := fields[0], fields[1]
	if _, dateError := time.Parse("2006-01-02", targetDate); dateError != nil {
		h.reply(message.Chat.ID, "Fecha inválida, usa el formato 2026-03-14")
		return
	}
	if _, clockError := time.Parse("15:04", targetTime); clockError != nil {
		h.reply(message.Chat.ID, "Hora inválida, usa el formato 06:00")
		return
	}

	courtPreferences := h.cfg.CourtNumbers()
	if len(fields) >= 3 {
		courtPreferences = parseCourtList(fields[2], h.cfg.CourtNumbers())
		if len(courtPreferences) == 0 {
			h.reply(message.Chat.ID, "Canchas inválidas, usa por ejemplo 2,1,3")
			return
		}
	}

	id, addError := h.queue.Add(queue.Request{
		UserID:           message.From.ID,
		FirstName:        profile.FirstName,
		LastName:         profile.LastName,
		Email:            profile.Email,
		Phone:            profile.Phone,
		Tier:             profile.Tier,
		TargetDate:       targetDate,
		TargetTime:       targetTime,
		CourtPreferences: courtPreferences,
	})
	if addError != nil {
		if duplicate, isDuplicate := addError.(*queue.ErrDuplicateSlot); isDuplicate {
			h.reply(message.Chat.ID, fmt.Sprintf("Ya tienes una reserva para el %s a las %s",
				duplicate.TargetDate, duplicate.TargetTime))
			return
		}
		h.reply(message.Chat.ID, fmt.Sprintf("No se pudo encolar la reserva: %v", addError))
		return
	}

	entry, _ := h.queue.Get(id)
	h.replyMarkdown(message.Chat.ID, fmt.Sprintf(
		"✅ Reserva encolada\nFecha: %s a las %s\nCanchas: %s\nSe ejecutará: %s\nID: `%s`",
		targetDate, targetTime, joinInts(courtPreferences),
		formatSchedule(entry.ScheduledExecution, h.cfg.Timezone), shortID(id)))
}

func (h *Handler) handleMyReservations(message *tgbotapi.Message) {
	reservations := h.queue.UserReservations(message.From.ID)
	if len(reservations) == 0 {
		h.reply(message.Chat.ID, "No tienes reservas en cola.")
		return
	}

	var lines []string
	lines = append(lines, "📋 *Tus reservas:*", "")
	for _, entry := range reservations {
		lines = append(lines, fmt.Sprintf("`%s` %s %s [%s]",
			shortID(entry.ID), entry.TargetDate, entry.TargetTime, statusLabel(entry.Status)))
		if entry.ResultMessage != "" && entry.Status.IsTerminal() {
			lines = append(lines, "  "+entry.ResultMessage)
		}
	}
	h.replyMarkdown(message.Chat.ID, strings.Join(lines, "\n"))
}

func (h *Handler) handleCancel(message *tgbotapi.Message) {
	idPrefix := strings.TrimSpace(message.CommandArguments())
	if idPrefix == "" {
		h.reply(message.Chat.ID, "Uso: /cancelar ID (el ID aparece en /misreservas)")
		return
	}

	for _, entry := range h.queue.UserReservations(message.From.ID) {
		if !strings.HasPrefix(entry.ID, idPrefix) {
			continue
		}
		if entry.Status.IsTerminal() {
			h.reply(message.Chat.ID, "Esa reserva ya terminó y no se puede cancelar.")
			return
		}
		h.queue.UpdateStatus(entry.ID, queue.StatusCancelled, nil)
		h.reply(message.Chat.ID, fmt.Sprintf("Reserva del %s a las %s cancelada ✅",
			entry.TargetDate, entry.TargetTime))
		return
	}
	h.reply(message.Chat.ID, "No encontré una reserva tuya con ese ID.")
}

func (h *Handler) handleTestMode(message *tgbotapi.Message) {
	if !h.isAdmin(message.From.ID) {
		h.reply(message.Chat.ID, "Solo administradores pueden usar este comando.")
		return
	}

	fields := strings.Fields(message.CommandArguments())
	if len(fields) == 0 {
		mode := h.testMode.Get()
		h.reply(message.Chat.ID, fmt.Sprintf(
			"Test mode: %v\nAllow within 48h: %v\nTrigger delay: %.1f min\nRetain failures: %v",
			mode.Enabled, mode.AllowWithin48h, mode.TriggerDelayMinutes, mode.RetainFailedReservations))
		return
	}

	switch fields[0] {
	case "on":
		mode := config.TestMode{Enabled: true, AllowWithin48h: true, TriggerDelayMinutes: 1}
		if len(fields) >= 2 {
			if delay, parseError := strconv.ParseFloat(fields[1], 64); parseError == nil && delay >= 0 {
				mode.TriggerDelayMinutes = delay
			}
		}
		h.testMode.Set(mode)
		h.reply(message.Chat.ID, fmt.Sprintf("Test mode activado (delay %.1f min)", mode.TriggerDelayMinutes))
	case "off":
		h.testMode.Set(config.TestMode{})
		h.reply(message.Chat.ID, "Test mode desactivado")
	default:
		h.reply(message.Chat.ID, "Uso: /testmode [on [minutos] | off]")
	}
}

func (h *Handler) isAdmin(userID int64) bool {
	for _, adminID := range h.cfg.AdminUserIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}

func (h *Handler) reply(chatID int64, text string) {
	if _, sendError := h.bot.Send(tgbotapi.NewMessage(chatID, text)); sendError != nil {
		h.logger.Warn("telegram_send_failed", zap.Int64("chat_id", chatID), zap.Error(sendError))
	}
}

func (h *Handler) replyMarkdown(chatID int64, text string) {
	message := tgbotapi.NewMessage(chatID, text)
	message.ParseMode = tgbotapi.ModeMarkdown
	if _, sendError := h.bot.Send(message); sendError != nil {
		h.logger.Warn("telegram_send_failed", zap.Int64("chat_id", chatID), zap.Error(sendError))
	}
}

func parseCourtList(raw string, allowed []int) []int {
	tokens := strings.Split(raw, ",")
	values := make([]any, 0, len(tokens))
	for _, token := range tokens {
		values = append(values, strings.TrimSpace(token))
	}
	return queue.NormalizeCourtSequence(values, allowed)
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, strconv.Itoa(value))
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSchedule(value string, loc *time.Location) string {
	parsed, parseError := time.Parse(time.RFC3339, value)
	if parseError != nil {
		return value
	}
	return parsed.In(loc).Format("02/01 15:04")
}

func statusLabel(status queue.Status) string {
	switch status {
	case queue.StatusPending, queue.StatusScheduled:
		return "en cola"
	case queue.StatusConfirmed, queue.StatusBooking:
		return "ejecutando"
	case queue.StatusSuccess:
		return "confirmada ✅"
	case queue.StatusFailed:
		return "fallida ❌"
	case queue.StatusCancelled:
		return "cancelada"
	case queue.StatusExpired:
		return "expirada"
	default:
		return string(status)
	}
}
