// pkg/booking/flow.go
package booking

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"lvbot/pkg/availability"
	"lvbot/pkg/browser"
	"lvbot/pkg/metrics"
)

// Form selectors for the scheduling widget. The site renders a single-page
// flow: time buttons, then the client details form, then a confirmation pane.
const (
	timeButtonSelector    = "button.time-selection"
	firstNameSelector     = `input[name="firstName"]`
	lastNameSelector      = `input[name="lastName"]`
	emailSelector         = `input[name="email"]`
	phoneSelector         = `input[name="phone"]`
	confirmButtonSelector = `button[type="submit"]`
	confirmationSelector  = ".confirmation-page, .appointment-confirmed"
)

var confirmationIDPattern = regexp.MustCompile(`(?i)(?:confirmaci[oó]n|confirmation)[:#\s]*([A-Z0-9-]{6,})`)

// BookingDetails carries everything needed to submit one reservation form.
type BookingDetails struct {
	Court     int
	Date      string
	Time      string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Result is the outcome of one booking attempt.
type Result struct {
	Success        bool   `json:"success"`
	CourtReserved  int    `json:"court_reserved,omitempty"`
	TimeReserved   string `json:"time_reserved,omitempty"`
	Message        string `json:"message"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
}

// FlowExecutor drives the reservation form on an already-positioned court
// page. It never navigates away from the page it is handed.
type FlowExecutor struct {
	humanizer *browser.Humanizer
	logger    *zap.Logger
}

func NewFlowExecutor(logger *zap.Logger) *FlowExecutor {
	return &FlowExecutor{humanizer: browser.NewHumanizer(), logger: logger}
}

// ProbeSlot reloads the court page and reports whether the wanted time still
// shows a selectable button.
func (e *FlowExecutor) ProbeSlot(ctx context.Context, page *browser.CourtPage, date, timeValue string) (bool, error) {
	if reloadError := page.Reload(ctx); reloadError != nil {
		return false, fmt.Errorf("probe reload: %w", reloadError)
	}
	bodyHTML, htmlError := page.BodyHTML(ctx)
	if htmlError != nil {
		return false, fmt.Errorf("probe extraction: %w", htmlError)
	}
	for _, button := range availability.ExtractTimeButtons(bodyHTML) {
		if button.Time == timeValue {
			return true, nil
		}
	}
	return false, nil
}

// Execute runs the full booking flow: select the time, fill the client form
// like a person would, submit, and read back the confirmation. Failures are
// reported in the Result, not as an error, so the caller can record the
// outcome uniformly.
func (e *FlowExecutor) Execute(ctx context.Context, page *browser.CourtPage, details BookingDetails) Result {
	e.logger.Info("booking_started",
		zap.Int("court", details.Court),
		zap.String("date", details.Date),
		zap.String("time", details.Time))

	if clickError := e.selectTimeSlot(ctx, page, details.Time); clickError != nil {
		return e.failure(details, fmt.Sprintf("Horario %s no disponible: %v", details.Time, clickError))
	}
	if fillError := e.fillClientForm(ctx, page, details); fillError != nil {
		return e.failure(details, fmt.Sprintf("Error llenando el formulario: %v", fillError))
	}
	if submitError := e.humanizer.ClickWithHesitation(ctx, page, confirmButtonSelector); submitError != nil {
		return e.failure(details, fmt.Sprintf("Error al enviar la reserva: %v", submitError))
	}

	confirmationID, confirmError := e.awaitConfirmation(ctx, page)
	if confirmError != nil {
		return e.failure(details, fmt.Sprintf("Sin confirmación de la reserva: %v", confirmError))
	}

	metrics.BookingsExecuted.WithLabelValues("success").Inc()
	e.logger.Info("booking_confirmed",
		zap.Int("court", details.Court),
		zap.String("confirmation_id", confirmationID))
	return Result{
		Success:        true,
		CourtReserved:  details.Court,
		TimeReserved:   details.Time,
		ConfirmationID: confirmationID,
		Message:        fmt.Sprintf("✅ Reserva confirmada: Cancha %d el %s a las %s", details.Court, details.Date, details.Time),
	}
}

func (e *FlowExecutor) failure(details BookingDetails, message string) Result {
	metrics.BookingsExecuted.WithLabelValues("failed").Inc()
	e.logger.Warn("booking_failed",
		zap.Int("court", details.Court),
		zap.String("time", details.Time),
		zap.String("reason", message))
	return Result{Success: false, Message: message}
}

// selectTimeSlot clicks the button whose visible text equals the wanted
// time. Matching happens in the page so the click lands on the exact node.
func (e *FlowExecutor) selectTimeSlot(ctx context.Context, page *browser.CourtPage, timeValue string) error {
	script := fmt.Sprintf(`(() => {
		const buttons = Array.from(document.querySelectorAll(%q));
		const target = buttons.find(b => b.textContent.trim() === %q);
		if (!target) return false;
		target.click();
		return true;
	})()`, timeButtonSelector, timeValue)

	e.humanizer.Pause(ctx, 400*time.Millisecond, 1200*time.Millisecond)
	var clicked bool
	if runError := page.Run(ctx, chromedp.Evaluate(script, &clicked)); runError != nil {
		return runError
	}
	if !clicked {
		return fmt.Errorf("time button %q not found", timeValue)
	}
	return nil
}

func (e *FlowExecutor) fillClientForm(ctx context.Context, page *browser.CourtPage, details BookingDetails) error {
	if waitError := page.Run(ctx, chromedp.WaitVisible(firstNameSelector, chromedp.ByQuery)); waitError != nil {
		return fmt.Errorf("client form never appeared: %w", waitError)
	}

	fields := []struct {
		selector string
		value    string
	}{
		{firstNameSelector, details.FirstName},
		{lastNameSelector, details.LastName},
		{emailSelector, details.Email},
		{phoneSelector, details.Phone},
	}
	for _, field := range fields {
		if typeError := e.humanizer.TypeLikeHuman(ctx, page, field.selector, field.value); typeError != nil {
			return fmt.Errorf("field %s: %w", field.selector, typeError)
		}
	}
	return nil
}

// awaitConfirmation waits for the confirmation pane and extracts the
// confirmation code from the page text when one is shown.
func (e *FlowExecutor) awaitConfirmation(ctx context.Context, page *browser.CourtPage) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if waitError := page.Run(waitCtx, chromedp.WaitVisible(confirmationSelector, chromedp.ByQuery)); waitError != nil {
		return "", waitError
	}

	textContent, textError := page.BodyText(ctx)
	if textError != nil {
		// Confirmed visually but unreadable; treat as confirmed without a code.
		return "", nil
	}
	if match := confirmationIDPattern.FindStringSubmatch(textContent); len(match) == 2 {
		return strings.TrimSpace(match[1]), nil
	}
	return "", nil
}
