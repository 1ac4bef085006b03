// pkg/browser/humanize.go
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Humanizer adds small randomized pauses, mouse movement and scrolling so
// page interactions look hand-driven. One instance is shared by the pool's
// startup goroutines, so the rng sits behind a mutex.
type Humanizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewHumanizer() *Humanizer {
	return &Humanizer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (h *Humanizer) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

func (h *Humanizer) int63n(n int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Int63n(n)
}

// Pause sleeps a random duration in [min, max), or returns early when ctx
// ends.
func (h *Humanizer) Pause(ctx context.Context, min, max time.Duration) {
	delay := min
	if max > min {
		delay = min + time.Duration(h.int63n(int64(max-min)))
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// ScrollNaturally performs a few short downward scrolls with pauses between
// them.
func (h *Humanizer) ScrollNaturally(ctx context.Context, courtPage *CourtPage) {
	steps := 2 + h.intn(3)
	for i := 0; i < steps; i++ {
		distance := 120 + h.intn(240)
		script := fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'smooth'})`, distance)
		if scrollError := courtPage.Run(ctx, chromedp.Evaluate(script, nil)); scrollError != nil {
			return
		}
		h.Pause(ctx, 200*time.Millisecond, 700*time.Millisecond)
	}
}

// MoveMouseRandomly dispatches a handful of mouse-move events across the
// viewport.
func (h *Humanizer) MoveMouseRandomly(ctx context.Context, courtPage *CourtPage) {
	moves := 2 + h.intn(3)
	for i := 0; i < moves; i++ {
		x := float64(100 + h.intn(1100))
		y := float64(100 + h.intn(600))
		moveAction := chromedp.ActionFunc(func(actionCtx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(actionCtx)
		})
		if moveError := courtPage.Run(ctx, moveAction); moveError != nil {
			return
		}
		h.Pause(ctx, 100*time.Millisecond, 400*time.Millisecond)
	}
}

// TypeLikeHuman fills an input one character at a time with uneven keystroke
// delays.
func (h *Humanizer) TypeLikeHuman(ctx context.Context, courtPage *CourtPage, selector, value string) error {
	if clickError := courtPage.Run(ctx, chromedp.Click(selector, chromedp.ByQuery)); clickError != nil {
		return clickError
	}
	h.Pause(ctx, 100*time.Millisecond, 300*time.Millisecond)
	for _, character := range value {
		if typeError := courtPage.Run(ctx, chromedp.SendKeys(selector, string(character), chromedp.ByQuery)); typeError != nil {
			return typeError
		}
		h.Pause(ctx, 40*time.Millisecond, 140*time.Millisecond)
	}
	return nil
}

// ClickWithHesitation waits a beat before clicking, like a person locating
// the control first.
func (h *Humanizer) ClickWithHesitation(ctx context.Context, courtPage *CourtPage, selector string) error {
	h.Pause(ctx, 300*time.Millisecond, 900*time.Millisecond)
	return courtPage.Run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}
