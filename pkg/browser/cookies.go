// pkg/browser/cookies.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// storedCookie is the on-disk cookie shape. Only the fields needed to
// re-establish a session are kept.
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

func (p *Pool) cookieFilePath(court int) string {
	return filepath.Join(p.cfg.DataDirectory, "cookies", fmt.Sprintf("court-%d.json", court))
}

// saveCookies snapshots the tab's cookie jar to disk. Failures are logged
// and otherwise ignored; cookies are an optimization, not state.
func (p *Pool) saveCookies(tabCtx context.Context, court int) {
	var cookies []*network.Cookie
	fetch := chromedp.ActionFunc(func(actionCtx context.Context) error {
		var fetchError error
		cookies, fetchError = storage.GetCookies().Do(actionCtx)
		return fetchError
	})
	if fetchError := chromedp.Run(tabCtx, fetch); fetchError != nil {
		p.logger.Debug("cookie_save_failed", zap.Int("court", court), zap.Error(fetchError))
		return
	}

	stored := make([]storedCookie, 0, len(cookies))
	for _, cookie := range cookies {
		stored = append(stored, storedCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  cookie.Expires,
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		})
	}

	payload, marshalError := json.MarshalIndent(stored, "", "  ")
	if marshalError != nil {
		p.logger.Debug("cookie_save_failed", zap.Int("court", court), zap.Error(marshalError))
		return
	}
	path := p.cookieFilePath(court)
	if mkdirError := os.MkdirAll(filepath.Dir(path), 0o755); mkdirError != nil {
		p.logger.Debug("cookie_save_failed", zap.Int("court", court), zap.Error(mkdirError))
		return
	}
	if writeError := os.WriteFile(path, payload, 0o600); writeError != nil {
		p.logger.Debug("cookie_save_failed", zap.Int("court", court), zap.Error(writeError))
		return
	}
	p.logger.Debug("cookies_saved", zap.Int("court", court), zap.Int("count", len(stored)))
}

// restoreCookies loads a previously saved jar into the tab before first
// navigation. A missing or stale file is not an error.
func (p *Pool) restoreCookies(tabCtx context.Context, court int) {
	payload, readError := os.ReadFile(p.cookieFilePath(court))
	if readError != nil {
		return
	}
	var stored []storedCookie
	if unmarshalError := json.Unmarshal(payload, &stored); unmarshalError != nil {
		p.logger.Debug("cookie_restore_failed", zap.Int("court", court), zap.Error(unmarshalError))
		return
	}

	params := make([]*network.CookieParam, 0, len(stored))
	for _, cookie := range stored {
		param := &network.CookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		}
		if cookie.Expires > 0 {
			expiry := cdp.TimeSinceEpoch(time.Unix(int64(cookie.Expires), 0))
			if time.Time(expiry).Before(time.Now()) {
				continue
			}
			param.Expires = &expiry
		}
		params = append(params, param)
	}
	if len(params) == 0 {
		return
	}

	apply := chromedp.ActionFunc(func(actionCtx context.Context) error {
		return storage.SetCookies(params).Do(actionCtx)
	})
	if applyError := chromedp.Run(tabCtx, apply); applyError != nil {
		p.logger.Debug("cookie_restore_failed", zap.Int("court", court), zap.Error(applyError))
		return
	}
	p.logger.Debug("cookies_restored", zap.Int("court", court), zap.Int("count", len(params)))
}
