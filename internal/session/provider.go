// internal/session/provider.go
package session

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/browser/chrome"
	"github.com/xkilldash9x/lancet/internal/browser/static"
	"github.com/xkilldash9x/lancet/internal/config"
)

// NewProvider returns the browser backend registered under name.
func NewProvider(name string, logger *zap.Logger) (browser.Provider, error) {
	switch strings.ToLower(name) {
	case config.ProviderCDP, "":
		return chrome.New(logger), nil
	case config.ProviderStatic:
		return static.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown browser provider %q", name)
	}
}
