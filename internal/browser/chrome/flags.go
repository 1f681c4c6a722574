// internal/browser/chrome/flags.go
package chrome

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/lancet/internal/browser"
)

// switchFlag is a single Chrome command line switch. Value is either a
// bool (present or absent) or a string (--name=value).
type switchFlag struct {
	Name  string
	Value any
}

// launchFlags translates launch options into the switches layered on top of
// chromedp's defaults. User supplied args come last so they win.
func launchFlags(opts browser.LaunchOptions) []switchFlag {
	flags := []switchFlag{
		{Name: "headless", Value: opts.Headless},
		{Name: "hide-scrollbars", Value: opts.Headless},
		{Name: "mute-audio", Value: opts.Headless},
		{Name: "disable-dev-shm-usage", Value: true},
		{Name: "disable-gpu", Value: opts.Headless},
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		flags = append(flags, switchFlag{
			Name:  "window-size",
			Value: fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height),
		})
	}

	// Containers rarely grant the namespaces the sandbox needs.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			switchFlag{Name: "no-sandbox", Value: true},
			switchFlag{Name: "disable-setuid-sandbox", Value: true},
		)
	}

	for _, arg := range opts.Args {
		if f, ok := parseSwitch(arg); ok {
			flags = append(flags, f)
		}
	}
	return flags
}

// parseSwitch reads "--name" or "--name=value". Leading dashes are optional.
func parseSwitch(arg string) (switchFlag, bool) {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimLeft(arg, "-")
	if arg == "" {
		return switchFlag{}, false
	}
	name, value, hasValue := strings.Cut(arg, "=")
	if name == "" {
		return switchFlag{}, false
	}
	if !hasValue {
		return switchFlag{Name: name, Value: true}, true
	}
	return switchFlag{Name: name, Value: value}, true
}

// allocatorOptions builds the exec allocator configuration for a local launch.
func allocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range launchFlags(opts) {
		out = append(out, chromedp.Flag(f.Name, f.Value))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}
