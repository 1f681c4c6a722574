package browser

import "errors"

var (
	// ErrUnsupported is returned when a provider cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrClosed is returned by handles whose owner has been closed.
	ErrClosed = errors.New("browser handle is closed")
	// ErrDetached is returned when a frame is no longer part of its page.
	ErrDetached = errors.New("frame is detached")
	// ErrNotInteractable is returned when an element cannot receive input right now.
	ErrNotInteractable = errors.New("element is not interactable")
)
