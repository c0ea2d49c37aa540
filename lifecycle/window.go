package lifecycle

import "context"

// Window is the desktop window the coordinator reacts to. The desktop
// package adapts the Wails runtime to it.
type Window interface {
	Hide(ctx context.Context)
	Show(ctx context.Context)
}

type noopWindow struct{}

func (noopWindow) Hide(ctx context.Context) {}
func (noopWindow) Show(ctx context.Context) {}
