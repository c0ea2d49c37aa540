package desktop

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// wailsWindow drives the main window through the Wails runtime. The context
// must be one Wails handed to a lifecycle callback.
type wailsWindow struct{}

func (wailsWindow) Hide(ctx context.Context) {
	runtime.WindowHide(ctx)
}

func (wailsWindow) Show(ctx context.Context) {
	runtime.WindowUnminimise(ctx)
	runtime.WindowShow(ctx)
}

func openInBrowser(ctx context.Context, url string) error {
	runtime.BrowserOpenURL(ctx, url)
	return nil
}
