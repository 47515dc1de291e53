package launcher

import (
	"context"
	"fmt"

	"github.com/pkg/browser"
)

// SystemOpener hands URLs to the operating system's default handler.
type SystemOpener struct {
	open func(string) error
}

func NewSystemOpener() *SystemOpener {
	return &SystemOpener{open: browser.OpenURL}
}

func (o *SystemOpener) OpenURL(_ context.Context, url string) error {
	if err := o.open(url); err != nil {
		return fmt.Errorf("failed to open %q: %w", url, err)
	}
	return nil
}
