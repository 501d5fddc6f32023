package oauth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener shows an authorization URL to the user.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

// BrowserOpener opens URLs with the platform's default browser.
type BrowserOpener struct {
	// GOOS overrides runtime.GOOS; empty means the running platform.
	GOOS string
}

// Command returns the command that opens url.
func (b BrowserOpener) Command(url string) (*exec.Cmd, error) {
	goos := b.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	default:
		return nil, fmt.Errorf("no browser opener for %s", goos)
	}
}

// Open starts the browser and does not wait for it to exit.
func (b BrowserOpener) Open(url string) error {
	cmd, err := b.Command(url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
