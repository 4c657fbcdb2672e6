package probe

import (
	"github.com/dgnsrekt/pageprobe/internal/browser"
	"github.com/dgnsrekt/pageprobe/internal/capture"
	"github.com/dgnsrekt/pageprobe/internal/config"
)

// BrowserOptions maps environment configuration onto browser session options.
func BrowserOptions(cfg *config.ProbeConfig) browser.Options {
	return browser.Options{
		CDPURL:          cfg.CDPURL,
		ExecPath:        cfg.ExecPath,
		Headless:        cfg.Headless,
		WindowWidth:     cfg.WindowWidth,
		WindowHeight:    cfg.WindowHeight,
		NavigateTimeout: cfg.NavTimeout,
		IdleQuiet:       cfg.IdleQuiet,
		IdleMax:         cfg.IdleMax,
		IdleMaxInflight: cfg.IdleMaxInflight,
		ElementTimeout:  cfg.ElementTimeout,
	}
}

// NewProberFromConfig builds a Prober that launches or attaches to a browser
// as cfg describes.
func NewProberFromConfig(cfg *config.ProbeConfig) *Prober {
	return NewProber(BrowserOpener(BrowserOptions(cfg)), capture.RecorderOptions{
		ErrorStatus:  cfg.ErrorStatus,
		BodyMaxBytes: cfg.BodyMaxBytes,
	})
}
