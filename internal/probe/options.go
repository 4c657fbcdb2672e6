package probe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/pageprobe/internal/config"
)

// ErrUsage marks invalid probe input; no browser is started for it.
var ErrUsage = errors.New("usage error")

// ErrNavigation marks a failed page load; no artifacts are written for it.
var ErrNavigation = errors.New("navigation failed")

// ErrBrowser marks a browser that could not be launched or attached to.
var ErrBrowser = errors.New("browser unavailable")

// DefaultOutputDir is used when no output directory is given.
const DefaultOutputDir = "./probe_output"

// Options describes one probe run.
type Options struct {
	URL       string
	OutputDir string
	Plan      *config.Plan

	ConsoleCap  int
	FullPage    bool
	A11y        bool
	Markdown    bool
	SettleDelay time.Duration
}

// Validate fills defaults and rejects unusable input with ErrUsage.
func (o *Options) Validate() error {
	o.URL = strings.TrimSpace(o.URL)
	if o.URL == "" {
		return fmt.Errorf("%w: url is required", ErrUsage)
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q: %v", ErrUsage, o.URL, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: url %q has no host", ErrUsage, o.URL)
		}
	case "file":
	default:
		return fmt.Errorf("%w: url %q must be absolute http, https or file", ErrUsage, o.URL)
	}

	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.Plan == nil {
		o.Plan = config.DefaultPlan()
	} else if err := o.Plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if o.ConsoleCap < 0 {
		o.ConsoleCap = 0
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	return nil
}
