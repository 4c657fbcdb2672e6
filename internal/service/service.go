// Package service runs probes on behalf of the HTTP API and manages their stored runs.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/pageprobe/internal/capture"
	"github.com/dgnsrekt/pageprobe/internal/config"
	"github.com/dgnsrekt/pageprobe/internal/notify"
	"github.com/dgnsrekt/pageprobe/internal/probe"
	"github.com/dgnsrekt/pageprobe/internal/relay"
	"github.com/dgnsrekt/pageprobe/internal/runstore"
	"github.com/dgnsrekt/pageprobe/internal/storage"
)

const notifyTimeout = 10 * time.Second

// Runner executes one probe. *probe.Prober implements it.
type Runner interface {
	Run(ctx context.Context, opts probe.Options, observe probe.Observer) (*probe.Result, error)
}

// Defaults apply to every request that does not override them.
type Defaults struct {
	Plan        *config.Plan
	ConsoleCap  int
	FullPage    bool
	A11y        bool
	Markdown    bool
	SettleDelay time.Duration
	RunTimeout  time.Duration
	NotifyURL   string
}

// ProbeRequest is one API probe request. Nil pointers take the server default.
type ProbeRequest struct {
	URL          string
	ConsoleCap   *int
	FullPage     *bool
	A11y         *bool
	Markdown     *bool
	Selectors    []config.SelectorEntry
	Interactions []config.Interaction
}

// RunResult is a stored run together with its report.
type RunResult struct {
	Run    runstore.RunMeta
	Report *probe.Report
}

// Health describes the service state.
type Health struct {
	Status      string `json:"status"`
	Busy        bool   `json:"busy"`
	Subscribers int    `json:"subscribers"`
}

// Service serialises probe runs and keeps their artifacts in a run store.
type Service struct {
	runner   Runner
	store    *runstore.Store
	journal  *storage.WriterRegistry
	broker   *relay.Broker
	defaults Defaults
	client   *http.Client

	running sync.Mutex
	busy    sync.Mutex
	active  bool

	newID func() string
	now   func() time.Time
}

// NewService wires a service. journal and broker may be nil.
func NewService(runner Runner, store *runstore.Store, journal *storage.WriterRegistry, broker *relay.Broker, defaults Defaults) *Service {
	if defaults.Plan == nil {
		defaults.Plan = config.DefaultPlan()
	}
	return &Service{
		runner:   runner,
		store:    store,
		journal:  journal,
		broker:   broker,
		defaults: defaults,
		client:   &http.Client{Timeout: notifyTimeout},
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &CodedError{Code: CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) setActive(v bool) {
	s.busy.Lock()
	s.active = v
	s.busy.Unlock()
}

// Busy reports whether a probe is running.
func (s *Service) Busy() bool {
	s.busy.Lock()
	defer s.busy.Unlock()
	return s.active
}

func (s *Service) options(req ProbeRequest, outputDir string) (probe.Options, error) {
	opts := probe.Options{
		URL:         strings.TrimSpace(req.URL),
		OutputDir:   outputDir,
		Plan:        s.defaults.Plan,
		ConsoleCap:  s.defaults.ConsoleCap,
		FullPage:    s.defaults.FullPage,
		A11y:        s.defaults.A11y,
		Markdown:    s.defaults.Markdown,
		SettleDelay: s.defaults.SettleDelay,
	}
	if req.ConsoleCap != nil {
		opts.ConsoleCap = *req.ConsoleCap
	}
	if req.FullPage != nil {
		opts.FullPage = *req.FullPage
	}
	if req.A11y != nil {
		opts.A11y = *req.A11y
	}
	if req.Markdown != nil {
		opts.Markdown = *req.Markdown
	}
	if len(req.Selectors) > 0 || len(req.Interactions) > 0 {
		plan := &config.Plan{Selectors: req.Selectors, Interactions: req.Interactions}
		if len(plan.Selectors) == 0 {
			plan.Selectors = s.defaults.Plan.Selectors
		}
		if err := plan.Validate(); err != nil {
			return probe.Options{}, newError(CodeValidation, err.Error(), nil)
		}
		opts.Plan = plan
	}
	if err := opts.Validate(); err != nil {
		return probe.Options{}, newError(CodeValidation, strings.TrimPrefix(err.Error(), probe.ErrUsage.Error()+": "), nil)
	}
	if u, err := url.Parse(opts.URL); err == nil && u.Scheme == "file" {
		return probe.Options{}, newError(CodeValidation, "file urls cannot be probed through the API", nil)
	}
	return opts, nil
}

// RunProbe runs one probe and stores its artifacts as a new run. Only one probe
// runs at a time; a concurrent call fails with PROBE_BUSY.
func (s *Service) RunProbe(ctx context.Context, req ProbeRequest) (RunResult, error) {
	if err := s.requireNonEmpty(req.URL, "url"); err != nil {
		return RunResult{}, err
	}
	if !s.running.TryLock() {
		return RunResult{}, newError(CodeProbeBusy, "a probe is already running", nil)
	}
	defer s.running.Unlock()
	s.setActive(true)
	defer s.setActive(false)

	id := s.newID()
	dir, err := s.store.RunDir(id)
	if err != nil {
		return RunResult{}, newError(CodeStoreFailure, "allocate run", err)
	}
	opts, err := s.options(req, dir)
	if err != nil {
		return RunResult{}, err
	}

	if s.defaults.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaults.RunTimeout)
		defer cancel()
	}

	started := s.now()
	res, runErr := s.runner.Run(ctx, opts, s.observer(id))
	record := probe.NewRunRecord(opts.URL, res, runErr, started)
	record.RunID = id

	if runErr != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Debug("failed run cleanup failed", "id", id, "error", rmErr)
		}
		s.appendJournal(opts.URL, "runs", record)
		s.sendNotification(notify.FailureMessage(opts.URL, runErr))
		return RunResult{}, classify(runErr)
	}

	meta := runstore.RunMeta{
		ID:                id,
		URL:               opts.URL,
		FinalURL:          res.Report.FinalURL,
		Title:             res.Report.Title,
		Status:            runstore.StatusSucceeded,
		ConsoleCount:      res.Report.ConsoleTotal,
		NetworkIssueCount: len(res.Report.NetworkIssues),
		ViolationCount:    violationCount(res.Report),
		DurationMS:        res.Report.DurationMS,
		CreatedAt:         started.UTC(),
	}
	saved, err := s.store.Save(meta, nil)
	if err != nil {
		return RunResult{}, newError(CodeStoreFailure, "save run", err)
	}

	s.appendJournal(opts.URL, "runs", record)
	for _, issue := range res.Report.NetworkIssues {
		s.appendJournal(opts.URL, "network", struct {
			RunID string `json:"runId"`
			capture.NetworkIssue
		}{RunID: id, NetworkIssue: issue})
	}
	if s.broker != nil {
		s.broker.PublishJSON(relay.FeedRun, saved)
	}
	s.sendNotification(notify.CompletionMessage(res.Report))

	slog.Info("probe run stored", "id", id, "url", opts.URL, "artifacts", len(saved.Artifacts))
	return RunResult{Run: saved, Report: res.Report}, nil
}

func (s *Service) observer(id string) probe.Observer {
	if s.broker == nil {
		return nil
	}
	return func(ev probe.Event) {
		s.broker.PublishJSON(relay.FeedProbe, struct {
			RunID string `json:"runId"`
			probe.Event
		}{RunID: id, Event: ev})
	}
}

func (s *Service) appendJournal(rawURL, kind string, record any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(rawURL, kind, record); err != nil {
		slog.Warn("journal append failed", "kind", kind, "url", rawURL, "error", err)
	}
}

func (s *Service) sendNotification(message string) {
	if s.defaults.NotifyURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notify.Send(ctx, s.client, s.defaults.NotifyURL, message); err != nil {
			slog.Warn("notification failed", "endpoint", s.defaults.NotifyURL, "error", err)
		}
	}()
}

func classify(err error) error {
	switch {
	case errors.Is(err, probe.ErrUsage):
		return newError(CodeValidation, err.Error(), nil)
	case errors.Is(err, probe.ErrNavigation):
		return newError(CodeNavigationFailed, "navigation failed", err)
	case errors.Is(err, probe.ErrBrowser):
		return newError(CodeBrowserUnavailable, "browser unavailable", err)
	default:
		return newError(CodeProbeFailed, "probe failed", err)
	}
}

func violationCount(r *probe.Report) int {
	if r == nil || r.A11y == nil {
		return 0
	}
	audit, ok := r.A11y.Get()
	if !ok {
		return 0
	}
	return len(audit.Violations)
}

func (s *Service) ListRuns(ctx context.Context) ([]runstore.RunMeta, error) {
	runs, err := s.store.List()
	if err != nil {
		return nil, newError(CodeStoreFailure, "list runs", err)
	}
	return runs, nil
}

func (s *Service) GetRun(ctx context.Context, id string) (runstore.RunMeta, error) {
	if err := s.requireNonEmpty(id, "run_id"); err != nil {
		return runstore.RunMeta{}, err
	}
	meta, err := s.store.Get(strings.TrimSpace(id))
	if err != nil {
		return runstore.RunMeta{}, storeErr(err)
	}
	return meta, nil
}

func (s *Service) ReadArtifact(ctx context.Context, id, name string) ([]byte, string, error) {
	if err := s.requireNonEmpty(id, "run_id"); err != nil {
		return nil, "", err
	}
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return nil, "", err
	}
	data, ct, err := s.store.ReadArtifact(strings.TrimSpace(id), strings.TrimSpace(name))
	if err != nil {
		return nil, "", storeErr(err)
	}
	return data, ct, nil
}

func (s *Service) DeleteRun(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "run_id"); err != nil {
		return err
	}
	if err := s.store.Delete(strings.TrimSpace(id)); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Busy: s.Busy()}
	if s.broker != nil {
		h.Subscribers = s.broker.ClientCount()
	}
	return h
}

func storeErr(err error) error {
	switch {
	case errors.Is(err, runstore.ErrNotFound):
		return &CodedError{Code: CodeRunNotFound, Message: err.Error()}
	case errors.Is(err, runstore.ErrInvalid):
		return &CodedError{Code: CodeValidation, Message: err.Error()}
	default:
		return newError(CodeStoreFailure, "run store", err)
	}
}
