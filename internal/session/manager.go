package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/arbiter"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

const lockFileName = "jobhuntr.lock"

// Config holds browser session settings.
type Config struct {
	ProfileBaseDir string        `yaml:"profile_base_dir"`
	ChromeBin      string        `yaml:"chrome_bin,omitempty"`
	DebounceWindow time.Duration `yaml:"debounce_window,omitempty"`
	ViewportWidth  int           `yaml:"viewport_width,omitempty"`
	ViewportHeight int           `yaml:"viewport_height,omitempty"`
}

// Manager owns Chrome sessions. Each run gets one session holding the
// identity's profile directory exclusively; a second acquisition of the same
// profile fails fast instead of corrupting it.
type Manager struct {
	cfg    Config
	logger *zap.SugaredLogger

	mu    sync.Mutex
	locks map[string]struct{} // profile dir → held
}

// NewManager creates a session manager.
func NewManager(cfg Config, logger *zap.SugaredLogger) *Manager {
	if cfg.ProfileBaseDir == "" {
		cfg.ProfileBaseDir = filepath.Join(os.TempDir(), "jobhuntr-profiles")
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]struct{}),
	}
}

// Open implements run.SessionFactory. It locks the identity's profile,
// launches Chrome over it and wires the human-intervention arbiter into the
// page.
func (m *Manager) Open(ctx context.Context, tmpl *template.Template, cfg run.Config) (run.Driver, run.Gate, string, run.CloseFunc, error) {
	profileDir := ProfileDir(m.cfg.ProfileBaseDir, cfg.Identity)

	unlock, err := m.lockProfile(profileDir)
	if err != nil {
		return nil, nil, "", nil, err
	}

	browser, closeBrowser, err := m.launch(ctx, profileDir, cfg.Headless)
	if err != nil {
		unlock()
		return nil, nil, "", nil, err
	}

	page, err := browser.Page(protoBlankPage())
	if err != nil {
		closeBrowser()
		unlock()
		return nil, nil, "", nil, fmt.Errorf("%w: open page: %v", run.ErrBrowserLaunchFailed, err)
	}
	if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
		if err := page.SetViewport(viewport(m.cfg.ViewportWidth, m.cfg.ViewportHeight)); err != nil {
			m.logger.Warnw("Failed to set viewport", "error", err)
		}
	}

	window := m.cfg.DebounceWindow
	if window <= 0 {
		window = arbiter.DefaultDebounceWindow
	}
	arb := arbiter.New(window, m.logger)
	stopBinding, err := installArbiter(page, arb)
	if err != nil {
		closeBrowser()
		unlock()
		return nil, nil, "", nil, fmt.Errorf("%w: install arbiter: %v", run.ErrBrowserLaunchFailed, err)
	}

	sessionID := uuid.New().String()
	m.logger.Infow("Browser session ready",
		"session_id", sessionID,
		"profile", filepath.Base(profileDir),
		"headless", cfg.Headless,
	)

	driver := newRodDriver(page, arb, m.logger)
	closeFn := func() {
		if stopBinding != nil {
			_ = stopBinding()
		}
		closeBrowser()
		unlock()
		m.logger.Infow("Browser session closed", "session_id", sessionID)
	}
	return driver, arb, sessionID, closeFn, nil
}

// lockProfile takes the exclusive profile lock via an O_EXCL lock file.
func (m *Manager) lockProfile(profileDir string) (func(), error) {
	m.mu.Lock()
	if _, held := m.locks[profileDir]; held {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", run.ErrProfileLockBusy, filepath.Base(profileDir))
	}
	m.locks[profileDir] = struct{}{}
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.locks, profileDir)
		m.mu.Unlock()
	}

	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		release()
		return nil, fmt.Errorf("%w: create profile dir: %v", run.ErrBrowserLaunchFailed, err)
	}

	lockPath := filepath.Join(profileDir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		release()
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", run.ErrProfileLockBusy, filepath.Base(profileDir))
		}
		return nil, fmt.Errorf("%w: lock profile: %v", run.ErrBrowserLaunchFailed, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()

	return func() {
		_ = os.Remove(lockPath)
		release()
	}, nil
}

func (m *Manager) launch(ctx context.Context, profileDir string, headless bool) (*rod.Browser, func(), error) {
	l := launcher.New().
		Headless(headless).
		UserDataDir(profileDir).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("no-default-browser-check")
	if m.cfg.ChromeBin != "" {
		l = l.Bin(m.cfg.ChromeBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", run.ErrBrowserLaunchFailed, err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("%w: connect: %v", run.ErrBrowserLaunchFailed, err)
	}

	closeFn := func() {
		if err := browser.Close(); err != nil {
			m.logger.Debugw("Browser close", "error", err)
		}
		l.Cleanup()
	}
	return browser, closeFn, nil
}
