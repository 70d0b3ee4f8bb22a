package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(Config{ProfileBaseDir: t.TempDir()}, zap.NewNop().Sugar())
}

func TestProfileLockIsExclusive(t *testing.T) {
	m := newTestManager(t)
	dir := ProfileDir(m.cfg.ProfileBaseDir, "jane@x.io")

	unlock, err := m.lockProfile(dir)
	require.NoError(t, err)

	_, err = m.lockProfile(dir)
	assert.ErrorIs(t, err, run.ErrProfileLockBusy)

	unlock()
	unlock2, err := m.lockProfile(dir)
	require.NoError(t, err)
	unlock2()
}

func TestProfileLockSurvivesStaleFile(t *testing.T) {
	m := newTestManager(t)
	dir := ProfileDir(m.cfg.ProfileBaseDir, "jane@x.io")

	// A lock file left behind by a crashed process still blocks; the busy
	// error names the profile so the operator can clean it up.
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("999999"), 0o644))

	_, err := m.lockProfile(dir)
	assert.ErrorIs(t, err, run.ErrProfileLockBusy)
	assert.Contains(t, err.Error(), "jobhuntr_chrome_profile_jane")
}

func TestDistinctProfilesLockIndependently(t *testing.T) {
	m := newTestManager(t)

	unlockA, err := m.lockProfile(ProfileDir(m.cfg.ProfileBaseDir, "jane@x.io"))
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := m.lockProfile(ProfileDir(m.cfg.ProfileBaseDir, "john@x.io"))
	require.NoError(t, err)
	defer unlockB()
}
