package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/stash/internal/logger"
)

// Locker is implemented by vault.Vault.
type Locker interface {
	LockIfIdle(idle time.Duration) bool
}

// VaultAutoLock locks the vault after idle time without vault activity.
type VaultAutoLock struct {
	job
	vault  Locker
	logger logger.Logger
	idle   time.Duration
}

// NewVaultAutoLock returns nil when idle is 0 or less (auto-lock off).
func NewVaultAutoLock(v Locker, log logger.Logger, idle time.Duration) *VaultAutoLock {
	if idle <= 0 {
		return nil
	}
	return &VaultAutoLock{job: newJob(), vault: v, logger: log, idle: idle}
}

// checkEvery is how often idleness is checked: a quarter of the idle
// time, between one second and thirty.
func (a *VaultAutoLock) checkEvery() time.Duration {
	return min(max(a.idle/4, time.Second), 30*time.Second)
}

func (a *VaultAutoLock) Start(ctx context.Context) error {
	a.every(ctx, a.checkEvery(), func(context.Context) { a.Check() })
	return nil
}

// Check locks the vault if it has been idle long enough.
func (a *VaultAutoLock) Check() bool {
	if a.vault.LockIfIdle(a.idle) {
		a.logger.Info("vault locked after inactivity", logger.Duration("idle", a.idle))
		return true
	}
	return false
}
