package observability

import (
	"fmt"
	"os"
	"syscall"
)

// withAppendLock runs appendFn while holding an exclusive flock on the
// sidecar file "<logPath>.lock", so separate pulse processes sharing one
// event log never interleave partial lines.
func withAppendLock(logPath string, appendFn func() error) error {
	lock, err := os.OpenFile(logPath+".lock", os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("opening event log lock: %w", err)
	}
	defer lock.Close()

	fd := int(lock.Fd())
	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		return fmt.Errorf("locking event log: %w", err)
	}
	defer func() { _ = syscall.Flock(fd, syscall.LOCK_UN) }()

	return appendFn()
}
