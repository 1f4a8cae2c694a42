package scheduler

import (
	"path/filepath"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PIDFile marks the process that owns the check loop, so a second daemon or
// a one-off check refuses to start while it runs.
type PIDFile struct {
	lock lockfile.Lockfile
}

// AcquirePIDFile locks path with the current pid. A file naming a live process
// returns ErrAlreadyRunning; one naming a dead process or holding garbage is
// taken over.
func AcquirePIDFile(path string) (*PIDFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve PID file %s", path)
	}
	lock, err := lockfile.New(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid PID file %s", abs)
	}

	logger := log.WithFields(log.Fields{"component": "scheduler", "pid_file": abs})
	if _, err := lock.GetOwner(); errors.Is(err, lockfile.ErrDeadOwner) || errors.Is(err, lockfile.ErrInvalidPid) {
		logger.WithError(err).Warn("Taking over stale PID file")
	}

	if err := lock.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			if owner, oerr := lock.GetOwner(); oerr == nil {
				return nil, errors.Wrapf(ErrAlreadyRunning, "process %d holds %s", owner.Pid, abs)
			}
			return nil, errors.Wrapf(ErrAlreadyRunning, "%s is locked", abs)
		}
		return nil, errors.Wrapf(err, "failed to lock PID file %s", abs)
	}
	return &PIDFile{lock: lock}, nil
}

// Release removes the file if it still names this process.
func (p *PIDFile) Release() error {
	err := p.lock.Unlock()
	if errors.Is(err, lockfile.ErrRogueDeletion) {
		log.WithFields(log.Fields{"component": "scheduler", "pid_file": string(p.lock)}).
			Warn("PID file was removed or taken over by another process")
		return nil
	}
	return errors.Wrapf(err, "failed to remove PID file %s", string(p.lock))
}
