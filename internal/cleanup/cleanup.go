// Package cleanup implements the scope-guarded teardown described in
// spec §4.7: every resource the engine creates registers a guard that
// runs on every exit path from its enclosing step — normal return,
// error, panic, or signal. Guards discharge in reverse registration
// order, mirroring a stack of deferred cleanups.
package cleanup

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Scope collects guards for one step of the run loop and discharges them
// exactly once, regardless of how that step exits.
type Scope struct {
	mu         sync.Mutex
	guards     []func()
	logger     *logrus.Entry
	discharged bool
}

// NewScope creates an empty scope. Call Discharge (typically deferred)
// before the scope goes out of reach.
func NewScope(logger *logrus.Entry) *Scope {
	return &Scope{logger: logger}
}

// Add registers a guard to run at discharge time. Guards run in reverse
// order, last-registered first, so that a resource depending on an
// earlier one (e.g. a container depending on a temp directory) is torn
// down before its dependency.
func (s *Scope) Add(guard func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guards = append(s.guards, guard)
}

// Discharge runs every registered guard, most-recent first. Safe to call
// more than once; only the first call has effect.
func (s *Scope) Discharge() {
	s.mu.Lock()
	if s.discharged {
		s.mu.Unlock()
		return
	}
	s.discharged = true
	guards := s.guards
	s.mu.Unlock()

	for i := len(guards) - 1; i >= 0; i-- {
		guards[i]()
	}
}

// TempDirGuard registers removal of dir, matching spec §4.7's
// temp-directory guard around the archive staging area.
func (s *Scope) TempDirGuard(dir string) {
	s.Add(func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.WithField("dir", dir).WithError(err).Warn("failed to remove temporary directory")
		}
	})
}

// ContainerGuard registers best-effort container removal. remove should
// be Executor.Remove bound to containerID; it already swallows its own
// errors (best-effort per spec §4.5), so this just calls it.
func (s *Scope) ContainerGuard(remove func()) {
	s.Add(remove)
}

// TagGuard registers best-effort deletion of a freshly created local tag
// when write_local_cache is false, per spec §4.7.
func (s *Scope) TagGuard(enabled bool, deleteTag func()) {
	if !enabled {
		return
	}
	s.Add(deleteTag)
}
