package hostproc

import (
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// procPool tracks the child processes currently running on one Runner.
// Add and remove are safe to call concurrently with the shutdown reaper.
type procPool struct {
	mu    sync.Mutex
	procs map[*exec.Cmd]struct{}
}

func newProcPool() *procPool {
	return &procPool{procs: make(map[*exec.Cmd]struct{})}
}

func (p *procPool) add(cmd *exec.Cmd) {
	p.mu.Lock()
	p.procs[cmd] = struct{}{}
	p.mu.Unlock()
}

func (p *procPool) remove(cmd *exec.Cmd) {
	p.mu.Lock()
	delete(p.procs, cmd)
	p.mu.Unlock()
}

func (p *procPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.procs)
}

// killAll force-kills every process still registered in the pool.
// Kills are best-effort: an already-dead child is not an error.
func (p *procPool) killAll() {
	p.mu.Lock()
	procs := make([]*exec.Cmd, 0, len(p.procs))
	for cmd := range p.procs {
		procs = append(procs, cmd)
	}
	p.mu.Unlock()

	for _, cmd := range procs {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err == nil {
			logrus.Warnf("Process %d killed because parent process is shutting down", cmd.Process.Pid)
		}
		p.remove(cmd)
	}
}

var (
	reaperOnce sync.Once
	reaperMu   sync.Mutex
	pools      []*procPool
)

// registerPool adds a pool to the process-wide reaper, installing the
// shutdown signal handler the first time any Runner is constructed.
func registerPool(p *procPool) {
	reaperMu.Lock()
	pools = append(pools, p)
	reaperMu.Unlock()

	reaperOnce.Do(installReaper)
}

// installReaper registers a single process-lifetime teardown handler.
// On SIGINT/SIGTERM every tracked child is reclaimed before the signal is
// re-raised with default disposition.
func installReaper() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		logrus.Debugf("Received signal: %v", s)
		KillAll()
		signal.Stop(sig)
		if proc, err := os.FindProcess(os.Getpid()); err == nil {
			_ = proc.Signal(s)
		}
	}()
}

// KillAll force-kills every child process tracked by every Runner in this
// process. It is called automatically on SIGINT/SIGTERM and may also be
// deferred from main for a clean exit path. It does not acquire any
// execution lock: teardown runs once, at shutdown, best-effort.
func KillAll() {
	reaperMu.Lock()
	registered := make([]*procPool, len(pools))
	copy(registered, pools)
	reaperMu.Unlock()

	for _, p := range registered {
		p.killAll()
	}
}
