package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/manifest"
)

// SpawnBuilder provides a fluent API for detached provider spawns. It
// mirrors the shape of the orchestration client's process spawn builder
// but drops piped stdio in favor of fire-and-forget: once launched, the
// daemon communicates with the provider exclusively over the IPC socket,
// never over the child's stdin/stdout/stderr.
type SpawnBuilder struct {
	ctx            context.Context
	execPath       string
	args           []string
	env            []string
	providerName   string
	commandFactory func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewSpawnBuilder creates a new SpawnBuilder with the given context.
func NewSpawnBuilder(ctx context.Context) *SpawnBuilder {
	return &SpawnBuilder{ctx: ctx, providerName: "unknown"}
}

func (b *SpawnBuilder) WithExecutable(path string, args []string) *SpawnBuilder {
	b.execPath = path
	b.args = args
	return b
}

func (b *SpawnBuilder) WithEnv(env []string) *SpawnBuilder {
	b.env = env
	return b
}

func (b *SpawnBuilder) WithProviderName(name string) *SpawnBuilder {
	b.providerName = name
	return b
}

// WithCommandFactory overrides command construction for testing.
func (b *SpawnBuilder) WithCommandFactory(fn func(ctx context.Context, name string, args ...string) *exec.Cmd) *SpawnBuilder {
	b.commandFactory = fn
	return b
}

// Build validates configuration, starts the detached process, and returns
// its pid. The child is placed in its own session (Setsid) so it survives
// the daemon's controlling terminal going away, and its stdio is wired to
// /dev/null: a launched provider talks to the daemon only over the socket
// path passed in its args.
func (b *SpawnBuilder) Build() (int, error) {
	if b.execPath == "" {
		return 0, fmt.Errorf("spawn builder: executable path is required")
	}

	var cmd *exec.Cmd
	if b.commandFactory != nil {
		cmd = b.commandFactory(b.ctx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- exec path and args come from a validated provider manifest, not raw user input
		cmd = exec.Command(b.execPath, b.args...)
	}
	if len(b.env) > 0 {
		cmd.Env = b.env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("spawn builder: open devnull: %w", err)
	}
	defer devNull.Close()
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	log.Debug(log.CatLauncher, "spawning provider", "provider", b.providerName, "exec", b.execPath)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn builder: failed to start %s: %w", b.providerName, err)
	}

	pid := cmd.Process.Pid
	log.Debug(log.CatLauncher, "provider started", "provider", b.providerName, "pid", pid)

	// Detach: release the child from this process's wait-set so it becomes
	// the responsibility of init once it exits. The daemon tracks liveness
	// through heartbeats over the socket, not through wait(2).
	go func() {
		_ = cmd.Process.Release()
	}()

	return pid, nil
}

// Launcher coordinates candidate selection, back-off, and detached spawn
// for a single logical provider slot (the daemon keeps one Launcher
// running as long as any session in the store is non-terminal, per §4.5).
type Launcher struct {
	mu                  sync.Mutex
	tracker             *RetryTracker
	socketPath          string
	legacyFallbackPath  string
	defaultFallbackPath string
	now                 func() time.Time
	spawn               func(ctx context.Context, c Candidate) (int, error)
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(l *Launcher) { l.now = now }
}

// WithSpawnFunc overrides the spawn mechanism, for testing without
// actually exec-ing a process.
func WithSpawnFunc(fn func(ctx context.Context, c Candidate) (int, error)) Option {
	return func(l *Launcher) { l.spawn = fn }
}

// NewLauncher constructs a Launcher for the given socket path and legacy
// fallback paths (§4.4's BB_AUTH_FALLBACK_PATH override and the
// configured default fallback binary).
func NewLauncher(socketPath, legacyFallbackPath, defaultFallbackPath string, opts ...Option) *Launcher {
	l := &Launcher{
		tracker:             NewRetryTracker(),
		socketPath:          socketPath,
		legacyFallbackPath:  legacyFallbackPath,
		defaultFallbackPath: defaultFallbackPath,
		now:                 time.Now,
	}
	l.spawn = func(ctx context.Context, c Candidate) (int, error) {
		return NewSpawnBuilder(ctx).
			WithExecutable(c.Exec, c.Args).
			WithEnv(c.Env).
			WithProviderName(c.DisplayName).
			Build()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Attempt runs one launch attempt: select a candidate from manifests,
// respect back-off throttling for that candidate's id, and spawn it. It
// returns the pid spawned, the chosen candidate id, and a detail string
// describing why nothing was launched when spawning is skipped.
func (l *Launcher) Attempt(ctx context.Context, manifests []manifest.Manifest) (pid int, candidateID string, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidate, skipReason := SelectCandidate(manifests, l.legacyFallbackPath, l.defaultFallbackPath, l.socketPath)
	if skipReason != "" {
		return 0, "", skipReason
	}

	nowMs := l.now().UnixMilli()
	if ok, reason := l.tracker.CanAttempt(candidate.ID, nowMs); !ok {
		return 0, candidate.ID, reason
	}

	spawnedPID, err := l.spawn(ctx, candidate)
	if err != nil {
		l.tracker.MarkFailure(candidate.ID, nowMs)
		log.Warn(log.CatLauncher, "provider launch failed", "candidate", candidate.ID, "error", err)
		return 0, candidate.ID, "skip: launch failed: " + err.Error()
	}

	l.tracker.MarkSuccess(candidate.ID)
	return spawnedPID, candidate.ID, ""
}
