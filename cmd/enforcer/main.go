// Command enforcer is the short-lived PreToolUse/PostToolUse hook process:
// it reads one invocation payload from stdin, runs the gate pipeline, and
// writes the host's decision to stdout with the matching exit code.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"goa.design/clue/log"

	"github.com/ozmaster/torus-enforcer/internal/audit"
	"github.com/ozmaster/torus-enforcer/internal/breaker"
	"github.com/ozmaster/torus-enforcer/internal/clock"
	"github.com/ozmaster/torus-enforcer/internal/config"
	"github.com/ozmaster/torus-enforcer/internal/gate"
	"github.com/ozmaster/torus-enforcer/internal/gatecache"
	"github.com/ozmaster/torus-enforcer/internal/hookio"
	"github.com/ozmaster/torus-enforcer/internal/memoryrpc"
	"github.com/ozmaster/torus-enforcer/internal/ratelimit"
	"github.com/ozmaster/torus-enforcer/internal/registry"
	"github.com/ozmaster/torus-enforcer/internal/router"
	"github.com/ozmaster/torus-enforcer/internal/runtime"
	"github.com/ozmaster/torus-enforcer/internal/schema"
	"github.com/ozmaster/torus-enforcer/internal/state"
	"github.com/ozmaster/torus-enforcer/internal/telemetry"
)

func main() {
	var (
		rootF = flag.String("root", defaultRoot(), "pipeline root directory")
		dbgF  = flag.Bool("debug", false, "log request detail at debug level")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	shutdown := telemetry.InitProviders(ctx, "torus-enforcer")
	code := run(ctx, *rootF)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = shutdown(shutdownCtx)
	cancel()

	os.Exit(code)
}

// defaultRoot resolves <root> per §6's "<root> resolution": the hook's
// project directory if set, else the current directory's .claude.
func defaultRoot() string {
	if dir := os.Getenv("CLAUDE_PROJECT_DIR"); dir != "" {
		return filepath.Join(dir, ".claude")
	}
	return filepath.Join(".", ".claude")
}

func run(ctx context.Context, root string) int {
	payload, ok, warning := hookio.Decode(os.Stdin)
	logger := telemetry.NewClueLogger()
	if !ok {
		logger.Warn(ctx, "invalid hook payload, allowing", "reason", warning)
		return 0
	}

	now := time.Now()
	store := state.New(root)
	s := store.Load(payload.SessionID, now)
	s.SessionID = payload.SessionID
	for _, w := range s.Warnings {
		logger.Warn(ctx, "state load warning", "session_id", payload.SessionID, "detail", w)
	}

	profiles, err := config.LoadProfiles(filepath.Join(root, "profiles.yaml"))
	if err != nil {
		logger.Warn(ctx, "profiles config load failed, using defaults", "error", err.Error())
		profiles = config.DefaultProfiles()
	}
	reg, err := config.LoadRegistry(filepath.Join(root, "registry.yaml"), gate.BuiltinEntries())
	if err != nil {
		logger.Warn(ctx, "registry config load failed, using builtin", "error", err.Error())
		reg, err = registry.New(gate.BuiltinEntries())
		if err != nil {
			// gate.BuiltinEntries is a compile-time constant; a failure here
			// is a programming error, not a runtime condition to fail open
			// over.
			panic(err)
		}
	}

	br := breaker.Load(filepath.Join(root, ".gate_circuits.json"))
	rl := ratelimit.Load(filepath.Join(root, ".rate_limits.json"), ratelimit.DefaultConfigs())
	rtr := router.New(reg, filepath.Join(root, ".q_table.json"))
	cache := gatecache.New()
	trail := audit.NewTrail(root)
	memBreakerPath := filepath.Join(root, ".memory_circuit.json")
	memBr := breaker.Load(memBreakerPath)
	memBr.Config = memoryrpc.BreakerConfig()
	memClient := memoryrpc.New(filepath.Join(root, ".memory.sock"), memBr)

	if !rl.Allow("tool:"+payload.ToolName, now) {
		logger.Warn(ctx, "tool call rate bucket exhausted", "tool", payload.ToolName)
	}

	validator := schema.New(filepath.Join(root, "schemas"))
	if ok, warning := validator.Validate(payload.ToolName, payload.ToolInput); !ok {
		logger.Warn(ctx, "tool_input schema violation, passing through", "tool", payload.ToolName, "detail", warning)
		if err := trail.Append(audit.Record{
			ID:         audit.NewID(now),
			Ts:         now,
			SessionID:  payload.SessionID,
			Tool:       payload.ToolName,
			Gate:       "schema_validation",
			Blocked:    false,
			Escalation: gate.EscalationWarn,
			Severity:   gate.SeverityWarn,
			Message:    warning,
		}); err != nil {
			logger.Warn(ctx, "schema violation audit append failed", "error", err.Error())
		}
	}

	rt := runtime.New(runtime.Deps{
		Registry: reg,
		Router:   rtr,
		Breaker:  br,
		Cache:    cache,
		Profiles: profiles,
		Trail:    trail,
		Gates:    gate.BuiltinGates(filepath.Join(root, ".file_claims.json"), memClient),
		Logger:   logger,
		Metrics:  telemetry.NewClueMetrics(),
		Tracer:   telemetry.NewClueTracer(),
		Events:   telemetry.NewEventBus(100),
		Clock:    clock.Real{},
	})

	outcome := rt.Run(ctx, payload, s)

	if err := store.WriteSideband(payload.SessionID, outcome.Patch); err != nil {
		logger.Warn(ctx, "sideband write failed", "session_id", payload.SessionID, "error", err.Error())
	}
	if err := breaker.Save(filepath.Join(root, ".gate_circuits.json"), br); err != nil {
		logger.Warn(ctx, "breaker save failed", "error", err.Error())
	}
	if err := breaker.Save(memBreakerPath, memBr); err != nil {
		logger.Warn(ctx, "memory breaker save failed", "error", err.Error())
	}
	if err := rtr.Flush(); err != nil {
		logger.Warn(ctx, "q-table flush failed", "error", err.Error())
	}
	if err := ratelimit.Save(filepath.Join(root, ".rate_limits.json"), rl); err != nil {
		logger.Warn(ctx, "rate limiter save failed", "error", err.Error())
	}

	data, err := outcome.Decision.Encode()
	if err != nil {
		logger.Error(ctx, "decision encode failed", "error", err.Error())
		return 0
	}
	if err := hookio.Write(os.Stdout, data); err != nil {
		logger.Error(ctx, "decision write failed", "error", err.Error())
	}
	return outcome.Decision.Kind.ExitCode()
}
