// Package elog is Euler's process-wide leveled logger.
//
// It mirrors the shape of aistore's cmn/nlog: package-level Infof/Warningf/
// Errorf/Fatalf plus a FastV verbosity gate so hot paths (executor node
// completion, shard dispatch) can skip formatting work entirely when the
// relevant module isn't being traced. The sink is zerolog rather than a
// bespoke ring buffer writer.
package elog

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).With().Timestamp().Logger()

// verbosity holds the single global trace level set via SetV; 0 disables tracing.
var verbosity atomic.Int32

// SetV sets the global verbosity level used by FastV across all modules.
func SetV(level int32) { verbosity.Store(level) }

// FastV reports whether tracing at the given level is enabled. The module
// argument does not affect the result: every module shares one level. Call sites guard expensive formatting with it, e.g.:
//
//	if elog.FastV(5, SModuleOptimizer) { elog.Infof("matched %d embeddings", n) }
func FastV(level int32, _ string) bool { return verbosity.Load() >= level }

const (
	SModuleDAG        = "dag"
	SModuleOptimizer  = "optimize"
	SModuleExecutor   = "exec"
	SModuleShardPool  = "shard"
	SModuleMembership = "membership"
	SModuleWorker     = "worker"
	SModuleCompiler   = "compiler"
	SModuleSession    = "session"
)

func Infof(format string, args ...any)    { base.Info().Msgf(format, args...) }
func Infoln(args ...any)                  { base.Info().Msg(sprint(args...)) }
func Warningf(format string, args ...any) { base.Warn().Msgf(format, args...) }
func Warningln(args ...any)               { base.Warn().Msg(sprint(args...)) }
func Errorf(format string, args ...any)   { base.Error().Msgf(format, args...) }
func Errorln(args ...any)                 { base.Error().Msg(sprint(args...)) }

// Fatalf logs and terminates the process. Reserved for startup/config
// failures; per DESIGN.md, in-query operator failures must never reach
// this — they propagate as a status.Error instead (spec §9 redesign).
func Fatalf(format string, args ...any) {
	base.Fatal().Msgf(format, args...)
}

func sprint(args ...any) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += toString(a)
	}
	return s
}

func toString(a any) string {
	if err, ok := a.(error); ok {
		return err.Error()
	}
	if s, ok := a.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", a)
}
