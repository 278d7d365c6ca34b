package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore gives each configured level its own sampler budget.
// Levels without a budget, which includes Error and above, pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)
	for level, budget := range cfg.Levels {
		sampled[level] = true
		only := &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l == level }}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick, budget.Initial, budget.Thereafter))
	}
	cores = append(cores, &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return !sampled[l] }})

	return zapcore.NewTee(cores...)
}

// levelFilterCore forwards only the levels allow accepts.
type levelFilterCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.allow(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), allow: c.allow}
}
