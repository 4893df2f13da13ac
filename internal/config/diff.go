package config

import (
	"reflect"
	"strings"

	logx "motionrt/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like pprof tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Runtime != newCfg.Runtime {
		changed = append(changed, "runtime")
		attrs = append(attrs, logx.Int("runtime.frame_rate", newCfg.Runtime.FrameRate))
	}

	if !reflect.DeepEqual(oldCfg.Journal, newCfg.Journal) {
		changed = append(changed, "journal")
		if newCfg.Journal != nil {
			attrs = append(attrs, logx.String("journal.driver", newCfg.Journal.Driver))
		} else {
			attrs = append(attrs, logx.String("journal.driver", "none"))
		}
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		oldCfg.Pprof.Token != newCfg.Pprof.Token {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sequencer, newCfg.Sequencer) ||
		!reflect.DeepEqual(oldCfg.Sequence, newCfg.Sequence) {
		changed = append(changed, "sequence")
		attrs = append(attrs, logx.Int("sequence.entries", len(newCfg.Sequence)))
	}

	return changed, attrs
}
