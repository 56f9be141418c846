package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSrc string

// schemaView is the shape the CUE schema constrains.
type schemaView struct {
	Snapshot struct {
		Path string `json:"path"`
	} `json:"snapshot"`
	Worker struct {
		RequestTimeoutMS int64 `json:"request_timeout_ms"`
		OutboxSize       int   `json:"outbox_size"`
	} `json:"worker"`
	Logging struct {
		Level     string `json:"level"`
		Format    string `json:"format"`
		Output    string `json:"output"`
		File      string `json:"file"`
		MaxSizeMB int    `json:"max_size_mb"`
		MaxFiles  int    `json:"max_files"`
	} `json:"logging"`
}

func viewOf(cfg Config) schemaView {
	var v schemaView
	v.Snapshot.Path = cfg.Snapshot.Path
	v.Worker.RequestTimeoutMS = cfg.Worker.RequestTimeout.Milliseconds()
	v.Worker.OutboxSize = cfg.Worker.OutboxSize
	v.Logging.Level = cfg.Logging.Level
	v.Logging.Format = cfg.Logging.Format
	v.Logging.Output = cfg.Logging.Output
	v.Logging.File = cfg.Logging.File
	v.Logging.MaxSizeMB = cfg.Logging.MaxSizeMB
	v.Logging.MaxFiles = cfg.Logging.MaxFiles
	return v
}

// Validate checks cfg against the embedded schema.
// Every violation is reported, not just the first.
func Validate(cfg Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data := ctx.Encode(viewOf(cfg))
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := schema.Unify(data).Validate(cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, strings.TrimSpace(e.Error()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	return nil
}
