package config

import (
	"log/slog"
	"path/filepath"
	"strings"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
)

// Validate checks the pipeline section. Duplicate inputs are allowed (the
// file is simply concatenated twice) but logged.
func (c *Config) Validate() error {
	p := c.Pipeline
	if len(p.Inputs) == 0 {
		return derrors.ValidationFailed("pipeline.inputs", "at least one input file is required")
	}
	for _, in := range p.Inputs {
		if strings.TrimSpace(in) == "" {
			return derrors.ValidationFailed("pipeline.inputs", "input paths must not be empty")
		}
	}
	if p.Artifact == "" {
		return derrors.ValidationFailed("pipeline.artifact", "artifact name is required")
	}
	if strings.ContainsAny(p.Artifact, `/\`) || p.Artifact == "." || p.Artifact == ".." {
		return derrors.ValidationFailed("pipeline.artifact", "artifact must be a plain file name")
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		return derrors.ValidationFailed("pipeline.output_dir", "output directory is required")
	}

	// Clean removes the output directory recursively; it must never be the
	// project root or one of its ancestors.
	out := c.OutputDir()
	root := filepath.Clean(c.resolve("."))
	if out == root || isAncestor(out, root) {
		return derrors.ValidationFailed("pipeline.output_dir", "output directory must be inside the project root")
	}
	for _, in := range c.InputPaths() {
		if isAncestor(out, in) {
			return derrors.ValidationFailed("pipeline.output_dir", "output directory must not contain input files")
		}
	}

	if sink := c.ExternalSinkDir(); sink != "" {
		if !filepath.IsAbs(sink) {
			return derrors.ValidationFailed("pipeline.external_sink", "external sink must be an absolute path")
		}
		dest := filepath.Join(sink, p.Artifact)
		if dest == c.ArtifactPath() {
			return derrors.ValidationFailed("pipeline.external_sink", "external copy would overwrite the artifact")
		}
		for _, in := range c.InputPaths() {
			if dest == in {
				return derrors.ValidationFailed("pipeline.external_sink", "external copy would overwrite input "+in)
			}
		}
	}

	// Anything kept under the output directory is destroyed by every clean.
	if h := c.HistoryPath(); h != "" && (h == out || isAncestor(out, h)) {
		return derrors.ValidationFailed("history.path", "run history must not live inside the output directory")
	}
	if m := c.MetricsTextfilePath(); m != "" && (m == out || isAncestor(out, m)) {
		return derrors.ValidationFailed("metrics.textfile", "metrics textfile must not live inside the output directory")
	}

	seen := make(map[string]bool, len(p.Inputs))
	for _, in := range c.InputPaths() {
		if seen[in] {
			slog.Warn("Input listed more than once", "path", in)
		}
		seen[in] = true
	}
	return nil
}

// isAncestor reports whether dir strictly contains path.
func isAncestor(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
