/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package triage

import (
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// DefaultWorkdir is the working directory used inside the validation
// container when none is configured.
const DefaultWorkdir = "/app"

// ExecutionEnvironmentSpec describes the sandbox the analysis backend uses to
// build and test candidate fixes. At most one of Image and Dockerfile may be
// set.
type ExecutionEnvironmentSpec struct {
	// Image is a container image reference, e.g. "golang:1.25".
	Image string `json:"image_name,omitempty" yaml:"image"`

	// Dockerfile is literal Dockerfile content.
	Dockerfile string `json:"dockerfile_content,omitempty" yaml:"dockerfile"`

	Workdir       string   `json:"workdir,omitempty" yaml:"workdir"`
	BuildCommands []string `json:"build_commands,omitempty" yaml:"build_commands"`
	TestCommands  []string `json:"test_commands,omitempty" yaml:"test_commands"`
}

// IsZero reports whether neither an image nor a Dockerfile is configured.
func (s ExecutionEnvironmentSpec) IsZero() bool {
	return strings.TrimSpace(s.Image) == "" && strings.TrimSpace(s.Dockerfile) == ""
}

// WithDefaults returns a copy with the working directory defaulted when a
// container is configured.
func (s ExecutionEnvironmentSpec) WithDefaults() ExecutionEnvironmentSpec {
	if !s.IsZero() && s.Workdir == "" {
		s.Workdir = DefaultWorkdir
	}
	return s
}

// Validate checks the spec. validationRequested is true when the run asks the
// backend to build or test candidates, in which case a container must be
// described.
func (s ExecutionEnvironmentSpec) Validate(validationRequested bool) error {
	image := strings.TrimSpace(s.Image)
	dockerfile := strings.TrimSpace(s.Dockerfile)

	switch {
	case image != "" && dockerfile != "":
		return Errorf(KindConfiguration, "execution environment sets both an image and Dockerfile content, exactly one is allowed")
	case image == "" && dockerfile == "" && validationRequested:
		return Errorf(KindConfiguration, "build or test validation requested but the execution environment has neither an image nor Dockerfile content")
	}

	if image != "" {
		if _, err := name.ParseReference(image); err != nil {
			return Errorf(KindConfiguration, "invalid image name %q: %w", image, err)
		}
	}
	if s.Workdir != "" && !strings.HasPrefix(s.Workdir, "/") {
		return Errorf(KindConfiguration, "workdir %q must be an absolute path", s.Workdir)
	}
	return nil
}
