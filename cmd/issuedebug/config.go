/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chainguard.dev/issuedebug/triage"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// envConfig is the configuration read from the environment. Flags override
// every value.
type envConfig struct {
	GitHubToken    string `env:"GITHUB_TOKEN"`
	AppID          int64  `env:"GITHUB_APP_ID"`
	InstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID"`
	PrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH"`
	GitHubAPIURL   string `env:"GITHUB_API_URL"`

	BackendURL   string `env:"PROMETHEUS_URL,default=http://localhost:9002"`
	BackendToken string `env:"PROMETHEUS_TOKEN"`

	// Identity names published branches and authors their commits.
	Identity string `env:"ISSUEDEBUG_IDENTITY,default=issuedebug"`
}

func (a *app) loadEnv(ctx context.Context) (envConfig, error) {
	var cfg envConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: a.lookuper,
	}); err != nil {
		return envConfig{}, fmt.Errorf("processing environment: %w", err)
	}
	return cfg, nil
}

// credential builds the GitHub credential, preferring a token.
func (e envConfig) credential(tokenFlag string) (triage.Credential, error) {
	token := e.GitHubToken
	if tokenFlag != "" {
		token = tokenFlag
	}
	if token != "" || (e.AppID == 0 && e.InstallationID == 0 && e.PrivateKeyPath == "") {
		return triage.Credential{Token: token}, nil
	}

	cred := triage.Credential{AppID: e.AppID, InstallationID: e.InstallationID}
	if e.PrivateKeyPath != "" {
		key, err := os.ReadFile(e.PrivateKeyPath)
		if err != nil {
			return triage.Credential{}, triage.Errorf(triage.KindConfiguration, "reading GitHub App private key: %w", err)
		}
		cred.PrivateKey = key
	}
	return cred, nil
}

// environmentFile is the YAML form of an execution environment.
type environmentFile struct {
	triage.ExecutionEnvironmentSpec `yaml:",inline"`

	// DockerfilePath is read into Dockerfile, relative to the file itself.
	DockerfilePath string `yaml:"dockerfile_path"`
}

func loadEnvironmentFile(path string) (triage.ExecutionEnvironmentSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return triage.ExecutionEnvironmentSpec{}, triage.Errorf(triage.KindConfiguration, "reading environment file: %w", err)
	}

	var f environmentFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return triage.ExecutionEnvironmentSpec{}, triage.Errorf(triage.KindConfiguration, "parsing environment file %s: %w", path, err)
	}

	spec := f.ExecutionEnvironmentSpec
	if f.DockerfilePath != "" {
		if spec.Dockerfile != "" {
			return triage.ExecutionEnvironmentSpec{}, triage.Errorf(triage.KindConfiguration, "environment file %s sets both dockerfile and dockerfile_path", path)
		}
		p := f.DockerfilePath
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return triage.ExecutionEnvironmentSpec{}, triage.Errorf(triage.KindConfiguration, "reading Dockerfile: %w", err)
		}
		spec.Dockerfile = string(content)
	}
	return spec, nil
}
