// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/lapacek-labs/retry-fanout/api/v1alpha1"
)

// Default returns a policy with every spec field defaulted.
func Default() *v1alpha1.BatchPolicy {
	policy := &v1alpha1.BatchPolicy{}
	policy.APIVersion = v1alpha1.GroupVersion
	policy.Kind = v1alpha1.BatchPolicyKind
	policy.Name = "default"
	policy.Spec = v1alpha1.DefaultSpec()
	return policy
}

// Load reads a BatchPolicy from a YAML or JSON file. Unknown fields are
// rejected. The returned spec is defaulted and validated.
func Load(path string) (*v1alpha1.BatchPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch policy %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*v1alpha1.BatchPolicy, error) {
	policy := &v1alpha1.BatchPolicy{}
	if err := yaml.UnmarshalStrict(data, policy); err != nil {
		return nil, fmt.Errorf("decode batch policy: %w", err)
	}
	if policy.Kind != "" && policy.Kind != v1alpha1.BatchPolicyKind {
		return nil, fmt.Errorf("unexpected kind %q, want %q", policy.Kind, v1alpha1.BatchPolicyKind)
	}
	if policy.APIVersion != "" && policy.APIVersion != v1alpha1.GroupVersion {
		return nil, fmt.Errorf("unexpected apiVersion %q, want %q", policy.APIVersion, v1alpha1.GroupVersion)
	}
	policy.APIVersion = v1alpha1.GroupVersion
	policy.Kind = v1alpha1.BatchPolicyKind

	policy.Spec.Default()
	if err := policy.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch policy %q: %w", policy.Name, err)
	}
	return policy, nil
}

// LoadOrDefault falls back to Default when path is empty or does not exist.
func LoadOrDefault(path string) (*v1alpha1.BatchPolicy, error) {
	if path == "" {
		return Default(), nil
	}
	policy, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return policy, err
}

// WriteReport stores policy, status included, as YAML. The file is replaced
// atomically.
func WriteReport(path string, policy *v1alpha1.BatchPolicy) error {
	data, err := yaml.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode batch report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.yaml")
	if err != nil {
		return fmt.Errorf("write batch report %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write batch report %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write batch report %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write batch report %s: %w", path, err)
	}
	return nil
}
