// Copyright 2026 The modelgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves secret references in configuration values.
// References use the form ${secret:NAME}; backends are queried in priority
// order (environment first, then the OS keyring).
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/zalando/go-keyring"
)

// ErrSecretNotFound is returned when no backend holds the key.
var ErrSecretNotFound = errors.New("secret not found")

// keyringService namespaces modelgate's entries in the OS keyring.
const keyringService = "modelgate"

var secretRef = regexp.MustCompile(`\$\{secret:([A-Za-z0-9_.-]+)\}`)

// Backend provides read access to one secret store.
type Backend interface {
	// Name identifies the backend ("env", "keyring").
	Name() string

	// Get retrieves a secret by key. Returns ErrSecretNotFound when absent.
	Get(ctx context.Context, key string) (string, error)

	// Priority orders resolution (higher = checked first).
	Priority() int
}

// EnvBackend reads secrets from environment variables, keyed verbatim.
type EnvBackend struct{}

func (EnvBackend) Name() string  { return "env" }
func (EnvBackend) Priority() int { return 100 }

func (EnvBackend) Get(_ context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// KeyringBackend reads secrets from the OS keyring under the modelgate
// service.
type KeyringBackend struct{}

func (KeyringBackend) Name() string  { return "keyring" }
func (KeyringBackend) Priority() int { return 50 }

func (KeyringBackend) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(keyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("keyring lookup failed: %w", err)
	}
	return value, nil
}

// Resolver queries backends in priority order.
type Resolver struct {
	backends []Backend
}

// NewResolver creates a resolver over the given backends. With none given
// it uses the default env and keyring backends.
func NewResolver(backends ...Backend) *Resolver {
	if len(backends) == 0 {
		backends = []Backend{EnvBackend{}, KeyringBackend{}}
	}
	sorted := make([]Backend, len(backends))
	copy(sorted, backends)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Resolver{backends: sorted}
}

// Get returns the first backend's value for the key.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	for _, backend := range r.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// Resolve expands every ${secret:NAME} reference in the value. Values
// without references pass through unchanged.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	matches := secretRef.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var resolveErr error
	resolved := secretRef.ReplaceAllStringFunc(value, func(ref string) string {
		key := secretRef.FindStringSubmatch(ref)[1]
		secret, err := r.Get(ctx, key)
		if err != nil {
			resolveErr = err
			return ref
		}
		return secret
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}

// ResolveHeaders resolves references in every header value, returning a new
// map. A nil input yields nil.
func (r *Resolver) ResolveHeaders(ctx context.Context, headers map[string]string) (map[string]string, error) {
	if headers == nil {
		return nil, nil
	}
	resolved := make(map[string]string, len(headers))
	for name, value := range headers {
		v, err := r.Resolve(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve header %s: %w", name, err)
		}
		resolved[name] = v
	}
	return resolved, nil
}
