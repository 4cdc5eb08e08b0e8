// Package secret resolves scy secret references so that operation parameters
// never carry raw credentials.
package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/scy"
	"github.com/viant/scy/cred"
	"github.com/viant/scy/cred/secret"
	"github.com/viant/toolbox"
	"golang.org/x/crypto/ssh"
)

// DefaultKey is used for references without an explicit key.
const DefaultKey = "blowfish://default"

// ErrEmptyReference is returned for a blank reference.
var ErrEmptyReference = errors.New("empty secret reference")

// Reference points at an encrypted scy resource: "URL" or "URL|key".
type Reference string

// Split returns the resource URL and key.
func (r Reference) Split() (string, string) {
	URL, key, found := strings.Cut(string(r), "|")
	if !found || key == "" {
		key = DefaultKey
	}
	return strings.TrimSpace(URL), strings.TrimSpace(key)
}

// Resolver loads secrets with scy.
type Resolver struct {
	scy     *scy.Service
	secrets *secret.Service
}

// New creates a resolver
func New() *Resolver {
	return &Resolver{scy: scy.New(), secrets: secret.New()}
}

// Text returns the plain text of a raw secret.
func (r *Resolver) Text(ctx context.Context, ref Reference) (string, error) {
	loaded, err := r.load(ctx, ref, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(loaded.String()), nil
}

// Data returns a typed secret (target: basic, key, generic, ...) as a map.
func (r *Resolver) Data(ctx context.Context, ref Reference, target string) (map[string]interface{}, error) {
	var targetType interface{}
	if target != "" && target != "raw" {
		rType, err := cred.TargetType(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target type '%s': %w", target, err)
		}
		targetType = rType
	}
	loaded, err := r.load(ctx, ref, targetType)
	if err != nil {
		return nil, err
	}
	if loaded.IsPlain || loaded.Target == nil {
		return map[string]interface{}{"text": loaded.String()}, nil
	}
	aMap := map[string]interface{}{}
	if err = toolbox.DefaultConverter.AssignConverted(&aMap, loaded.Target); err != nil {
		return nil, fmt.Errorf("failed to convert secret data: %w", err)
	}
	return toolbox.DeleteEmptyKeys(aMap), nil
}

func (r *Resolver) load(ctx context.Context, ref Reference, target interface{}) (*scy.Secret, error) {
	URL, key := ref.Split()
	if URL == "" {
		return nil, ErrEmptyReference
	}
	loaded, err := r.scy.Load(ctx, scy.NewResource(target, URL, key))
	if err != nil {
		return nil, fmt.Errorf("failed to load secret from %s: %w", URL, err)
	}
	return loaded, nil
}

// Store encrypts plain text at ref.
func (r *Resolver) Store(ctx context.Context, ref Reference, text string) error {
	URL, key := ref.Split()
	if URL == "" {
		return ErrEmptyReference
	}
	if err := r.scy.Store(ctx, scy.NewSecret(text, scy.NewResource(nil, URL, key))); err != nil {
		return fmt.Errorf("failed to store secret at %s: %w", URL, err)
	}
	return nil
}

// SSHConfig resolves named scy credentials into an ssh client config.
func (r *Resolver) SSHConfig(ctx context.Context, credentials string) (*ssh.ClientConfig, error) {
	if credentials == "" {
		credentials = "localhost"
	}
	generic, err := r.secrets.GetCredentials(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials %s: %w", credentials, err)
	}
	return generic.SSH.Config(ctx)
}
