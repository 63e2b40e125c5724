// Package secrets resolves operator-held provider credentials. The default
// backend reads process environment variables; deployments that keep keys in
// AWS Secrets Manager use that backend with a shared name prefix. Lookups
// that find nothing return empty with no error, absence of a credential is a
// normal state for the factory.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

type Store interface {
	// Get returns the credential stored under name, or empty if absent.
	Get(ctx context.Context, name string) (string, error)
}

// EnvStore reads credentials from the process environment.
type EnvStore struct{}

func (EnvStore) Get(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// AWSSecretsManager looks up credentials as prefix/name, caching hits and
// misses for a short TTL so a streaming burst does not hammer the API.
type AWSSecretsManager struct {
	client *secretsmanager.Client
	prefix string
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func NewAWSSecretsManager(ctx context.Context, region, prefix string) (*AWSSecretsManager, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: strings.TrimSuffix(prefix, "/"),
		ttl:    5 * time.Minute,
		cache:  make(map[string]cachedSecret),
	}, nil
}

func (s *AWSSecretsManager) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if c, ok := s.cache[name]; ok && time.Now().Before(c.expiresAt) {
		s.mu.RUnlock()
		return c.value, nil
	}
	s.mu.RUnlock()

	id := s.prefix + "/" + name

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})

	var value string
	switch {
	case err == nil:
		if result.SecretString != nil {
			value = *result.SecretString
		}
	case isNotFound(err):
		value = ""
	default:
		return "", fmt.Errorf("get secret %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[name] = cachedSecret{value: value, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return value, nil
}

func isNotFound(err error) bool {
	var nf *smtypes.ResourceNotFoundException
	return errors.As(err, &nf)
}

// StaticStore is a fixed credential map, used in tests and local setups.
type StaticStore map[string]string

func (s StaticStore) Get(ctx context.Context, name string) (string, error) {
	return s[name], nil
}
