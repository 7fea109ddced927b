// Package credentials issues, validates, and revokes runner credentials.
// Raw secrets exist only in the issuance response; storage holds a bcrypt
// hash plus a short display prefix.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	secretPrefix = "bsc_"
	// PrefixLen is the number of leading secret characters stored in clear
	// for listings and indexed lookup.
	PrefixLen = 8

	maxRunnerNameLen = 64
)

var (
	ErrInvalidRunnerName = errors.New("invalid runner name")
	ErrInvalidCredential = errors.New("invalid credential")
)

var runnerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// IssueParams configures a new credential.
type IssueParams struct {
	RunnerName  string
	Description string
	TTL         time.Duration
	Admin       bool
}

// Issued pairs the stored credential with its one-time plaintext secret.
type Issued struct {
	Credential *models.Credential
	Secret     string
}

// Manager implements issuance, authentication, and revocation.
type Manager struct {
	store store.Store
}

func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Issue creates a credential for a runner, auto-provisioning the runner record
// if it does not exist yet. The plaintext secret is returned exactly once.
func (m *Manager) Issue(ctx context.Context, params IssueParams) (*Issued, error) {
	if err := validateRunnerName(params.RunnerName); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := m.store.UpsertRunner(ctx, &models.Runner{
		Name:      params.RunnerName,
		Status:    models.RunnerStatusOffline,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("provision runner: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	cred := &models.Credential{
		ID:          uuid.New(),
		RunnerName:  params.RunnerName,
		SecretHash:  string(hash),
		Prefix:      secret[:PrefixLen],
		Description: params.Description,
		Admin:       params.Admin,
		CreatedAt:   now,
	}
	if params.TTL > 0 {
		expiry := now.Add(params.TTL)
		cred.ExpiresAt = &expiry
	}

	if err := m.store.CreateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	return &Issued{Credential: cred, Secret: secret}, nil
}

// Authenticate resolves a presented secret to its credential. Revoked and
// expired credentials never authenticate. On success, last-used timestamps are
// advanced off the request path.
func (m *Manager) Authenticate(ctx context.Context, presented string) (*models.Credential, error) {
	if len(presented) < PrefixLen {
		return nil, ErrInvalidCredential
	}

	candidates, err := m.store.GetCredentialsByPrefix(ctx, presented[:PrefixLen])
	if err != nil {
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}

	now := time.Now().UTC()
	for _, cred := range candidates {
		if !cred.Active(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(presented)) == nil {
			go func(id uuid.UUID) {
				if err := m.store.UpdateCredentialLastUsed(context.Background(), id); err != nil {
					slog.Warn("update credential last used", "error", err)
				}
			}(cred.ID)
			return cred, nil
		}
	}

	return nil, ErrInvalidCredential
}

// Revoke marks one credential unusable. The row survives for audit.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID) error {
	return m.store.RevokeCredential(ctx, id)
}

// RevokeAll revokes every live credential a runner holds, returning how many
// were revoked. This is the soft-disable path for retiring a fleet member.
func (m *Manager) RevokeAll(ctx context.Context, runnerName string) (int, error) {
	if err := validateRunnerName(runnerName); err != nil {
		return 0, err
	}
	return m.store.RevokeRunnerCredentials(ctx, runnerName)
}

// List returns all credentials, hashes included for internal use; callers
// serializing to clients rely on the model's json tags to drop the hash.
func (m *Manager) List(ctx context.Context) ([]*models.Credential, error) {
	return m.store.ListCredentials(ctx)
}

func validateRunnerName(name string) error {
	if name == "" || len(name) > maxRunnerNameLen {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidRunnerName, maxRunnerNameLen)
	}
	if !runnerNamePattern.MatchString(name) {
		return fmt.Errorf("%w: allowed characters are letters, digits, '.', '_', '-'", ErrInvalidRunnerName)
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}
