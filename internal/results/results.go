// Package results persists finished provisioning runs. Generated passwords are stored only
// as bcrypt hashes.
package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for stored credential hashes.
const DefaultCost = bcrypt.DefaultCost

const DefaultListLimit = 50

var ErrRunNotFound = errors.New("run not found")

type Store interface {
	Save(ctx context.Context, run *provisioning.Run) error
	Get(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Ping(ctx context.Context) error
}

// RunRecord is the persisted, redacted form of a run.
type RunRecord struct {
	ID           uuid.UUID     `json:"id"`
	Flavor       string        `json:"flavor"`
	Skipped      bool          `json:"skipped"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	EntryCount   int           `json:"entry_count"`
	SuccessCount int           `json:"success_count"`
	Entries      []EntryRecord `json:"entries,omitempty"`
}

type EntryRecord struct {
	Position     int                    `json:"position"`
	Name         string                 `json:"name"`
	Root         string                 `json:"root"`
	Kind         string                 `json:"kind"`
	Stage        string                 `json:"stage,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Username     string                 `json:"username,omitempty"`
	Email        string                 `json:"email,omitempty"`
	PasswordHash string                 `json:"-"`
	Responses    provisioning.Responses `json:"responses"`
}

// NewRunRecord redacts run for storage.
func NewRunRecord(run *provisioning.Run) (*RunRecord, error) {
	rec := &RunRecord{
		ID:           run.ID,
		Flavor:       string(run.Flavor),
		Skipped:      run.Skipped,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		EntryCount:   len(run.Entries),
		SuccessCount: run.Succeeded(),
		Entries:      make([]EntryRecord, 0, len(run.Entries)),
	}

	for i, e := range run.Entries {
		er := EntryRecord{
			Position:  i,
			Name:      e.Name,
			Root:      e.Root,
			Kind:      string(e.Kind),
			Stage:     e.Stage,
			Error:     e.Error,
			Responses: e.Responses,
		}
		if e.Credentials != nil {
			er.Username = e.Credentials.Username
			er.Email = e.Credentials.Email
			if e.Credentials.Password != "" {
				hash, err := HashPassword(e.Credentials.Password)
				if err != nil {
					return nil, fmt.Errorf("entry %s: %w", e.Root, err)
				}
				er.PasswordHash = hash
			}
		}
		rec.Entries = append(rec.Entries, er)
	}
	return rec, nil
}

// Summary drops the entries, as List returns.
func (r RunRecord) Summary() RunRecord {
	r.Entries = nil
	return r
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
