package provisioning

import (
	"time"

	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/EternisAI/silo-provisioner/internal/secretgen"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/google/uuid"
)

// Settings task names that gate each flavor.
const (
	TaskApps    = "Workshops API"
	TaskClients = "CTE Provisioning"
)

type Flavor string

const (
	FlavorApps    Flavor = "apps"
	FlavorClients Flavor = "clients"
)

func (f Flavor) Task() string {
	if f == FlavorClients {
		return TaskClients
	}
	return TaskApps
}

func (f Flavor) Valid() bool {
	return f == FlavorApps || f == FlavorClients
}

type Setting struct {
	Enabled     bool
	Description string
	Input       string
}

type Settings map[string]Setting

func (s Settings) Enabled(task string) bool {
	return s[task].Enabled
}

// Record is one row of intended work. Name is the raw value from the input; the
// orchestrator normalizes it before deriving resource names.
type Record struct {
	Name                string   `json:"name" yaml:"name"`
	CharacterSets       []string `json:"character_sets,omitempty" yaml:"character_sets,omitempty"`
	CurrentKey          string   `json:"current_key,omitempty" yaml:"current_key,omitempty"`
	MaxAllowed          int      `json:"max_allowed,omitempty" yaml:"max_allowed,omitempty"`
	AuthorizedUsers     []string `json:"authorized_users,omitempty" yaml:"authorized_users,omitempty"`
	AuthorizedProcesses []string `json:"authorized_processes,omitempty" yaml:"authorized_processes,omitempty"`
}

type Kind string

const (
	KindOK                    Kind = "ok"
	KindUserCreationFailed    Kind = "user_creation_failed"
	KindOwnerIDMissing        Kind = "owner_id_missing"
	KindKeyCreationFailed     Kind = "key_creation_failed"
	KindPermissionGrantFailed Kind = "permission_grant_failed"
	KindUnexpectedFailure     Kind = "unexpected_failure"
)

// Responses collects whatever each stage returned before the record finished or failed.
type Responses struct {
	User             *keymanager.Identity   `json:"user,omitempty" yaml:"user,omitempty"`
	OwnerID          string                 `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	Key              *keymanager.KeyHandle  `json:"key,omitempty" yaml:"key,omitempty"`
	VaultUser        *tokenvault.User       `json:"vault_user,omitempty" yaml:"vault_user,omitempty"`
	VaultKey         *tokenvault.Key        `json:"vault_key,omitempty" yaml:"vault_key,omitempty"`
	TokenPermission  *tokenvault.Permission `json:"token_permission,omitempty" yaml:"token_permission,omitempty"`
	CryptoPermission *tokenvault.Permission `json:"crypto_permission,omitempty" yaml:"crypto_permission,omitempty"`
	TokenGroup       *tokenvault.TokenGroup `json:"token_group,omitempty" yaml:"token_group,omitempty"`
	Templates        []tokenvault.Template  `json:"templates,omitempty" yaml:"templates,omitempty"`

	Profile           *keymanager.Resource          `json:"profile,omitempty" yaml:"profile,omitempty"`
	RegistrationToken *keymanager.RegistrationToken `json:"registration_token,omitempty" yaml:"registration_token,omitempty"`
	UserSet           *keymanager.Resource          `json:"user_set,omitempty" yaml:"user_set,omitempty"`
	ProcessSet        *keymanager.Resource          `json:"process_set,omitempty" yaml:"process_set,omitempty"`
	Policy            *keymanager.Resource          `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Entry is the outcome of one record. Every record with a non-empty normalized name
// yields exactly one Entry.
type Entry struct {
	Name        string                 `json:"name" yaml:"name"`
	Root        string                 `json:"root" yaml:"root"`
	Kind        Kind                   `json:"kind" yaml:"kind"`
	Stage       string                 `json:"stage,omitempty" yaml:"stage,omitempty"`
	Err         error                  `json:"-" yaml:"-"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Credentials *secretgen.Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Responses   Responses              `json:"responses" yaml:"responses"`
}

func (e Entry) OK() bool {
	return e.Kind == KindOK
}

// TenantName is the token group the entry's templates belong to.
func (e Entry) TenantName() string {
	if e.Responses.TokenGroup == nil {
		return ""
	}
	return e.Responses.TokenGroup.Name
}

func (e Entry) TemplateNames() []string {
	names := make([]string, 0, len(e.Responses.Templates))
	for _, t := range e.Responses.Templates {
		names = append(names, t.Name)
	}
	return names
}

type Run struct {
	ID         uuid.UUID `json:"id" yaml:"id"`
	Flavor     Flavor    `json:"flavor" yaml:"flavor"`
	Skipped    bool      `json:"skipped" yaml:"skipped"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Entries    []Entry   `json:"entries" yaml:"entries"`
	Summary    string    `json:"summary" yaml:"summary"`
}

func (r *Run) Counts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range r.Entries {
		counts[e.Kind]++
	}
	return counts
}

func (r *Run) Succeeded() int {
	return r.Counts()[KindOK]
}
