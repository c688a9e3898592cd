package provisioning

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFlavor  = errors.New("invalid provisioning flavor")
	ErrNoSource       = errors.New("no input source configured")
	ErrSessionExpired = errors.New("service session expired")
)

// AuthError aborts a whole run: the service refused every authentication attempt.
type AuthError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication to %s failed after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StageError names the step of a record's flow that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stages of the per-record flows.
const (
	StageSession          = "session"
	StageCredentials      = "credentials"
	StageUser             = "keymanager.user"
	StageOwnerID          = "keymanager.owner_id"
	StageKey              = "keymanager.key"
	StageVaultUser        = "tokenvault.user"
	StageVaultKey         = "tokenvault.key"
	StageTokenPermission  = "tokenvault.token_permission"
	StageCryptoPermission = "tokenvault.crypto_permission"
	StageTokenGroup       = "tokenvault.token_group"
	StageTemplate         = "tokenvault.template"
	StageProfile          = "keymanager.profile"
	StageRegToken         = "keymanager.registration_token"
	StageUserSet          = "keymanager.user_set"
	StageProcessSet       = "keymanager.process_set"
	StagePolicy           = "keymanager.policy"
)
