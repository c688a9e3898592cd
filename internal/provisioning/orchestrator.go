// Package provisioning drives the ordered, multi-service creation sequence for each input
// record and aggregates the per-record outcomes of a run.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/EternisAI/silo-provisioner/internal/metrics"
	"github.com/EternisAI/silo-provisioner/internal/secretgen"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/EternisAI/silo-provisioner/internal/transport"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAuthAttempts = 3
	DefaultAuthBackoff  = 2 * time.Second
)

type KeyManager interface {
	Authenticate(ctx context.Context) (transport.Session, error)
	CreateUser(ctx context.Context, s transport.Session, req keymanager.UserRequest) (*keymanager.Identity, error)
	CreateKey(ctx context.Context, s transport.Session, req keymanager.KeyRequest) (*keymanager.KeyHandle, error)
	CreateCTEKey(ctx context.Context, s transport.Session, name, ownerID string) (*keymanager.KeyHandle, error)
	CreateClientProfile(ctx context.Context, s transport.Session, name, description, key string) (*keymanager.Resource, error)
	CreateRegistrationToken(ctx context.Context, s transport.Session, profileID string, maxClients int, namePrefix string) (*keymanager.RegistrationToken, error)
	CreateUserSet(ctx context.Context, s transport.Session, name, description string, users []string) (*keymanager.Resource, error)
	CreateProcessSet(ctx context.Context, s transport.Session, name, description string, processes []string) (*keymanager.Resource, error)
	CreatePolicy(ctx context.Context, s transport.Session, policy keymanager.PolicyBundle) (*keymanager.Resource, error)
}

type TokenVault interface {
	Authenticate(ctx context.Context) (transport.Session, error)
	CreateUser(ctx context.Context, s transport.Session, username, email, password string) (*tokenvault.User, error)
	CreateKey(ctx context.Context, s transport.Session, name string, seedKey bool) (*tokenvault.Key, error)
	GrantTokenPermission(ctx context.Context, s transport.Session, user, key string) (*tokenvault.Permission, error)
	GrantCryptoPermission(ctx context.Context, s transport.Session, user, key string) (*tokenvault.Permission, error)
	CreateTokenGroup(ctx context.Context, s transport.Session, name, key string) (*tokenvault.TokenGroup, error)
	CreateTokenTemplate(ctx context.Context, s transport.Session, spec tokenvault.TemplateSpec) (*tokenvault.Template, error)
}

type CredentialGenerator interface {
	Credentials(root, emailDomain string) (secretgen.Credentials, error)
}

// Source yields settings and ordered batch records.
type Source interface {
	ReadSettings() (Settings, error)
	ReadApps() ([]Record, error)
	ReadClients() ([]Record, error)
}

// Sink persists finished runs.
type Sink interface {
	Save(ctx context.Context, run *Run) error
}

type Config struct {
	EmailDomain string `mapstructure:"email_domain"`
	CTEOwnerID  string `mapstructure:"cte_owner_id"`
	Workers     int    `mapstructure:"workers"`
}

type Orchestrator struct {
	km    KeyManager
	tv    TokenVault
	cfg   Config
	creds CredentialGenerator
	sink  Sink

	workers  int
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

type Option func(*Orchestrator)

// WithWorkers bounds the number of records processed concurrently. One or fewer keeps
// records strictly sequential.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithRetry sets the authentication policy: attempts in total, constant backoff between
// them and none after the last.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts >= 1 {
			o.attempts = attempts
		}
		if backoff > 0 {
			o.backoff = backoff
		}
	}
}

func WithSink(s Sink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

func WithCredentialGenerator(g CredentialGenerator) Option {
	return func(o *Orchestrator) {
		o.creds = g
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(km KeyManager, tv TokenVault, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		km:       km,
		tv:       tv,
		cfg:      cfg,
		creds:    secretgen.NewGenerator(),
		workers:  1,
		attempts: DefaultAuthAttempts,
		backoff:  DefaultAuthBackoff,
		now:      time.Now,
	}
	if cfg.Workers > 1 {
		o.workers = cfg.Workers
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run provisions the application batch.
func (o *Orchestrator) Run(ctx context.Context, src Source) (*Run, error) {
	return o.Execute(ctx, FlavorApps, src)
}

// RunClients provisions the transparent-encryption client batch.
func (o *Orchestrator) RunClients(ctx context.Context, src Source) (*Run, error) {
	return o.Execute(ctx, FlavorClients, src)
}

// Execute runs one flavor end to end. The returned error is non-nil only for conditions
// that abort the whole run: unreadable input or authentication exhaustion. Per-record
// failures are reported as entries.
func (o *Orchestrator) Execute(ctx context.Context, flavor Flavor, src Source) (run *Run, err error) {
	if !flavor.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFlavor, flavor)
	}
	if src == nil {
		return nil, ErrNoSource
	}

	defer func() {
		if err == nil && run.Skipped {
			metrics.RecordSkippedRun(string(flavor))
			return
		}
		metrics.RecordRun(string(flavor), err)
	}()

	run = &Run{
		ID:        uuid.New(),
		Flavor:    flavor,
		StartedAt: o.now(),
		Entries:   []Entry{},
	}
	log := slog.With("run_id", run.ID.String(), "flavor", string(flavor))

	settings, err := src.ReadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if !settings.Enabled(flavor.Task()) {
		log.Info("Task disabled in settings, nothing to do", "task", flavor.Task())
		run.Skipped = true
		o.finish(ctx, run)
		return run, nil
	}

	var records []Record
	if flavor == FlavorClients {
		records, err = src.ReadClients()
	} else {
		records, err = src.ReadApps()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s batch: %w", flavor, err)
	}
	if len(records) == 0 {
		log.Warn("No records found in input")
		o.finish(ctx, run)
		return run, nil
	}

	kmSession, err := o.authenticate(ctx, keymanager.ServiceName, o.km.Authenticate)
	if err != nil {
		return nil, err
	}

	var provision recordFunc
	switch flavor {
	case FlavorClients:
		provision = func(ctx context.Context, rec Record, e *Entry) {
			if o.sessionsValid(e, kmSession) {
				o.provisionClient(ctx, kmSession, rec, e)
			}
		}
	default:
		tvSession, err := o.authenticate(ctx, tokenvault.ServiceName, o.tv.Authenticate)
		if err != nil {
			return nil, err
		}
		provision = func(ctx context.Context, rec Record, e *Entry) {
			if o.sessionsValid(e, kmSession, tvSession) {
				o.provisionApp(ctx, kmSession, tvSession, rec, e)
			}
		}
	}

	log.Info("Provisioning batch", "records", len(records), "workers", o.workers)
	run.Entries = o.process(ctx, records, provision)
	for _, e := range run.Entries {
		metrics.RecordEntry(string(flavor), string(e.Kind))
	}

	o.finish(ctx, run)
	log.Info("Provisioning finished", "entries", len(run.Entries), "succeeded", run.Succeeded())
	return run, nil
}

func (o *Orchestrator) finish(ctx context.Context, run *Run) {
	run.FinishedAt = o.now()
	if !run.Skipped && len(run.Entries) > 0 {
		run.Summary = Summarize(run.Flavor, run.Entries)
		slog.Info(run.Summary)
	}
	if o.sink == nil {
		return
	}
	if err := o.sink.Save(ctx, run); err != nil {
		slog.Error("Failed to persist run", "run_id", run.ID.String(), "error", err)
	}
}

func (o *Orchestrator) authenticate(ctx context.Context, service string, fn func(context.Context) (transport.Session, error)) (transport.Session, error) {
	var (
		session  transport.Session
		attempts int
	)

	backoff := retry.WithMaxRetries(uint64(o.attempts-1), retry.NewConstant(o.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		s, err := fn(ctx)
		metrics.RecordAuthAttempt(service, err)
		if err != nil {
			slog.Warn("Authentication failed", "service", service, "attempt", attempts, "max_attempts", o.attempts, "error", err)
			return retry.RetryableError(err)
		}
		session = s
		return nil
	})
	if err != nil {
		return transport.Session{}, &AuthError{Service: service, Attempts: attempts, Err: err}
	}

	log := slog.With("service", service, "attempts", attempts, "token_len", len(session.Token))
	if session.ExpiresAt.IsZero() {
		log.Info("Authenticated")
	} else {
		log.Info("Authenticated", "expires_at", session.ExpiresAt, "valid_for", session.ExpiresAt.Sub(o.now()).Round(time.Second))
	}
	return session, nil
}

// sessionsValid fails e when any session has passed its token expiry. Sessions are
// issued once per run, so a long batch can outlive them.
func (o *Orchestrator) sessionsValid(e *Entry, sessions ...transport.Session) bool {
	now := o.now()
	for _, s := range sessions {
		if s.Expired(now) {
			slog.Error("Session expired, record not provisioned", "record", e.Root, "service", s.Service, "expired_at", s.ExpiresAt)
			e.fail(KindUnexpectedFailure, StageSession, fmt.Errorf("%w: %s at %s", ErrSessionExpired, s.Service, s.ExpiresAt.Format(time.RFC3339)))
			return false
		}
	}
	return true
}

type recordFunc func(ctx context.Context, rec Record, e *Entry)

// process runs fn for every record with a non-empty root. Entries keep input order
// regardless of the worker count.
func (o *Orchestrator) process(ctx context.Context, records []Record, fn recordFunc) []Entry {
	slots := make([]*Entry, len(records))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, rec := range records {
		root := secretgen.Normalize(rec.Name)
		if root == "" {
			slog.Warn("Skipping record with empty name", "index", i)
			continue
		}
		g.Go(func() error {
			e := o.guard(ctx, rec, root, fn)
			slots[i] = &e
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]Entry, 0, len(records))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries
}

// guard confines any failure, including a panic, to the record's own entry.
func (o *Orchestrator) guard(ctx context.Context, rec Record, root string, fn recordFunc) (entry Entry) {
	entry = Entry{Name: displayName(rec.Name), Root: root}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Record panicked", "record", root, "panic", r, "stack", string(debug.Stack()))
			stage := entry.Stage
			if stage == "" {
				stage = "unknown"
			}
			entry.fail(KindUnexpectedFailure, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	fn(ctx, rec, &entry)
	if entry.Kind == "" {
		entry.fail(KindUnexpectedFailure, entry.Stage, errors.New("record finished without an outcome"))
	}
	return entry
}

func (e *Entry) fail(kind Kind, stage string, err error) {
	e.Kind = kind
	e.Stage = stage
	e.Err = &StageError{Stage: stage, Err: err}
	e.Error = e.Err.Error()
}
