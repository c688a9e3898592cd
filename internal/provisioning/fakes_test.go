package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/EternisAI/silo-provisioner/internal/secretgen"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/EternisAI/silo-provisioner/internal/transport"
)

var errBoom = errors.New("boom")

// calls records service calls in order; shared by both fakes so tests can assert the
// cross-service sequence.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	c.log = append(c.log, name)
	c.mu.Unlock()
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func (c *calls) count(name string) int {
	n := 0
	for _, l := range c.list() {
		if l == name {
			n++
		}
	}
	return n
}

type fakeKeyManager struct {
	calls *calls

	authFailures int
	authAttempts int
	expiresAt    time.Time

	createUser func(req keymanager.UserRequest) (*keymanager.Identity, error)
	createKey  func(req keymanager.KeyRequest) (*keymanager.KeyHandle, error)
	cteKey     func(name string) (*keymanager.KeyHandle, error)
	userSet    func(name string) (*keymanager.Resource, error)
	policy     func(p keymanager.PolicyBundle) (*keymanager.Resource, error)

	mu           sync.Mutex
	policies     []keymanager.PolicyBundle
	regTokenMax  []int
	processSets  []string
	userRequests []keymanager.UserRequest
}

func newFakeKeyManager(c *calls) *fakeKeyManager {
	return &fakeKeyManager{calls: c}
}

func (f *fakeKeyManager) Authenticate(context.Context) (transport.Session, error) {
	f.calls.add("km.auth")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authAttempts++
	if f.authAttempts <= f.authFailures {
		return transport.Session{}, errBoom
	}
	return transport.Session{Service: keymanager.ServiceName, Token: "km-token", ExpiresAt: f.expiresAt}, nil
}

func (f *fakeKeyManager) CreateUser(_ context.Context, s transport.Session, req keymanager.UserRequest) (*keymanager.Identity, error) {
	f.calls.add("km.user")
	f.mu.Lock()
	f.userRequests = append(f.userRequests, req)
	f.mu.Unlock()
	if s.Token != "km-token" {
		return nil, errors.New("unauthenticated")
	}
	if f.createUser != nil {
		return f.createUser(req)
	}
	return &keymanager.Identity{UserID: transport.ID("local|" + req.Username), Username: req.Username}, nil
}

func (f *fakeKeyManager) CreateKey(_ context.Context, _ transport.Session, req keymanager.KeyRequest) (*keymanager.KeyHandle, error) {
	f.calls.add("km.key")
	if f.createKey != nil {
		return f.createKey(req)
	}
	return &keymanager.KeyHandle{ID: "id-" + transport.ID(req.Name), Name: req.Name}, nil
}

func (f *fakeKeyManager) CreateCTEKey(_ context.Context, _ transport.Session, name, _ string) (*keymanager.KeyHandle, error) {
	f.calls.add("km.cte_key")
	if f.cteKey != nil {
		return f.cteKey(name)
	}
	return &keymanager.KeyHandle{ID: "cte-" + transport.ID(name), Name: name}, nil
}

func (f *fakeKeyManager) CreateClientProfile(_ context.Context, _ transport.Session, name, _, _ string) (*keymanager.Resource, error) {
	f.calls.add("km.profile")
	return &keymanager.Resource{ID: "profile-" + transport.ID(name), Name: name}, nil
}

func (f *fakeKeyManager) CreateRegistrationToken(_ context.Context, _ transport.Session, profileID string, maxClients int, _ string) (*keymanager.RegistrationToken, error) {
	f.calls.add("km.regtoken")
	f.mu.Lock()
	f.regTokenMax = append(f.regTokenMax, maxClients)
	f.mu.Unlock()
	return &keymanager.RegistrationToken{ID: "tok-" + transport.ID(profileID), Token: "reg-" + profileID, MaxClients: maxClients}, nil
}

func (f *fakeKeyManager) CreateUserSet(_ context.Context, _ transport.Session, name, _ string, _ []string) (*keymanager.Resource, error) {
	f.calls.add("km.userset")
	if f.userSet != nil {
		return f.userSet(name)
	}
	return &keymanager.Resource{ID: "us-1", Name: name}, nil
}

func (f *fakeKeyManager) CreateProcessSet(_ context.Context, _ transport.Session, name, _ string, processes []string) (*keymanager.Resource, error) {
	f.calls.add("km.processset")
	f.mu.Lock()
	f.processSets = append(f.processSets, processes...)
	f.mu.Unlock()
	return &keymanager.Resource{ID: "ps-1", Name: name}, nil
}

func (f *fakeKeyManager) CreatePolicy(_ context.Context, _ transport.Session, p keymanager.PolicyBundle) (*keymanager.Resource, error) {
	f.calls.add("km.policy")
	f.mu.Lock()
	f.policies = append(f.policies, p)
	f.mu.Unlock()
	if f.policy != nil {
		return f.policy(p)
	}
	return &keymanager.Resource{ID: "pol-1", Name: p.Name}, nil
}

type fakeTokenVault struct {
	calls *calls

	authFailures int
	authAttempts int
	expiresAt    time.Time

	grantCrypto func(user, key string) (*tokenvault.Permission, error)
	template    func(spec tokenvault.TemplateSpec) (*tokenvault.Template, error)

	mu        sync.Mutex
	templates []tokenvault.TemplateSpec
	groups    map[string]string
}

func newFakeTokenVault(c *calls) *fakeTokenVault {
	return &fakeTokenVault{calls: c, groups: map[string]string{}}
}

func (f *fakeTokenVault) Authenticate(context.Context) (transport.Session, error) {
	f.calls.add("tv.auth")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authAttempts++
	if f.authAttempts <= f.authFailures {
		return transport.Session{}, errBoom
	}
	return transport.Session{Service: tokenvault.ServiceName, Token: "tv-token", ExpiresAt: f.expiresAt}, nil
}

func (f *fakeTokenVault) CreateUser(_ context.Context, _ transport.Session, username, email, _ string) (*tokenvault.User, error) {
	f.calls.add("tv.user")
	return &tokenvault.User{ID: "7", Username: username, Email: email}, nil
}

func (f *fakeTokenVault) CreateKey(_ context.Context, _ transport.Session, name string, _ bool) (*tokenvault.Key, error) {
	f.calls.add("tv.key")
	return &tokenvault.Key{ID: "9", Name: name}, nil
}

func (f *fakeTokenVault) GrantTokenPermission(_ context.Context, _ transport.Session, user, key string) (*tokenvault.Permission, error) {
	f.calls.add("tv.token_perm")
	return &tokenvault.Permission{ID: "tp", User: user, Key: key}, nil
}

func (f *fakeTokenVault) GrantCryptoPermission(_ context.Context, _ transport.Session, user, key string) (*tokenvault.Permission, error) {
	f.calls.add("tv.crypto_perm")
	if f.grantCrypto != nil {
		return f.grantCrypto(user, key)
	}
	return &tokenvault.Permission{ID: "cp", User: user, Key: key}, nil
}

func (f *fakeTokenVault) CreateTokenGroup(_ context.Context, _ transport.Session, name, key string) (*tokenvault.TokenGroup, error) {
	f.calls.add("tv.tgroup")
	f.mu.Lock()
	f.groups[name] = key
	f.mu.Unlock()
	return &tokenvault.TokenGroup{ID: "tg", Name: name, Key: key}, nil
}

func (f *fakeTokenVault) CreateTokenTemplate(_ context.Context, _ transport.Session, spec tokenvault.TemplateSpec) (*tokenvault.Template, error) {
	f.calls.add("tv.template")
	f.mu.Lock()
	f.templates = append(f.templates, spec)
	f.mu.Unlock()
	if f.template != nil {
		return f.template(spec)
	}
	return &tokenvault.Template{ID: "t", Name: spec.Name, Tenant: spec.Tenant}, nil
}

type fakeSource struct {
	settings    Settings
	apps        []Record
	clients     []Record
	settingsErr error
	batchErr    error
}

func enabledSource(apps ...Record) *fakeSource {
	return &fakeSource{
		settings: Settings{TaskApps: {Enabled: true}, TaskClients: {Enabled: true}},
		apps:     apps,
	}
}

func (s *fakeSource) ReadSettings() (Settings, error) { return s.settings, s.settingsErr }
func (s *fakeSource) ReadApps() ([]Record, error)     { return s.apps, s.batchErr }
func (s *fakeSource) ReadClients() ([]Record, error)  { return s.clients, s.batchErr }

type fixedCredentials struct {
	err error
}

func (f fixedCredentials) Credentials(root, domain string) (secretgen.Credentials, error) {
	if f.err != nil {
		return secretgen.Credentials{}, f.err
	}
	return secretgen.Credentials{
		Username: secretgen.Username(root, secretgen.DefaultUsernameLen),
		Password: root + "Aa1!",
		Email:    root + "@" + domain,
	}, nil
}

type memorySink struct {
	mu   sync.Mutex
	runs []*Run
	err  error
}

func (s *memorySink) Save(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return s.err
}
