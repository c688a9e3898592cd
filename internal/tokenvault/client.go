// Package tokenvault is the client for the tokenization and format-preserving encryption manager.
package tokenvault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-provisioner/internal/transport"
)

const ServiceName = "tokenvault"

const (
	pathAuth        = "api/api-token-auth/"
	pathUsers       = "api/users/"
	pathKeys        = "api/keys/"
	pathTokenPerm   = "api/permissions/token/users/"
	pathCryptoPerm  = "api/permissions/crypto/users/"
	pathTokenGroups = "api/tokengroups/"
	pathTemplates   = "api/tokentemplates/"
)

type Config struct {
	Host     string `mapstructure:"host"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Client struct {
	http     *transport.Client
	username string
	password string
}

func NewClient(http *transport.Client, username, password string) *Client {
	return &Client{
		http:     http,
		username: username,
		password: password,
	}
}

type authResponse struct {
	Access string `json:"access"`
	Token  string `json:"token"`
}

func (c *Client) Authenticate(ctx context.Context) (transport.Session, error) {
	payload := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	slog.Debug("Authenticating", "service", ServiceName, "url", c.http.URL(pathAuth))

	var resp authResponse
	if err := c.http.PostJSON(ctx, pathAuth, "", payload, &resp); err != nil {
		return transport.Session{}, err
	}
	return transport.NewSession(ServiceName, transport.FirstNonEmpty(resp.Access, resp.Token))
}

type User struct {
	ID       transport.ID `json:"id,omitempty"`
	Username string       `json:"username,omitempty"`
	Email    string       `json:"email,omitempty"`
}

func (c *Client) CreateUser(ctx context.Context, s transport.Session, username, email, password string) (*User, error) {
	payload := map[string]any{
		"username":     username,
		"email":        email,
		"password":     password,
		"is_active":    true,
		"is_staff":     true,
		"is_superuser": false,
	}
	slog.Debug("Creating user", "service", ServiceName, "username", username)

	var out User
	if err := c.http.PostJSON(ctx, pathUsers, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	return &out, nil
}

type Key struct {
	ID      transport.ID `json:"id,omitempty"`
	Name    string       `json:"name,omitempty"`
	SeedKey bool         `json:"seedkey,omitempty"`
}

// CreateKey registers a key by name. Keys are matched by name across services, never by id.
func (c *Client) CreateKey(ctx context.Context, s transport.Session, name string, seedKey bool) (*Key, error) {
	payload := map[string]any{
		"name":    name,
		"seedkey": seedKey,
	}
	slog.Debug("Creating key", "service", ServiceName, "key", name)

	var out Key
	if err := c.http.PostJSON(ctx, pathKeys, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create key %s: %w", name, err)
	}
	if out.Name == "" {
		out.Name = name
	}
	return &out, nil
}

// Permission is a grant of one capability set on a key to a user.
type Permission struct {
	ID   transport.ID `json:"id,omitempty"`
	User string       `json:"user,omitempty"`
	Key  string       `json:"key,omitempty"`
}

type tokenPermission struct {
	User      string  `json:"user"`
	Key       string  `json:"key"`
	AsymKey   *string `json:"asymkey"`
	OpaqueObj *string `json:"opaqueobj"`
	CanPost   bool    `json:"canPost"`
	CanGet    bool    `json:"canGet"`
}

type cryptoPermission struct {
	User       string  `json:"user"`
	Key        string  `json:"key"`
	AsymKey    *string `json:"asymkey"`
	OpaqueObj  *string `json:"opaqueobj"`
	CanDecrypt bool    `json:"canDecrypt"`
	CanEncrypt bool    `json:"canEncrypt"`
	CanSign    bool    `json:"canSign"`
	CanVerify  bool    `json:"canVerify"`
}

// GrantTokenPermission lets user tokenize and detokenize with key.
func (c *Client) GrantTokenPermission(ctx context.Context, s transport.Session, user, key string) (*Permission, error) {
	payload := tokenPermission{
		User:    user,
		Key:     key,
		CanPost: true,
		CanGet:  true,
	}
	slog.Debug("Granting token permission", "service", ServiceName, "username", user, "key", key)

	var out Permission
	if err := c.http.PostJSON(ctx, pathTokenPerm, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("grant token permission to %s on %s: %w", user, key, err)
	}
	return &out, nil
}

// GrantCryptoPermission lets user decrypt with key and nothing else.
func (c *Client) GrantCryptoPermission(ctx context.Context, s transport.Session, user, key string) (*Permission, error) {
	payload := cryptoPermission{
		User:       user,
		Key:        key,
		CanDecrypt: true,
	}
	slog.Debug("Granting crypto permission", "service", ServiceName, "username", user, "key", key)

	var out Permission
	if err := c.http.PostJSON(ctx, pathCryptoPerm, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("grant crypto permission to %s on %s: %w", user, key, err)
	}
	return &out, nil
}

// TokenGroup binds a key to a set of templates. Templates refer to it as their tenant.
type TokenGroup struct {
	ID   transport.ID `json:"id,omitempty"`
	Name string       `json:"name,omitempty"`
	Key  string       `json:"key,omitempty"`
}

func (c *Client) CreateTokenGroup(ctx context.Context, s transport.Session, name, key string) (*TokenGroup, error) {
	payload := map[string]string{
		"name": name,
		"key":  key,
	}
	slog.Debug("Creating token group", "service", ServiceName, "token_group", name, "key", key)

	var out TokenGroup
	if err := c.http.PostJSON(ctx, pathTokenGroups, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create token group %s: %w", name, err)
	}
	if out.Name == "" {
		out.Name = name
	}
	return &out, nil
}

type Template struct {
	ID     transport.ID `json:"id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Tenant string       `json:"tenant,omitempty"`
}

func (c *Client) CreateTokenTemplate(ctx context.Context, s transport.Session, spec TemplateSpec) (*Template, error) {
	slog.Debug("Creating token template", "service", ServiceName, "template", spec.Name, "tenant", spec.Tenant)

	var out Template
	if err := c.http.PostJSON(ctx, pathTemplates, s.Token, spec, &out); err != nil {
		return nil, fmt.Errorf("create token template %s: %w", spec.Name, err)
	}
	if out.Name == "" {
		out.Name = spec.Name
	}
	return &out, nil
}
