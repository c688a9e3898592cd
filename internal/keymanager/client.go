// Package keymanager is the client for the central key, user and policy manager.
package keymanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-provisioner/internal/transport"
)

const ServiceName = "keymanager"

const (
	pathAuth      = "api/v1/auth/tokens/"
	pathUsers     = "api/v1/usermgmt/users"
	pathKeys      = "api/v1/vault/keys2"
	pathProfiles  = "api/v1/client-management/profiles/"
	pathRegTokens = "api/v1/client-management/regtokens"
	pathUserSets  = "api/v1/transparent-encryption/usersets/"
	pathProcSets  = "api/v1/transparent-encryption/processsets/"
	pathPolicies  = "api/v1/transparent-encryption/policies/"
)

var ErrOwnerIDMissing = errors.New("user response contains no owner id")

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
	JWT         string `json:"jwt"`
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
}

// Authenticate performs the password grant and returns a session for later calls.
func (c *Client) Authenticate(ctx context.Context) (transport.Session, error) {
	payload := map[string]string{
		"grant_type": "password",
		"username":   c.username,
		"password":   c.password,
	}

	slog.Debug("Authenticating", "service", ServiceName, "url", c.http.URL(pathAuth))

	var resp authResponse
	if err := c.http.PostJSON(ctx, pathAuth, "", payload, &resp); err != nil {
		return transport.Session{}, err
	}
	return transport.NewSession(ServiceName, transport.FirstNonEmpty(resp.JWT, resp.AccessToken, resp.Token))
}

type UserRequest struct {
	Username string
	Password string
	Email    string
	Name     string
}

// Identity is the user-creation response. The owner id lives under one of several field
// names depending on server version; OwnerID resolves them.
type Identity struct {
	UserID    transport.ID    `json:"user_id,omitempty"`
	ID        transport.ID    `json:"id,omitempty"`
	UserIDAlt transport.ID    `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Username  string          `json:"username,omitempty"`
	Email     string          `json:"email,omitempty"`
	Name      string          `json:"name,omitempty"`
}

// OwnerIDFields is the lookup precedence used by OwnerID.
var OwnerIDFields = []string{"user_id", "id", "userId", "data.user_id"}

func (i *Identity) OwnerID() (string, error) {
	candidates := map[string]string{
		"user_id":      i.UserID.String(),
		"id":           i.ID.String(),
		"userId":       i.UserIDAlt.String(),
		"data.user_id": i.dataUserID(),
	}
	for _, field := range OwnerIDFields {
		if v := candidates[field]; v != "" {
			return v, nil
		}
	}
	return "", ErrOwnerIDMissing
}

// dataUserID reads data.user_id. Some servers send a status string or list under data,
// which carries no owner.
func (i *Identity) dataUserID() string {
	raw := bytes.TrimSpace(i.Data)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var nested struct {
		UserID transport.ID `json:"user_id"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ""
	}
	return nested.UserID.String()
}

func (c *Client) CreateUser(ctx context.Context, s transport.Session, req UserRequest) (*Identity, error) {
	name := req.Name
	if name == "" {
		name = req.Username
	}
	payload := map[string]any{
		"app_metadata":  map[string]any{},
		"email":         req.Email,
		"name":          name,
		"username":      req.Username,
		"password":      req.Password,
		"user_metadata": map[string]any{},
	}

	slog.Debug("Creating user", "service", ServiceName, "username", req.Username)

	var identity Identity
	if err := c.http.PostJSON(ctx, pathUsers, s.Token, payload, &identity); err != nil {
		return nil, fmt.Errorf("create user %s: %w", req.Username, err)
	}
	return &identity, nil
}
