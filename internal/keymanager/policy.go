package keymanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EternisAI/silo-provisioner/internal/transport"
)

const (
	RegistrationTokenLifetime = "10h"
	PolicyTypeLDT             = "LDT"
)

// Resource is the common shape of profile, user-set, process-set and policy responses.
type Resource struct {
	ID   transport.ID `json:"id,omitempty"`
	Name string       `json:"name,omitempty"`
}

// Ref returns the name when present, otherwise the id.
func (r *Resource) Ref() string {
	if r == nil {
		return ""
	}
	return transport.FirstNonEmpty(r.Name, r.ID.String())
}

type RegistrationToken struct {
	ID         transport.ID `json:"id,omitempty"`
	Token      string       `json:"token,omitempty"`
	NamePrefix string       `json:"name_prefix,omitempty"`
	MaxClients int          `json:"max_clients,omitempty"`
}

func (c *Client) CreateClientProfile(ctx context.Context, s transport.Session, name, description, key string) (*Resource, error) {
	payload := map[string]string{
		"name":        name,
		"description": description,
		"key":         key,
	}
	slog.Debug("Creating client profile", "service", ServiceName, "profile", name)

	var out Resource
	if err := c.http.PostJSON(ctx, pathProfiles, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create client profile %s: %w", name, err)
	}
	return &out, nil
}

func (c *Client) CreateRegistrationToken(ctx context.Context, s transport.Session, profileID string, maxClients int, namePrefix string) (*RegistrationToken, error) {
	payload := map[string]any{
		"client_management_profile_id": profileID,
		"lifetime":                     RegistrationTokenLifetime,
		"max_clients":                  maxClients,
		"name_prefix":                  namePrefix,
	}
	slog.Debug("Creating registration token", "service", ServiceName, "profile_id", profileID)

	var out RegistrationToken
	if err := c.http.PostJSON(ctx, pathRegTokens, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create registration token for %s: %w", namePrefix, err)
	}
	return &out, nil
}

type userEntry struct {
	Name string `json:"uname"`
}

type processEntry struct {
	Name string `json:"pname"`
}

func (c *Client) CreateUserSet(ctx context.Context, s transport.Session, name, description string, users []string) (*Resource, error) {
	entries := make([]userEntry, 0, len(users))
	for _, u := range users {
		if u = strings.TrimSpace(u); u != "" {
			entries = append(entries, userEntry{Name: u})
		}
	}
	payload := map[string]any{
		"name":        name,
		"description": description,
		"users":       entries,
	}
	slog.Debug("Creating user set", "service", ServiceName, "user_set", name, "users", len(entries))

	var out Resource
	if err := c.http.PostJSON(ctx, pathUserSets, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create user set %s: %w", name, err)
	}
	return &out, nil
}

func (c *Client) CreateProcessSet(ctx context.Context, s transport.Session, name, description string, processes []string) (*Resource, error) {
	entries := make([]processEntry, 0, len(processes))
	for _, p := range processes {
		if p = strings.TrimSpace(p); p != "" {
			entries = append(entries, processEntry{Name: p})
		}
	}
	payload := map[string]any{
		"name":        name,
		"description": description,
		"processes":   entries,
	}
	slog.Debug("Creating process set", "service", ServiceName, "process_set", name, "processes", len(entries))

	var out Resource
	if err := c.http.PostJSON(ctx, pathProcSets, s.Token, payload, &out); err != nil {
		return nil, fmt.Errorf("create process set %s: %w", name, err)
	}
	return &out, nil
}

type SecurityRule struct {
	OrderNumber  int    `json:"order_number"`
	Effect       string `json:"effect"`
	Action       string `json:"action"`
	PartialMatch bool   `json:"partial_match"`
	UserSetID    string `json:"user_set_id,omitempty"`
}

type KeyRef struct {
	KeyID string `json:"key_id"`
}

type KeyRule struct {
	CurrentKey        KeyRef `json:"current_key"`
	IsExclusionRule   bool   `json:"is_exclusion_rule"`
	TransformationKey KeyRef `json:"transformation_key"`
}

// PolicyBundle is the full rule set of one transformation policy.
type PolicyBundle struct {
	Name          string         `json:"name"`
	PolicyType    string         `json:"policy_type"`
	NeverDeny     bool           `json:"never_deny"`
	SecurityRules []SecurityRule `json:"security_rules"`
	KeyRules      []KeyRule      `json:"ldt_key_rules"`
}

// NewLDTPolicy builds the fixed five-rule policy: key operations apply the key, attribute
// reads pass through, the authorized user set gets audited full access with the key, other
// reads are audited, and everything else is denied.
func NewLDTPolicy(name, userSetID, currentKey, transformationKey string) PolicyBundle {
	return PolicyBundle{
		Name:       name,
		PolicyType: PolicyTypeLDT,
		NeverDeny:  false,
		SecurityRules: []SecurityRule{
			{OrderNumber: 1, Effect: "permit,applykey", Action: "key_op", PartialMatch: false},
			{OrderNumber: 2, Effect: "permit", Action: "f_rd_att,f_rd_sec,d_rd_att,d_rd,d_rd_sec", PartialMatch: true},
			{OrderNumber: 3, Effect: "permit,audit,applykey", Action: "all_ops", PartialMatch: true, UserSetID: userSetID},
			{OrderNumber: 4, Effect: "permit,audit", Action: "read", PartialMatch: true},
			{OrderNumber: 5, Effect: "deny,audit", Action: "all_ops", PartialMatch: true},
		},
		KeyRules: []KeyRule{
			{
				CurrentKey:        KeyRef{KeyID: currentKey},
				IsExclusionRule:   false,
				TransformationKey: KeyRef{KeyID: transformationKey},
			},
		},
	}
}

func (c *Client) CreatePolicy(ctx context.Context, s transport.Session, policy PolicyBundle) (*Resource, error) {
	slog.Debug("Creating policy", "service", ServiceName, "policy", policy.Name, "rules", len(policy.SecurityRules))

	var out Resource
	if err := c.http.PostJSON(ctx, pathPolicies, s.Token, policy, &out); err != nil {
		return nil, fmt.Errorf("create policy %s: %w", policy.Name, err)
	}
	return &out, nil
}
