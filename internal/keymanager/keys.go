package keymanager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-provisioner/internal/transport"
)

const (
	DefaultAlgorithm = "AES"
	DefaultKeySize   = 256
	// DefaultUsageMask grants encrypt, decrypt, FPE encrypt and FPE decrypt.
	DefaultUsageMask = 3145740
	// CTEUsageMask grants encrypt and decrypt only.
	CTEUsageMask = 12

	CTEClientsGroup = "CTE Clients"
)

type Alias struct {
	Alias string `json:"alias"`
	Type  string `json:"type"`
}

type KeyRequest struct {
	Name      string
	OwnerID   string
	Algorithm string
	Size      int
	UsageMask int
	Aliases   []Alias
}

// KeyHandle is a created key. Downstream calls reference it by Name.
type KeyHandle struct {
	ID        transport.ID `json:"id,omitempty"`
	Name      string       `json:"name"`
	Algorithm string       `json:"algorithm,omitempty"`
	Size      int          `json:"size,omitempty"`
	UsageMask int          `json:"usageMask,omitempty"`
	Version   int          `json:"version,omitempty"`
}

type keyPayload struct {
	Name         string  `json:"name"`
	UsageMask    int     `json:"usageMask"`
	Algorithm    string  `json:"algorithm"`
	Size         int     `json:"size"`
	Meta         keyMeta `json:"meta"`
	Aliases      []Alias `json:"aliases"`
	Unexportable bool    `json:"unexportable"`
	Undeletable  bool    `json:"undeletable"`
}

type keyMeta struct {
	OwnerID     string              `json:"ownerId"`
	Permissions map[string][]string `json:"permissions"`
	CTE         *cteMeta            `json:"cte,omitempty"`
}

type cteMeta struct {
	IsUsed               bool   `json:"is_used"`
	CTEVersioned         bool   `json:"cte_versioned"`
	EncryptionMode       string `json:"encryption_mode"`
	UniqueToClient       bool   `json:"unique_to_client"`
	PersistentOnClient   bool   `json:"persistent_on_client"`
	UniqueToClientFormat string `json:"unique_to_client_format"`
}

func (r KeyRequest) withDefaults() KeyRequest {
	if r.Algorithm == "" {
		r.Algorithm = DefaultAlgorithm
	}
	if r.Size == 0 {
		r.Size = DefaultKeySize
	}
	if r.UsageMask == 0 {
		r.UsageMask = DefaultUsageMask
	}
	if len(r.Aliases) == 0 {
		r.Aliases = []Alias{{Alias: r.Name, Type: "string"}}
	}
	return r
}

// CreateKey creates a symmetric key owned by req.OwnerID.
func (c *Client) CreateKey(ctx context.Context, s transport.Session, req KeyRequest) (*KeyHandle, error) {
	req = req.withDefaults()
	payload := keyPayload{
		Name:      req.Name,
		UsageMask: req.UsageMask,
		Algorithm: req.Algorithm,
		Size:      req.Size,
		Meta: keyMeta{
			OwnerID:     req.OwnerID,
			Permissions: map[string][]string{},
		},
		Aliases: req.Aliases,
	}

	slog.Debug("Creating key", "service", ServiceName, "key", req.Name, "owner_id", req.OwnerID)
	return c.postKey(ctx, s, payload)
}

// CreateCTEKey creates a versioned CBC key usable by transparent-encryption clients.
// The key is undeletable and readable/exportable by the CTE client group.
func (c *Client) CreateCTEKey(ctx context.Context, s transport.Session, name, ownerID string) (*KeyHandle, error) {
	payload := keyPayload{
		Name:      name,
		UsageMask: CTEUsageMask,
		Algorithm: DefaultAlgorithm,
		Size:      DefaultKeySize,
		Meta: keyMeta{
			OwnerID: ownerID,
			Permissions: map[string][]string{
				"ReadKey":   {CTEClientsGroup},
				"ExportKey": {CTEClientsGroup},
			},
			CTE: &cteMeta{
				IsUsed:             true,
				CTEVersioned:       true,
				EncryptionMode:     "CBC",
				UniqueToClient:     false,
				PersistentOnClient: true,
			},
		},
		Aliases:     []Alias{{Alias: name, Type: "string"}},
		Undeletable: true,
	}

	slog.Debug("Creating CTE key", "service", ServiceName, "key", name, "owner_id", ownerID)
	return c.postKey(ctx, s, payload)
}

func (c *Client) postKey(ctx context.Context, s transport.Session, payload keyPayload) (*KeyHandle, error) {
	var key KeyHandle
	if err := c.http.PostJSON(ctx, pathKeys, s.Token, payload, &key); err != nil {
		return nil, fmt.Errorf("create key %s: %w", payload.Name, err)
	}
	if key.Name == "" {
		key.Name = payload.Name
	}
	return &key, nil
}
