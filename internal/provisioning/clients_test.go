package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientSource(records ...Record) *fakeSource {
	src := enabledSource()
	src.clients = records
	return src
}

func TestRunClients(t *testing.T) {
	h := newHarness()
	src := clientSource(Record{
		Name:                "Billing DB",
		CurrentKey:          "legacy_key",
		MaxAllowed:          4,
		AuthorizedUsers:     []string{"oracle", "root"},
		AuthorizedProcesses: []string{"/usr/bin/sqlplus"},
	})

	run, err := h.orchestrator().RunClients(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, run.Entries, 1)

	e := run.Entries[0]
	assert.Equal(t, KindOK, e.Kind)
	assert.Equal(t, "billingdb", e.Root)
	assert.Nil(t, e.Credentials)
	assert.Equal(t, "ldt_billingdb_keys", e.Responses.Key.Name)
	assert.Equal(t, "local|owner", e.Responses.OwnerID)
	assert.Equal(t, "billingdb_client", e.Responses.Profile.Name)
	assert.Equal(t, "billingdb_authorized_users", e.Responses.UserSet.Name)
	assert.Equal(t, "billingdb_authorized_process", e.Responses.ProcessSet.Name)
	assert.Equal(t, "billingdb_Database", e.Responses.Policy.Name)

	assert.Equal(t, []string{
		"km.auth", "km.cte_key", "km.profile", "km.regtoken", "km.userset", "km.processset", "km.policy",
	}, h.calls.list(), "token vault is never contacted")
	assert.Equal(t, []int{4}, h.km.regTokenMax)
	assert.Equal(t, []string{"/usr/bin/sqlplus"}, h.km.processSets)

	require.Len(t, h.km.policies, 1)
	p := h.km.policies[0]
	assert.Equal(t, "billingdb_authorized_users", p.SecurityRules[2].UserSetID)
	assert.Equal(t, "legacy_key", p.KeyRules[0].CurrentKey.KeyID)
	assert.Equal(t, "ldt_billingdb_keys", p.KeyRules[0].TransformationKey.KeyID)

	assert.Contains(t, run.Summary, "Client: Billing DB")
	assert.Contains(t, run.Summary, "Policy    : billingdb_Database")
}

func TestRunClientsWithoutProcesses(t *testing.T) {
	h := newHarness()

	run, err := h.orchestrator().RunClients(context.Background(), clientSource(Record{Name: "web"}))
	require.NoError(t, err)

	e := run.Entries[0]
	assert.Equal(t, KindOK, e.Kind)
	assert.Nil(t, e.Responses.ProcessSet)
	assert.Zero(t, h.calls.count("km.processset"))
	assert.NotContains(t, run.Summary, "Proc set")
}

func TestRunClientsUserSetFallsBackToID(t *testing.T) {
	h := newHarness()
	h.km.userSet = func(string) (*keymanager.Resource, error) {
		return &keymanager.Resource{ID: "us-42"}, nil
	}

	_, err := h.orchestrator().RunClients(context.Background(), clientSource(Record{Name: "web"}))
	require.NoError(t, err)

	require.Len(t, h.km.policies, 1)
	assert.Equal(t, "us-42", h.km.policies[0].SecurityRules[2].UserSetID)
}

func TestRunClientsFailures(t *testing.T) {
	t.Run("key failure", func(t *testing.T) {
		h := newHarness()
		h.km.cteKey = func(string) (*keymanager.KeyHandle, error) { return nil, errBoom }

		run, err := h.orchestrator().RunClients(context.Background(), clientSource(Record{Name: "a"}, Record{Name: "b"}))
		require.NoError(t, err)
		require.Len(t, run.Entries, 2)
		for _, e := range run.Entries {
			assert.Equal(t, KindKeyCreationFailed, e.Kind)
		}
		assert.Zero(t, h.calls.count("km.profile"))
	})

	t.Run("policy failure", func(t *testing.T) {
		h := newHarness()
		h.km.policy = func(p keymanager.PolicyBundle) (*keymanager.Resource, error) {
			if p.Name == "a_Database" {
				return nil, errBoom
			}
			return &keymanager.Resource{Name: p.Name}, nil
		}

		run, err := h.orchestrator().RunClients(context.Background(), clientSource(Record{Name: "a"}, Record{Name: "b"}))
		require.NoError(t, err)
		require.Len(t, run.Entries, 2)

		assert.Equal(t, KindUnexpectedFailure, run.Entries[0].Kind)
		assert.Equal(t, StagePolicy, run.Entries[0].Stage)
		assert.NotNil(t, run.Entries[0].Responses.UserSet)
		assert.Equal(t, KindOK, run.Entries[1].Kind)
	})
}

func TestRunClientsExpiredSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness()
	h.km.expiresAt = now.Add(-time.Second)

	run, err := h.orchestrator(WithClock(func() time.Time { return now })).RunClients(context.Background(), clientSource(Record{Name: "a"}))
	require.NoError(t, err)
	require.Len(t, run.Entries, 1)
	assert.Equal(t, StageSession, run.Entries[0].Stage)
	assert.ErrorIs(t, run.Entries[0].Err, ErrSessionExpired)
	assert.Zero(t, h.calls.count("km.cte_key"))
}

func TestRunClientsDisabled(t *testing.T) {
	h := newHarness()
	src := clientSource(Record{Name: "a"})
	src.settings = Settings{TaskApps: {Enabled: true}}

	run, err := h.orchestrator().RunClients(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, run.Skipped)
	assert.Empty(t, h.calls.list())
}
