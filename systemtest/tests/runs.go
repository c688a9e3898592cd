package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/EternisAI/silo-provisioner/internal/api/http/dto"
	"github.com/EternisAI/silo-provisioner/internal/workbook"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const APIKey = "systemtest-key"

// WriteWorkbook produces an input workbook with both tasks enabled.
func WriteWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", workbook.SheetSettings))
	rows := map[string][]any{
		"A3": {"Task", "Status", "Function", "Descriptions", "Input"},
		"A4": {"Workshops API", "yes", "", "apps", ""},
		"A5": {"CTE Provisioning", "yes", "", "clients", ""},
	}
	for cell, row := range rows {
		require.NoError(t, f.SetSheetRow(workbook.SheetSettings, cell, &row))
	}

	_, err := f.NewSheet(workbook.SheetApps)
	require.NoError(t, err)
	apps := [][]any{
		{"Apps Name", "Character Set"},
		{"Payroll App", "Clear, Digit"},
		{"HR Portal", "alphanumeric"},
	}
	for i, row := range apps {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow(workbook.SheetApps, cell, &row))
	}

	_, err = f.NewSheet(workbook.SheetClients)
	require.NoError(t, err)
	clients := [][]any{
		{"client name", "current keys", "max allowed", "authorized_users", "authorized process"},
		{"Billing DB", "legacy_key", 5, "oracle, root", "/usr/bin/sqlplus"},
	}
	for i, row := range clients {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow(workbook.SheetClients, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestHealthCheck(t *testing.T, router *gin.Engine) {
	rr := do(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","store":"ok"}`, rr.Body.String())
}

func TestProvisionApps(t *testing.T, router *gin.Engine, km, tv *FakeService) string {
	rr := do(router, "POST", "/api/v1/runs", dto.CreateRunRequest{Flavor: "apps"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp dto.RunResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "payrollapp", resp.Entries[0].Root)
	assert.Equal(t, "hrportal", resp.Entries[1].Root)
	require.NotNil(t, resp.Entries[0].Responses.TokenGroup)
	assert.Equal(t, "payrollapp_tgroup", resp.Entries[0].Responses.TokenGroup.Name)
	assert.Len(t, resp.Entries[0].Responses.Templates, 2)

	assert.Equal(t, 1, km.Calls("/api/v1/auth/tokens/"))
	assert.Equal(t, 2, km.Calls("/api/v1/usermgmt/users"))
	assert.Equal(t, 1, tv.Calls("/api/api-token-auth/"))
	assert.Equal(t, 3, tv.Calls("/api/tokentemplates/"))
	return resp.ID
}

func TestProvisionClients(t *testing.T, router *gin.Engine) string {
	rr := do(router, "POST", "/api/v1/runs", dto.CreateRunRequest{Flavor: "clients"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp dto.RunResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	e := resp.Entries[0]
	assert.Equal(t, "ok", e.Kind)
	require.NotNil(t, e.Responses.Policy)
	assert.Equal(t, "billingdb_Database", e.Responses.Policy.Name)
	require.NotNil(t, e.Responses.ProcessSet)
	return resp.ID
}

func TestStoredRuns(t *testing.T, router *gin.Engine, ids ...string) {
	rr := do(router, "GET", "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var list dto.ListRunsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	listed := make(map[string]bool)
	for _, r := range list.Runs {
		listed[r.ID] = true
	}
	for _, id := range ids {
		assert.True(t, listed[id], id)

		rr := do(router, "GET", "/api/v1/runs/"+id, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var run dto.RunResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
		assert.NotEmpty(t, run.Entries)
		for _, e := range run.Entries {
			assert.Equal(t, "ok", e.Kind)
		}
	}
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", APIKey)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
