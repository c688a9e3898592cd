package dto

import (
	"time"

	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/EternisAI/silo-provisioner/internal/results"
)

type CreateRunRequest struct {
	Flavor string `json:"flavor" binding:"required,oneof=apps clients"`
	Path   string `json:"path"`
}

// EntryResponse never carries the generated password.
type EntryResponse struct {
	Position  int                    `json:"position"`
	Name      string                 `json:"name"`
	Root      string                 `json:"root"`
	Kind      string                 `json:"kind"`
	Stage     string                 `json:"stage,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Email     string                 `json:"email,omitempty"`
	Responses provisioning.Responses `json:"responses"`
}

type RunResponse struct {
	ID         string          `json:"id"`
	Flavor     string          `json:"flavor"`
	Skipped    bool            `json:"skipped"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Counts     map[string]int  `json:"counts,omitempty"`
	Entries    []EntryResponse `json:"entries,omitempty"`
}

type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

func NewRunResponse(run *provisioning.Run) RunResponse {
	resp := RunResponse{
		ID:         run.ID.String(),
		Flavor:     string(run.Flavor),
		Skipped:    run.Skipped,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Total:      len(run.Entries),
		Succeeded:  run.Succeeded(),
		Counts:     make(map[string]int),
		Entries:    make([]EntryResponse, 0, len(run.Entries)),
	}
	for kind, n := range run.Counts() {
		resp.Counts[string(kind)] = n
	}
	for i, e := range run.Entries {
		er := EntryResponse{
			Position:  i,
			Name:      e.Name,
			Root:      e.Root,
			Kind:      string(e.Kind),
			Stage:     e.Stage,
			Error:     e.Error,
			Responses: e.Responses,
		}
		if e.Credentials != nil {
			er.Username = e.Credentials.Username
			er.Email = e.Credentials.Email
		}
		resp.Entries = append(resp.Entries, er)
	}
	return resp
}

func NewRunRecordResponse(rec results.RunRecord) RunResponse {
	resp := RunResponse{
		ID:         rec.ID.String(),
		Flavor:     rec.Flavor,
		Skipped:    rec.Skipped,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Total:      rec.EntryCount,
		Succeeded:  rec.SuccessCount,
	}
	if rec.Entries == nil {
		return resp
	}

	resp.Counts = make(map[string]int)
	resp.Entries = make([]EntryResponse, 0, len(rec.Entries))
	for _, e := range rec.Entries {
		resp.Counts[e.Kind]++
		resp.Entries = append(resp.Entries, EntryResponse{
			Position:  e.Position,
			Name:      e.Name,
			Root:      e.Root,
			Kind:      e.Kind,
			Stage:     e.Stage,
			Error:     e.Error,
			Username:  e.Username,
			Email:     e.Email,
			Responses: e.Responses,
		})
	}
	return resp
}
