package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/store/memory"
)

const header = "external_id,name,date_of_death\n"

type harness struct {
	t     *testing.T
	store *memory.Store
	svc   *core.Service
	dir   string
}

func newHarness(t *testing.T) *harness {
	store := memory.New()
	return &harness{t: t, store: store, svc: core.NewService(store), dir: t.TempDir()}
}

func (h *harness) file(name, body string) string {
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(header+body), 0o600))
	return path
}

func (h *harness) exec(args ...string) (string, error) {
	var out bytes.Buffer
	open := func(context.Context) (*core.Service, func(), error) {
		return h.svc, func() {}, nil
	}
	root := newRootCmd(open, &out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func TestApplyAndSimulate(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec("simulate", h.file("a.csv", "A1,Ahmad,2023-10-10\nB2,Amal,\n"), "-o", "json")
	require.NoError(t, err)
	var stats core.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, core.Stats{Inserted: 2}, stats)

	out, err = h.exec("apply", h.file("a.csv", "A1,Ahmad,2023-10-10\nB2,Amal,\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "change source: ")
	assert.Contains(t, out, "inserted: 2")

	out, err = h.exec("simulate", h.file("b.csv", "A1,Ahmad,2023-10-11\n"), "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "updated: 1")
	assert.Contains(t, out, "deleted: 1")
}

func TestRollbackCommand(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("apply", h.file("a.csv", "A1,Ahmad,\n"))
	require.NoError(t, err)

	out, err := h.exec("apply", h.file("b.csv", "A1,Ahmad Ali,\n"), "-o", "json")
	require.NoError(t, err)
	var res core.ApplyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	out, err = h.exec("rollback", res.ChangeSourceID.String(), "--preview")
	require.NoError(t, err)
	assert.Contains(t, out, "updated:  1")
	assert.Contains(t, out, "eligible: true")

	_, err = h.exec("rollback", res.ChangeSourceID.String())
	require.NoError(t, err)

	p, err := h.store.GetPersonByExternalID(context.Background(), "A1")
	require.NoError(t, err)
	require.NotNil(t, p.Fields.Name)
	assert.Equal(t, "Ahmad", *p.Fields.Name)

	_, err = h.exec("rollback", res.ChangeSourceID.String())
	e, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.CodeAlreadyRolledBack, e.Code)
}

func TestExportHistoryVerify(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("apply", h.file("a.csv", "A1,Ahmad,\nB2,\"Amal, Jr\",\n"))
	require.NoError(t, err)
	_, err = h.exec("apply", h.file("b.csv", "A1,Ahmad,2023-10-10\nB2,\"Amal, Jr\",\n"))
	require.NoError(t, err)

	out, err := h.exec("export")
	require.NoError(t, err)
	assert.Contains(t, out, "external_id,")
	assert.Contains(t, out, `"Amal, Jr"`)

	file := filepath.Join(h.dir, "export.csv")
	out, err = h.exec("export", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 persons")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A1,Ahmad,")

	a1, err := h.store.GetPersonByExternalID(context.Background(), "A1")
	require.NoError(t, err)

	out, err = h.exec("history", a1.ID.String(), "-o", "json")
	require.NoError(t, err)
	var versions []core.PersonVersion
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	require.Len(t, versions, 2)
	assert.Equal(t, core.ChangeUpdate, versions[1].ChangeType)

	out, err = h.exec("verify", a1.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "2 versions")

	out, err = h.exec("verify")
	require.NoError(t, err)
	assert.Contains(t, out, "checked 2 persons, 0 inconsistent")
}

func TestGlobalFlags(t *testing.T) {
	h := newHarness(t)
	path := h.file("a.csv", "A1,Ahmad,\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
		is      error
	}{
		{name: "unknown role", args: []string{"simulate", path, "--role", "root"}, wantErr: `unknown role "root"`},
		{name: "empty principal", args: []string{"simulate", path, "--principal", ""}, wantErr: "--principal is required"},
		{name: "unknown output", args: []string{"simulate", path, "-o", "xml"}, wantErr: `unknown output format "xml"`},
		{name: "member cannot apply", args: []string{"apply", path, "--role", "member"}, is: core.ErrForbidden},
		{name: "missing file", args: []string{"apply", filepath.Join(h.dir, "nope.csv")}, wantErr: "read snapshot"},
		{name: "missing argument", args: []string{"rollback"}, wantErr: "accepts 1 arg(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.exec(tt.args...)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
