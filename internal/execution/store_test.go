package execution

import (
	"path/filepath"
	"testing"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	action := NewAction(NewActionID(), "supply", "eip155:42161", Constraints{Simulate: true})
	action.VaultAddress = "0x85C9F1D3D8a1ab5EE6a5A4D1e2f3E8A13c2b2dAA"
	action.Steps = append(action.Steps, ActionStep{
		StepID:  "execute-1",
		Type:    StepTypeVaultExecute,
		Status:  StepStatusPending,
		ChainID: "eip155:42161",
		Target:  action.VaultAddress,
		Data:    "0x",
		Value:   "0",
	})
	if err := store.Save(action); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ActionID != action.ActionID {
		t.Fatalf("unexpected action id: %s", got.ActionID)
	}
	if got.IntentType != "supply" {
		t.Fatalf("unexpected intent type: %s", got.IntentType)
	}

	got.Status = ActionStatusCompleted
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	completed, err := store.List(ListFilter{Status: string(ActionStatusCompleted), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected one completed action, got %d", len(completed))
	}

	byVault, err := store.List(ListFilter{Vault: "0x85c9f1d3d8a1ab5ee6a5a4d1e2f3e8a13c2b2daa"})
	if err != nil {
		t.Fatalf("List by vault failed: %v", err)
	}
	if len(byVault) != 1 {
		t.Fatalf("expected vault filter to match case-insensitively, got %d", len(byVault))
	}
	other, err := store.List(ListFilter{Vault: "0x0000000000000000000000000000000000000001"})
	if err != nil {
		t.Fatalf("List other vault failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no actions for other vault, got %d", len(other))
	}
}

func TestStoreGetMissingAction(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("missing")
	if err == nil {
		t.Fatal("expected missing action error")
	}
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestNewActionIDFormat(t *testing.T) {
	id := NewActionID()
	if len(id) != len("act_")+32 || id[:4] != "act_" {
		t.Fatalf("unexpected action id %q", id)
	}
	if id == NewActionID() {
		t.Fatal("expected unique action ids")
	}
}
