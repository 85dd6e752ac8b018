package policy

import "testing"

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "vault info"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"vault info"}, "vault info"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"roles"}, "roles list"); err != nil {
		t.Fatalf("expected parent entry to allow subcommand: %v", err)
	}
	if err := CheckCommandAllowed([]string{"roles"}, "rolesx list"); err == nil {
		t.Fatal("expected prefix without word boundary to be blocked")
	}
	if err := CheckCommandAllowed([]string{"vault info"}, "supply"); err == nil {
		t.Fatal("expected command to be blocked")
	}
}

func TestCheckReadOnly(t *testing.T) {
	if err := CheckReadOnly(true, "supply"); err == nil {
		t.Fatal("expected supply to be blocked in read-only mode")
	}
	if err := CheckReadOnly(true, "vault info"); err != nil {
		t.Fatalf("expected read command to pass: %v", err)
	}
	if err := CheckReadOnly(false, "roles grant"); err != nil {
		t.Fatalf("expected write to pass when read-only is off: %v", err)
	}
}
