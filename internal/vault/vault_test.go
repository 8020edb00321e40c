package vault

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesNewVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")

	v, err := Open(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(v.ListIdentities()) != 0 {
		t.Errorf("new vault has %d identities, want 0", len(v.ListIdentities()))
	}
}

func TestOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")
	passphrase := "hunter2 hunter2"

	v, err := Open(path, passphrase)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.AddIdentity("alice"); err != nil {
		t.Fatalf("AddIdentity() error = %v", err)
	}

	reopened, err := Open(path, passphrase)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}

	got := reopened.ListIdentities()
	if len(got) != 1 || got[0].Name != "alice" {
		t.Fatalf("reopened vault identities = %+v, want one entry named alice", got)
	}
}

func TestOpenBadPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")

	v, err := Open(path, "correct passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.AddIdentity("alice"); err != nil {
		t.Fatalf("AddIdentity() error = %v", err)
	}

	if _, err := Open(path, "wrong passphrase"); err != ErrBadPassphrase {
		t.Fatalf("Open() with wrong passphrase error = %v, want %v", err, ErrBadPassphrase)
	}
}

func TestListIdentities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")
	v, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	names := []string{"alice", "bob", "carol"}
	for _, name := range names {
		if _, err := v.AddIdentity(name); err != nil {
			t.Fatalf("AddIdentity(%q) error = %v", name, err)
		}
	}

	entries := v.ListIdentities()
	if len(entries) != len(names) {
		t.Fatalf("ListIdentities() returned %d entries, want %d", len(entries), len(names))
	}
	for i, name := range names {
		if entries[i].Name != name {
			t.Errorf("entry %d name = %q, want %q", i, entries[i].Name, name)
		}
		if entries[i].Fingerprint == "" {
			t.Errorf("entry %d has empty fingerprint", i)
		}
	}
}

func TestExportAndAddTrusted(t *testing.T) {
	exporterPath := filepath.Join(t.TempDir(), "exporter.dat")
	exporter, err := Open(exporterPath, "exporter passphrase")
	if err != nil {
		t.Fatalf("Open() exporter error = %v", err)
	}
	if _, err := exporter.AddIdentity("alice"); err != nil {
		t.Fatalf("AddIdentity() error = %v", err)
	}

	encoded, err := exporter.ExportPublicIdentity("alice")
	if err != nil {
		t.Fatalf("ExportPublicIdentity() error = %v", err)
	}
	if encoded == "" {
		t.Fatal("ExportPublicIdentity() returned empty string")
	}

	importerPath := filepath.Join(t.TempDir(), "importer.dat")
	importer, err := Open(importerPath, "importer passphrase")
	if err != nil {
		t.Fatalf("Open() importer error = %v", err)
	}
	if err := importer.AddTrusted(encoded); err != nil {
		t.Fatalf("AddTrusted() error = %v", err)
	}

	trusted := importer.ListTrusted()
	if len(trusted) != 1 || trusted[0].Name != "alice" {
		t.Fatalf("ListTrusted() = %+v, want one entry named alice", trusted)
	}

	aliceIdentity, err := exporter.Identity("alice")
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if !importer.IsTrusted(aliceIdentity.Fingerprint) {
		t.Error("IsTrusted() = false for an identity just added to the trust list")
	}
}

func TestAddTrustedIsIdempotent(t *testing.T) {
	exporterPath := filepath.Join(t.TempDir(), "exporter.dat")
	exporter, err := Open(exporterPath, "exporter passphrase")
	if err != nil {
		t.Fatalf("Open() exporter error = %v", err)
	}
	if _, err := exporter.AddIdentity("alice"); err != nil {
		t.Fatalf("AddIdentity() error = %v", err)
	}
	encoded, err := exporter.ExportPublicIdentity("alice")
	if err != nil {
		t.Fatalf("ExportPublicIdentity() error = %v", err)
	}

	importerPath := filepath.Join(t.TempDir(), "importer.dat")
	importer, err := Open(importerPath, "importer passphrase")
	if err != nil {
		t.Fatalf("Open() importer error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := importer.AddTrusted(encoded); err != nil {
			t.Fatalf("AddTrusted() call %d error = %v", i, err)
		}
	}

	trusted := importer.ListTrusted()
	if len(trusted) != 1 {
		t.Fatalf("ListTrusted() = %+v, want exactly one entry after repeated AddTrusted of the same peer", trusted)
	}

	reopened, err := Open(importerPath, "importer passphrase")
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	if trusted := reopened.ListTrusted(); len(trusted) != 1 {
		t.Fatalf("ListTrusted() after reopen = %+v, want exactly one entry on disk", trusted)
	}
}

func TestExportPublicIdentityUnknownName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")
	v, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := v.ExportPublicIdentity("nobody"); err == nil {
		t.Error("ExportPublicIdentity() expected error for unknown name")
	}
}

func TestAddTrustedInvalidEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")
	v, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := v.AddTrusted("not valid base64!!"); err == nil {
		t.Error("AddTrusted() expected error for invalid encoding")
	}
}

func TestPersistRotatesNonce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.dat")
	v, err := Open(path, "passphrase")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	nonceAt := func() string {
		data := readFile(t, path)
		return string(data[saltSize : saltSize+24])
	}

	first := nonceAt()
	if _, err := v.AddIdentity("alice"); err != nil {
		t.Fatalf("AddIdentity() error = %v", err)
	}
	second := nonceAt()

	if first == second {
		t.Error("nonce was not rotated between writes")
	}
}
