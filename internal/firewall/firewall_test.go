// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import "testing"

// fakeBlocker records every install/remove call so tests can assert on
// call counts without a kernel.
type fakeBlocker struct {
	installs []string
	removes  []string
}

func (f *fakeBlocker) InstallDrop(ip string) error {
	f.installs = append(f.installs, ip)
	return nil
}

func (f *fakeBlocker) RemoveDrop(ip string) error {
	f.removes = append(f.removes, ip)
	return nil
}

func (f *fakeBlocker) ClearAllDrops() error { return nil }

func TestSanitizeHostStripsPort(t *testing.T) {
	cases := map[string]string{
		"10.0.0.5":      "10.0.0.5",
		"10.0.0.5:1234": "10.0.0.5",
		"[::1]:80":      "::1",
		"2001:db8::1":   "2001:db8::1",
	}
	for in, want := range cases {
		if got := sanitizeHost(in); got != want {
			t.Errorf("sanitizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestS3BlockInstallsDropOnce is scenario S3 from §8: two matching packets
// from the same source produce exactly one install on first match and a
// remove-then-reinstall on the second, never a stacked duplicate.
func TestS3BlockInstallsDropOnce(t *testing.T) {
	fb := &fakeBlocker{}
	mgr := NewBlockManager(fb, nil)

	mgr.Block("10.0.0.9")
	mgr.Block("10.0.0.9")

	if len(fb.installs) != 2 {
		t.Fatalf("expected 2 installs (initial + reinstall), got %d: %+v", len(fb.installs), fb.installs)
	}
	if len(fb.removes) != 1 {
		t.Fatalf("expected exactly 1 remove (before reinstall), got %d: %+v", len(fb.removes), fb.removes)
	}
	if !mgr.blacklist.Contains("10.0.0.9") {
		t.Error("expected 10.0.0.9 to remain blacklisted after reinstall")
	}
}

func TestBlockSanitizesHostPortForm(t *testing.T) {
	fb := &fakeBlocker{}
	mgr := NewBlockManager(fb, nil)

	mgr.Block("10.0.0.9:4444")

	if len(fb.installs) != 1 || fb.installs[0] != "10.0.0.9" {
		t.Fatalf("expected sanitized install for 10.0.0.9, got %+v", fb.installs)
	}
	if !mgr.blacklist.Contains("10.0.0.9") {
		t.Error("expected blacklist to track the sanitized host")
	}
}

func TestClearAllRemovesEveryMember(t *testing.T) {
	fb := &fakeBlocker{}
	mgr := NewBlockManager(fb, nil)

	mgr.Block("10.0.0.1")
	mgr.Block("10.0.0.2")
	mgr.ClearAll()

	if len(fb.removes) != 2 {
		t.Fatalf("expected 2 removes during ClearAll, got %d: %+v", len(fb.removes), fb.removes)
	}
	if len(mgr.blacklist.Members()) != 0 {
		t.Error("expected blacklist to be empty after ClearAll")
	}
}

func TestBlacklistAddRemoveContains(t *testing.T) {
	b := NewBlacklist()
	b.Add("10.0.0.1")
	if !b.Contains("10.0.0.1") {
		t.Error("expected 10.0.0.1 to be present after Add")
	}
	b.Remove("10.0.0.1")
	if b.Contains("10.0.0.1") {
		t.Error("expected 10.0.0.1 to be absent after Remove")
	}
}
