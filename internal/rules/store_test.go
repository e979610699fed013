// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"sort"
	"testing"
)

func ruleIDs(rs []Rule) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestInsertAndLookupExactPrefix(t *testing.T) {
	s := NewStore([]string{"TCP"})
	r := Rule{ID: "R1", Protocol: "TCP", SrcIP: "10.0.0.5", DstIP: Any, SrcPort: Any, DstPort: Any}
	if err := s.Insert("TCP", r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Lookup("TCP", "10.0.0.5")
	if len(got) != 1 || got[0].ID != "R1" {
		t.Fatalf("expected [R1], got %+v", got)
	}
}

func TestLookupUnknownProtocolIsCheapMiss(t *testing.T) {
	s := NewStore([]string{"TCP"})
	if got := s.Lookup("UDP", "10.0.0.5"); got != nil {
		t.Errorf("expected nil for unregistered protocol, got %+v", got)
	}
}

func TestDuplicateRuleIDRejected(t *testing.T) {
	s := NewStore([]string{"TCP"})
	r := Rule{ID: "R1", Protocol: "TCP", SrcIP: "10.0.0.5"}
	if err := s.Insert("TCP", r); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	r2 := Rule{ID: "R1", Protocol: "TCP", SrcIP: "10.0.0.9"}
	if err := s.Insert("TCP", r2); err == nil {
		t.Error("expected duplicate rule_id insert to be rejected")
	}
}

// TestWildcardFallback is scenario S4: a rule stored under src_ip "any" is
// returned for a query IP that shares no trie path with it.
func TestWildcardFallback(t *testing.T) {
	s := NewStore([]string{"TCP"})
	wc := Rule{ID: "WC", Protocol: "TCP", SrcIP: Any, DstIP: Any, SrcPort: Any, DstPort: Any}
	if err := s.Insert("TCP", wc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Lookup("TCP", "203.0.113.7")
	if len(got) != 1 || got[0].ID != "WC" {
		t.Fatalf("expected wildcard fallback to return [WC], got %+v", got)
	}
}

func TestLookupCompletedWalkIncludesWildcards(t *testing.T) {
	s := NewStore([]string{"TCP"})
	literal := Rule{ID: "LIT", Protocol: "TCP", SrcIP: "10.1.2.3"}
	wc := Rule{ID: "WC", Protocol: "TCP", SrcIP: Any, DstIP: Any}
	if err := s.Insert("TCP", literal); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert("TCP", wc); err != nil {
		t.Fatal(err)
	}

	got := ruleIDs(s.Lookup("TCP", "10.1.2.3"))
	want := []string{"LIT", "WC"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// TestCharacterWisePrefixIsNotCIDR documents the deliberate, spec-mandated
// weakness of string-prefix matching (§9): "10.1" is a character-wise
// prefix of "10.1.2.3" but not of "10.11.2.3".
func TestCharacterWisePrefixIsNotCIDR(t *testing.T) {
	s := NewStore([]string{"TCP"})
	r := Rule{ID: "R1", Protocol: "TCP", SrcIP: "10.1"}
	if err := s.Insert("TCP", r); err != nil {
		t.Fatal(err)
	}

	if got := s.Lookup("TCP", "10.1.2.3"); len(got) != 1 {
		t.Errorf("expected 10.1 to prefix-match 10.1.2.3, got %+v", got)
	}
	if got := s.Lookup("TCP", "10.11.2.3"); len(got) != 0 {
		t.Errorf("expected 10.1 to NOT prefix-match 10.11.2.3 (abandoned walk, no wildcards present), got %+v", got)
	}
}

func TestInsertUnsupportedProtocol(t *testing.T) {
	s := NewStore([]string{"TCP"})
	err := s.Insert("UDP", Rule{ID: "R1", SrcIP: "1.2.3.4"})
	if err == nil {
		t.Error("expected error inserting into unregistered protocol")
	}
}

func TestRemove(t *testing.T) {
	s := NewStore([]string{"TCP"})
	r := Rule{ID: "R1", Protocol: "TCP", SrcIP: "10.0.0.5"}
	if err := s.Insert("TCP", r); err != nil {
		t.Fatal(err)
	}

	if !s.Remove("TCP", "10.0.0.5", "R1") {
		t.Fatal("expected Remove to report success")
	}
	if got := s.Lookup("TCP", "10.0.0.5"); len(got) != 0 {
		t.Errorf("expected no rules after removal, got %+v", got)
	}

	// Reinsertion under the same rule_id should now succeed again.
	if err := s.Insert("TCP", r); err != nil {
		t.Errorf("expected reinsertion after removal to succeed: %v", err)
	}
}

func TestRemoveMissingPath(t *testing.T) {
	s := NewStore([]string{"TCP"})
	if s.Remove("TCP", "10.0.0.5", "R1") {
		t.Error("expected Remove on absent path to report false")
	}
}
