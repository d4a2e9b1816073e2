package serve

import "testing"

func TestChannelOwners(t *testing.T) {
	o := newChannelOwners()

	if !o.acquire("exec_1", "org_1") {
		t.Fatal("first claim should succeed")
	}
	if !o.acquire("exec_1", "org_1") {
		t.Error("same organization should join the claim")
	}
	if o.acquire("exec_1", "org_2") {
		t.Error("other organization should be refused")
	}

	o.release("exec_1")
	if o.acquire("exec_1", "org_2") {
		t.Error("claim should last until every holder releases")
	}

	o.release("exec_1")
	if len(o.claims) != 0 {
		t.Errorf("claims = %v, want none after last release", o.claims)
	}
	if !o.acquire("exec_1", "org_2") {
		t.Error("released channel should be claimable by anyone")
	}

	o.release("unknown")
}
