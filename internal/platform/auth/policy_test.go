package auth

import "testing"

func TestIdentityCan(t *testing.T) {
	tests := []struct {
		name       string
		roles      []string
		capability string
		want       bool
	}{
		{"customer can create orders", []string{RoleCustomer}, CapOrderCreate, true},
		{"customer cannot advance orders", []string{RoleCustomer}, CapOrderAdvance, false},
		{"customer cannot open store streams", []string{RoleCustomer}, CapStreamStore, false},
		{"kitchen can advance orders", []string{RoleKitchen}, CapOrderAdvance, true},
		{"kitchen cannot cancel orders", []string{RoleKitchen}, CapOrderCancel, false},
		{"kitchen cannot broadcast", []string{RoleKitchen}, CapBroadcastSend, false},
		{"staff can reprint tickets", []string{RoleStaff}, CapTicketReprint, true},
		{"staff cannot view tenant-wide orders", []string{RoleStaff}, CapOrderViewTenant, false},
		{"manager can broadcast", []string{RoleManager}, CapBroadcastSend, true},
		{"admin can view tenant-wide orders", []string{RoleAdmin}, CapOrderViewTenant, true},
		{"roles are additive", []string{RoleCustomer, RoleKitchen}, CapOrderAdvance, true},
		{"role casing ignored", []string{"Manager"}, CapBroadcastSend, true},
		{"unknown role grants nothing", []string{"auditor"}, CapOrderCreate, false},
		{"empty capability denied", []string{RoleAdmin}, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			identity := &Identity{UID: "uid", Roles: tc.roles}
			if got := identity.Can(tc.capability); got != tc.want {
				t.Fatalf("Can(%q) with roles %v = %v, want %v", tc.capability, tc.roles, got, tc.want)
			}
		})
	}
}

func TestIdentityCanNilReceiver(t *testing.T) {
	var identity *Identity
	if identity.Can(CapOrderCreate) {
		t.Fatal("nil identity must not hold capabilities")
	}
}

func TestIdentityCapabilitiesUnion(t *testing.T) {
	identity := &Identity{Roles: []string{RoleCustomer, RoleKitchen}}
	caps := identity.Capabilities()

	want := map[string]bool{
		CapOrderCreate:    false,
		CapOrderAdvance:   false,
		CapOrderViewStore: false,
		CapStreamStore:    false,
	}
	for _, c := range caps {
		if _, ok := want[c]; !ok {
			t.Fatalf("unexpected capability %q", c)
		}
		want[c] = true
	}
	for c, seen := range want {
		if !seen {
			t.Fatalf("missing capability %q", c)
		}
	}
}
