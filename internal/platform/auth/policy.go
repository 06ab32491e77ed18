package auth

import "strings"

// Capability names gate individual operations rather than whole route groups.
const (
	CapOrderCreate     = "order.create"
	CapOrderAdvance    = "order.advance"
	CapOrderCancel     = "order.cancel"
	CapOrderViewStore  = "order.view_store"
	CapOrderViewTenant = "order.view_tenant"
	CapStreamStore     = "stream.store"
	CapBroadcastSend   = "broadcast.send"
	CapTicketReprint   = "ticket.reprint"
)

// rolePolicy maps each role to the capabilities it grants. Roles are additive;
// an identity with several roles holds the union of their capabilities.
var rolePolicy = map[string]map[string]struct{}{
	RoleCustomer: capSet(
		CapOrderCreate,
	),
	RoleStaff: capSet(
		CapOrderCreate,
		CapOrderAdvance,
		CapOrderCancel,
		CapOrderViewStore,
		CapStreamStore,
		CapTicketReprint,
	),
	RoleKitchen: capSet(
		CapOrderAdvance,
		CapOrderViewStore,
		CapStreamStore,
	),
	RoleManager: capSet(
		CapOrderCreate,
		CapOrderAdvance,
		CapOrderCancel,
		CapOrderViewStore,
		CapOrderViewTenant,
		CapStreamStore,
		CapBroadcastSend,
		CapTicketReprint,
	),
	RoleAdmin: capSet(
		CapOrderCreate,
		CapOrderAdvance,
		CapOrderCancel,
		CapOrderViewStore,
		CapOrderViewTenant,
		CapStreamStore,
		CapBroadcastSend,
		CapTicketReprint,
	),
}

func capSet(caps ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the identity holds the named capability through any of its roles.
func (i *Identity) Can(capability string) bool {
	if i == nil {
		return false
	}
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return false
	}
	for _, role := range i.Roles {
		caps, ok := rolePolicy[normaliseRole(role)]
		if !ok {
			continue
		}
		if _, ok := caps[capability]; ok {
			return true
		}
	}
	return false
}

// Capabilities returns the sorted-free union of capabilities for the identity's roles.
func (i *Identity) Capabilities() []string {
	if i == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, role := range i.Roles {
		caps, ok := rolePolicy[normaliseRole(role)]
		if !ok {
			continue
		}
		for c := range caps {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
