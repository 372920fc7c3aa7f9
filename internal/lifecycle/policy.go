// internal/lifecycle/policy.go
package lifecycle

import (
	"fmt"

	"gearledger/internal/domain"
)

// ClaimMode selects between the single-step and two-step claim.
type ClaimMode string

const (
	// ClaimDirect takes custody on claim: AVAILABLE -> CHECKED_OUT.
	ClaimDirect ClaimMode = "direct"
	// ClaimReserve holds the equipment first: AVAILABLE -> RESERVED -> CHECKED_OUT.
	ClaimReserve ClaimMode = "reserve"
)

// ReleasePolicy decides who may close somebody else's checkout.
type ReleasePolicy string

const (
	ReleaseHolderOnly       ReleasePolicy = "holder_only"
	ReleaseHolderOrElevated ReleasePolicy = "holder_or_elevated"
)

// Policy is the configurable part of the state machine.
type Policy struct {
	ClaimMode     ClaimMode
	ReleasePolicy ReleasePolicy
	// ElevatedRoles may retire, create, delete and manage maintenance.
	ElevatedRoles []string
}

// DefaultPolicy returns direct claims, force release by elevated roles and
// admin/manager as the elevated roles.
func DefaultPolicy() Policy {
	return Policy{
		ClaimMode:     ClaimDirect,
		ReleasePolicy: ReleaseHolderOrElevated,
		ElevatedRoles: []string{"admin", "manager"},
	}
}

// Validate rejects unknown modes and an empty role set.
func (p Policy) Validate() error {
	switch p.ClaimMode {
	case ClaimDirect, ClaimReserve:
	default:
		return fmt.Errorf("%w: unknown claim mode %q", domain.ErrValidation, p.ClaimMode)
	}
	switch p.ReleasePolicy {
	case ReleaseHolderOnly, ReleaseHolderOrElevated:
	default:
		return fmt.Errorf("%w: unknown release policy %q", domain.ErrValidation, p.ReleasePolicy)
	}
	if len(p.ElevatedRoles) == 0 {
		return fmt.Errorf("%w: at least one elevated role is required", domain.ErrValidation)
	}
	return nil
}

func (p Policy) elevated(a domain.Actor) bool {
	return a.HasAnyRole(p.ElevatedRoles)
}

// mayRelease reports whether a may close co.
func (p Policy) mayRelease(a domain.Actor, co domain.Checkout) bool {
	if co.HolderID == a.UserID {
		return true
	}
	return p.ReleasePolicy == ReleaseHolderOrElevated && p.elevated(a)
}
