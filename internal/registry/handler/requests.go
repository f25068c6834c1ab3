package handler

import (
	"strings"

	"did-registry/pkg/domain"
)

// RegisterRequest is the payload for POST /dids.
type RegisterRequest struct {
	DID      string `json:"did"`
	Document string `json:"document"`
}

func (r *RegisterRequest) Normalize() {
	r.DID = strings.TrimSpace(r.DID)
}

func (r *RegisterRequest) Validate() (domain.DID, error) {
	return domain.ParseDID(r.DID)
}

// UpdateRequest is the payload for PUT /dids/{did}/document.
type UpdateRequest struct {
	Document string `json:"document"`
}

// DelegateRequest is the payload for POST /dids/{did}/delegates.
type DelegateRequest struct {
	Delegate string `json:"delegate"`
}

func (r *DelegateRequest) Normalize() {
	r.Delegate = strings.TrimSpace(r.Delegate)
}

func (r *DelegateRequest) Validate() (domain.Address, error) {
	// The zero identity passes through: the service ranks it behind the
	// NotFound, Inactive and Unauthorized checks, and transport must not
	// answer ahead of that order.
	if r.Delegate == "" {
		return domain.Address(""), nil
	}
	return domain.ParseAddress(r.Delegate)
}
