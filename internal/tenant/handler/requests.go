package handler

import (
	"strings"

	dErrors "voterstore/pkg/domain-errors"
)

// AddPartitionRequest names the master to clone for a tenant.
type AddPartitionRequest struct {
	Master string `json:"master"`
}

// Normalize trims surrounding whitespace.
func (r *AddPartitionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Master = strings.TrimSpace(r.Master)
}

// Validate checks the request shape. Naming rules are enforced by the
// provisioner.
func (r *AddPartitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Master == "" {
		return dErrors.New(dErrors.CodeValidation, "master is required")
	}
	return nil
}
