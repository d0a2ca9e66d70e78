package provision

import (
	"fmt"
	"regexp"
	"strings"

	"voterstore/internal/partition/models"
	dErrors "voterstore/pkg/domain-errors"
)

// tenantPrefix marks tenant-private partitions: tenant_<tenantKey>_<master>.
const tenantPrefix = "tenant_"

// Tenant keys exclude "_" so a private partition name maps back to exactly
// one owner.
var tenantKeyPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,32}$`)

// ValidateTenantKey rejects keys that cannot be embedded in a partition name.
func ValidateTenantKey(tenantKey string) error {
	if !tenantKeyPattern.MatchString(tenantKey) {
		return dErrors.New(dErrors.CodeValidation, "tenant key must be 1-32 letters, digits or hyphens")
	}
	return nil
}

// TenantPartitionName returns the private partition name for tenantKey's copy
// of master.
func TenantPartitionName(tenantKey, master string) (string, error) {
	if err := ValidateTenantKey(tenantKey); err != nil {
		return "", err
	}
	master, err := models.ValidateName(master)
	if err != nil {
		return "", err
	}
	if IsTenantPrivate(master) {
		return "", dErrors.New(dErrors.CodeInvalidSource, "tenant partitions cannot be cloned again")
	}
	name := tenantPrefix + tenantKey + "_" + master
	if len(name) > models.MaxNameLength {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("tenant partition name exceeds %d bytes", models.MaxNameLength))
	}
	return name, nil
}

// IsTenantPrivate reports whether name follows the tenant-private convention.
func IsTenantPrivate(name string) bool {
	_, ok := OwnerOf(name)
	return ok
}

// OwnerOf returns the tenant key embedded in a tenant-private name.
func OwnerOf(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, tenantPrefix)
	if !ok {
		return "", false
	}
	key, master, ok := strings.Cut(rest, "_")
	if !ok || master == "" || !tenantKeyPattern.MatchString(key) {
		return "", false
	}
	return key, true
}
