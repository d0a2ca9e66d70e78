package models

// Tenant is the set of private partitions a tenant key owns.
//
// Invariants:
//   - Key matches the tenant key alphabet
//   - every entry in Partitions is named tenant_<Key>_<master>
type Tenant struct {
	Key        string   `json:"tenantKey"`
	Partitions []string `json:"partitions"`
}

// HasPartitions reports whether the tenant owns anything to tear down.
func (t *Tenant) HasPartitions() bool {
	return len(t.Partitions) > 0
}

// PartitionProvisioned is the result of cloning a master for a tenant.
type PartitionProvisioned struct {
	TenantKey   string `json:"tenantKey"`
	PartitionID string `json:"partitionId"`
	Master      string `json:"master"`
}

// TenantRemoved lists what a teardown dropped.
type TenantRemoved struct {
	TenantKey string   `json:"tenantKey"`
	Dropped   []string `json:"dropped"`
}
