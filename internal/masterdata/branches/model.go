package branches

import (
	"time"
)

// StatusActive is the status of every provisioned branch.
const StatusActive = "Active"

// DefaultManager is assigned to branches created without one.
const DefaultManager = "Unassigned"

// Branch represents a branch entity. Inventory records reference it by name.
type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Manager   string    `json:"manager"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDefault builds an active, unassigned branch with the given address.
func NewDefault(name, address string) Branch {
	return Branch{
		Name:    name,
		Status:  StatusActive,
		Manager: DefaultManager,
		Address: address,
	}
}
