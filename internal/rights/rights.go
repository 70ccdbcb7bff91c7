// Package rights decides what a user may see and do. Visibility of a
// network is the union of four sources: a direct share, membership in a
// project the network is attached to, ownership through the upload, and the
// network being public. Admins short circuit every check.
package rights

import (
	"context"

	"github.com/bel-commons/bel-commons/internal/db"
)

// RoleAdmin marks the role that bypasses all checks.
const RoleAdmin = "admin"

// Subject is the acting user as seen by the rights checks.
type Subject struct {
	ID   string
	Role string
}

// Admin reports whether the subject short circuits rights checks.
func (s Subject) Admin() bool {
	return s.Role == RoleAdmin
}

// Store is the persistence surface the checker reads from.
type Store interface {
	GetNetwork(ctx context.Context, id int64) (db.Network, error)
	NetworkSharedWith(ctx context.Context, arg db.NetworkSharedWithParams) (bool, error)
	NetworkInUserProject(ctx context.Context, arg db.NetworkInUserProjectParams) (bool, error)
	ListVisibleNetworks(ctx context.Context, userID string) ([]db.Network, error)
	ListAllNetworks(ctx context.Context) ([]db.Network, error)
}

// Checker answers rights questions against the store.
type Checker struct {
	store Store
}

// NewChecker returns a checker over the given store.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// VisibleNetworks returns every network the subject may see.
func (c *Checker) VisibleNetworks(ctx context.Context, sub Subject) ([]db.Network, error) {
	if sub.Admin() {
		return c.store.ListAllNetworks(ctx)
	}
	return c.store.ListVisibleNetworks(ctx, sub.ID)
}

// MayAccess reports whether the subject may read the network. The sources
// are checked cheapest first; any one of them grants access.
func (c *Checker) MayAccess(ctx context.Context, sub Subject, networkID int64) (bool, error) {
	if sub.Admin() {
		return true, nil
	}
	network, err := c.store.GetNetwork(ctx, networkID)
	if err != nil {
		return false, err
	}
	if network.Public {
		return true, nil
	}
	if network.UploaderID.Valid && network.UploaderID.String == sub.ID {
		return true, nil
	}
	shared, err := c.store.NetworkSharedWith(ctx, db.NetworkSharedWithParams{
		NetworkID: networkID,
		UserID:    sub.ID,
	})
	if err != nil {
		return false, err
	}
	if shared {
		return true, nil
	}
	return c.store.NetworkInUserProject(ctx, db.NetworkInUserProjectParams{
		NetworkID: networkID,
		UserID:    sub.ID,
	})
}

// MayModify reports whether the subject may change or delete the network.
// Only the uploader and admins may.
func (c *Checker) MayModify(ctx context.Context, sub Subject, networkID int64) (bool, error) {
	if sub.Admin() {
		return true, nil
	}
	network, err := c.store.GetNetwork(ctx, networkID)
	if err != nil {
		return false, err
	}
	return network.UploaderID.Valid && network.UploaderID.String == sub.ID, nil
}

// MayRunAssembly reports whether the subject may execute a query over the
// given networks. Every network of the assembly must be accessible.
func (c *Checker) MayRunAssembly(ctx context.Context, sub Subject, networkIDs []int64) (bool, error) {
	if sub.Admin() {
		return true, nil
	}
	for _, id := range networkIDs {
		ok, err := c.MayAccess(ctx, sub, id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
