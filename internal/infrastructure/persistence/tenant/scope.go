// Package tenant provides tenant scoping for GORM queries.
//
// Every pipeline table carries a tenant_id column and every repository
// query runs through Scope, so a cross-tenant read cannot happen by
// omission. Worker runs fan out per tenant, which means the tenant ID
// always arrives as an explicit argument rather than from request context.
package tenant

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrTenantRequired is returned when a scoped query is attempted without a tenant ID
var ErrTenantRequired = errors.New("tenant ID is required for tenant-scoped queries")

// Scope applies the tenant filter to a GORM query. A nil tenant ID poisons
// the query instead of silently matching every tenant's rows.
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrTenantRequired)
			return db
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}
