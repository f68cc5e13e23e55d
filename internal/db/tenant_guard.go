package db

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"brewery-production-backend/internal/appctx"
)

const tenantColumn = "tenant_id"

// ErrCrossTenantWrite is returned when a create carries another tenant's id.
var ErrCrossTenantWrite = errors.New("tenant guard: row belongs to another tenant")

// TenantGuardPlugin scopes queries, updates and deletes to the request's
// tenant_id and stamps tenant_id on creates, for every model that has the column.
//
// NOTE:
//   - This does NOT apply to Raw/Exec SQL. Those must filter tenant_id manually.
//   - Maintenance jobs bypass it explicitly with appctx.SkipTenantScope.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", tenantStampCallback); err != nil {
		return err
	}
	return nil
}

func tenantScopeCallback(db *gorm.DB) {
	tenantID, field := guardTarget(db)
	if field == nil {
		return
	}
	if whereHasTenantID(db.Statement.Clauses["WHERE"]) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn},
				Value:  tenantID,
			},
		},
	})
}

func tenantStampCallback(db *gorm.DB) {
	tenantID, field := guardTarget(db)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stampRow(ctx, field, reflect.Indirect(rv.Index(i)), tenantID); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := stampRow(ctx, field, rv, tenantID); err != nil {
			_ = db.AddError(err)
		}
	}
}

func stampRow(ctx context.Context, field *schema.Field, row reflect.Value, tenantID string) error {
	current, isZero := field.ValueOf(ctx, row)
	if isZero {
		return field.Set(ctx, row, tenantID)
	}
	if v, ok := current.(string); ok && v != tenantID {
		return ErrCrossTenantWrite
	}
	return nil
}

// guardTarget returns the tenant and the tenant_id field when the statement
// should be guarded, or a nil field when it should be left alone.
func guardTarget(db *gorm.DB) (string, *schema.Field) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return "", nil
	}
	ctx := db.Statement.Context
	if ctx == nil || appctx.ShouldSkipTenantScope(ctx) {
		return "", nil
	}
	tenantID, ok := appctx.TenantID(ctx)
	if !ok {
		return "", nil
	}
	field := db.Statement.Schema.LookUpField(tenantColumn)
	if field == nil {
		return "", nil
	}
	return tenantID, field
}

func whereHasTenantID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasTenantID(e) {
			return true
		}
	}
	return false
}

func exprHasTenantID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsTenantID(v.Column)
	case clause.Neq:
		return colIsTenantID(v.Column)
	case clause.IN:
		return colIsTenantID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasTenantID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	default:
		return false
	}
}

func colIsTenantID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn) || strings.HasSuffix(strings.ToLower(c), "."+tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	default:
		return false
	}
}
