// Package appctx holds the typed context keys shared by the HTTP layer, the
// data-access guard and background jobs.
package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyTenantID  = ContextKey("TenantId")
	ContextKeyActorID   = ContextKey("ActorId")
	ContextKeyRequestID = ContextKey("RequestId")

	// ContextKeySkipTenantScope disables tenant scoping for internal jobs only.
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

// WithTenant returns a copy of ctx scoped to tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ContextKeyTenantID, tenantID)
}

// TenantID returns the tenant carried by ctx, if any.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyTenantID).(string)
	return v, ok && v != ""
}

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}

// ActorID returns the acting user, or "system" for background work.
func ActorID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyActorID).(string); ok && v != "" {
		return v
	}
	return "system"
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyRequestID).(string)
	return v
}

// SkipTenantScope marks ctx so the tenant guard leaves queries unscoped.
// Use sparingly (cross-tenant maintenance only).
func SkipTenantScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeySkipTenantScope, true)
}

func ShouldSkipTenantScope(ctx context.Context) bool {
	v, ok := ctx.Value(ContextKeySkipTenantScope).(bool)
	return ok && v
}
