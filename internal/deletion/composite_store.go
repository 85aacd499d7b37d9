package deletion

import "context"

// CompositeStore is the production Store: it embeds SQLStore for every
// step that lives in the primary Postgres database and overrides the
// three steps that live in Supabase instead, matching the teacher's own
// split between its primary database and its Supabase project.
type CompositeStore struct {
	*SQLStore
	supabase *SupabaseStore
}

func NewCompositeStore(sql *SQLStore, supabase *SupabaseStore) *CompositeStore {
	return &CompositeStore{SQLStore: sql, supabase: supabase}
}

func (c *CompositeStore) DeleteNotificationData(ctx context.Context, tenant string) (int64, error) {
	return c.supabase.DeleteNotificationData(ctx, tenant)
}

func (c *CompositeStore) DeleteAdminNotes(ctx context.Context, tenant string) (int64, error) {
	return c.supabase.DeleteAdminNotes(ctx, tenant)
}

func (c *CompositeStore) DeleteUserAuditLog(ctx context.Context, tenant string) (int64, error) {
	return c.supabase.DeleteUserAuditLog(ctx, tenant)
}
