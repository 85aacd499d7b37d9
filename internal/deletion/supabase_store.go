package deletion

import (
	"context"

	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseStore covers the steps that live in Supabase rather than the
// primary Postgres database: notification data, admin notes, and the
// user-facing audit log. Mirrors the teacher's own dual Postgres+Supabase
// storage split (internal/database/supabase.go's generic row helpers),
// rather than modeling these tables as a second sql.DB connection.
type SupabaseStore struct {
	client *supabase.Client
}

func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{client: client}
}

func (s *SupabaseStore) deleteWhereTenant(table, tenant string) (int64, error) {
	_, count, err := s.client.From(table).Delete("", "exact").Eq("tenant", tenant).Execute()
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SupabaseStore) DeleteNotificationData(ctx context.Context, tenant string) (int64, error) {
	var total int64
	for _, table := range []string{"notification_queue", "notification_preferences", "notification_history"} {
		n, err := s.deleteWhereTenant(table, tenant)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SupabaseStore) DeleteAdminNotes(ctx context.Context, tenant string) (int64, error) {
	return s.deleteWhereTenant("admin_notes", tenant)
}

func (s *SupabaseStore) DeleteUserAuditLog(ctx context.Context, tenant string) (int64, error) {
	return s.deleteWhereTenant("user_audit_log", tenant)
}
