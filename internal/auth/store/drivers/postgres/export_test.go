package postgres

import "context"

// Truncate empties every table, for tests sharing one container.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE sessions, members`)
	return err
}
