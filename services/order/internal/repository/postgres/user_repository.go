package postgres

import "context"

type userRepository struct {
	q DBTX
}

// Exists 사용자 존재 여부
func (r *userRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, translate("failed to check user", err)
	}
	return exists, nil
}
