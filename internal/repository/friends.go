package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"recommend-workers/internal/models"
)

// FriendRatingRepository reads ratings left by a user's friends.
type FriendRatingRepository struct {
	db *sql.DB
}

func NewFriendRatingRepository(db *sql.DB) *FriendRatingRepository {
	return &FriendRatingRepository{db: db}
}

// ForCandidates returns every friend rating on the given candidate IDs.
func (r *FriendRatingRepository) ForCandidates(ctx context.Context, userID string, candidateIDs []string) ([]models.FriendRating, error) {
	if userID == "" || len(candidateIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT r.user_id, COALESCE(u.display_name, ''), r.item_id, r.score
		FROM friendships f
		JOIN ratings r ON r.user_id = f.friend_id
		LEFT JOIN users u ON u.id = r.user_id
		WHERE f.user_id = $1 AND r.item_id = ANY($2)`,
		userID, pq.Array(candidateIDs))
	if err != nil {
		return nil, fmt.Errorf("query friend ratings: %w", err)
	}
	defer rows.Close()

	var out []models.FriendRating
	for rows.Next() {
		var fr models.FriendRating
		if err := rows.Scan(&fr.UserID, &fr.FriendName, &fr.CandidateID, &fr.Score); err != nil {
			return nil, fmt.Errorf("scan friend rating: %w", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}
