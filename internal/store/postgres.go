package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// --- users (identity) ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name)
		VALUES ($1, LOWER($2), $3, $4)
	`, user.ID, user.Email, user.PasswordHash, user.DisplayName)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, created_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// --- profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	var interestsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, bio, location, interests, profile_image, cover_image
		FROM profiles
		WHERE user_id=$1
	`, userID).Scan(&profile.DisplayName, &profile.Bio, &profile.Location, &interestsRaw, &profile.ProfileImage, &profile.CoverImage)
	if err != nil {
		return Profile{}, err
	}
	profile.Interests = []string{}
	_ = json.Unmarshal(interestsRaw, &profile.Interests)
	return profile, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, userID string, profile Profile) error {
	interests := profile.Interests
	if interests == nil {
		interests = []string{}
	}
	encoded, err := json.Marshal(interests)
	if err != nil {
		return fmt.Errorf("marshal interests: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, bio, location, interests, profile_image, cover_image)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, profile.DisplayName, profile.Bio, profile.Location, string(encoded), profile.ProfileImage, profile.CoverImage)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// UpdateProfileFields merges only the non-nil patch fields into the profile
// row. Returns false when no row exists for the user.
func (s *PostgresStore) UpdateProfileFields(ctx context.Context, userID string, patch ProfilePatch) (bool, error) {
	var interests *string
	if patch.Interests != nil {
		encoded, err := json.Marshal(*patch.Interests)
		if err != nil {
			return false, fmt.Errorf("marshal interests: %w", err)
		}
		value := string(encoded)
		interests = &value
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET
			display_name = COALESCE($2, display_name),
			bio = COALESCE($3, bio),
			location = COALESCE($4, location),
			interests = COALESCE($5::jsonb, interests),
			profile_image = COALESCE($6, profile_image),
			cover_image = COALESCE($7, cover_image),
			updated_at = NOW()
		WHERE user_id=$1
	`, userID, patch.DisplayName, patch.Bio, patch.Location, interests, patch.ProfileImage, patch.CoverImage)
	if err != nil {
		return false, fmt.Errorf("update profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update profile rows: %w", err)
	}
	return affected > 0, nil
}

// --- posts ---

const postColumns = `id, user_id, user_name, user_avatar, content, COALESCE(image, ''), array_to_json(likes), comments::text, client_timestamp, server_timestamp`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var post Post
	var likesRaw, commentsRaw []byte
	if err := row.Scan(
		&post.ID,
		&post.UserID,
		&post.UserName,
		&post.UserAvatar,
		&post.Content,
		&post.Image,
		&likesRaw,
		&commentsRaw,
		&post.ClientTimestamp,
		&post.ServerTimestamp,
	); err != nil {
		return Post{}, err
	}
	post.Likes = []string{}
	post.Comments = []Comment{}
	_ = json.Unmarshal(likesRaw, &post.Likes)
	_ = json.Unmarshal(commentsRaw, &post.Comments)
	return post, nil
}

// ListPosts returns the whole feed newest first, ties broken by id so the
// order is stable across reloads.
func (s *PostgresStore) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		ORDER BY server_timestamp DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, postID)
	return scanPost(row)
}

// InsertPost persists a new post and returns the canonical server timestamp.
func (s *PostgresStore) InsertPost(ctx context.Context, post Post) (time.Time, error) {
	var serverTimestamp time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (id, user_id, user_name, user_avatar, content, image, likes, comments, client_timestamp)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), '{}', '[]'::jsonb, $7)
		RETURNING server_timestamp
	`, post.ID, post.UserID, post.UserName, post.UserAvatar, post.Content, post.Image, post.ClientTimestamp).Scan(&serverTimestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("insert post: %w", err)
	}
	return serverTimestamp, nil
}

func (s *PostgresStore) UpdatePostContent(ctx context.Context, postID, userID, content, image string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET content=$3, image=NULLIF($4, '')
		WHERE id=$1 AND user_id=$2
	`, postID, userID, content, image)
	if err != nil {
		return false, fmt.Errorf("update post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update post rows: %w", err)
	}
	return affected > 0, nil
}

// DeletePost removes the post only when the caller owns it; a non-owner call
// affects zero rows.
func (s *PostgresStore) DeletePost(ctx context.Context, postID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1 AND user_id=$2`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete post rows: %w", err)
	}
	return affected > 0, nil
}

// AddPostLike appends the uid only if absent, in a single statement.
func (s *PostgresStore) AddPostLike(ctx context.Context, postID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET likes = array_append(likes, $2)
		WHERE id=$1 AND NOT ($2 = ANY(likes))
	`, postID, userID)
	if err != nil {
		return fmt.Errorf("add post like: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemovePostLike(ctx context.Context, postID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET likes = array_remove(likes, $2)
		WHERE id=$1
	`, postID, userID)
	if err != nil {
		return fmt.Errorf("remove post like: %w", err)
	}
	return nil
}

// AppendPostComment appends atomically to the embedded comment array, so
// existing comments are never reordered or dropped.
func (s *PostgresStore) AppendPostComment(ctx context.Context, postID string, comment Comment) (bool, error) {
	encoded, err := json.Marshal([]Comment{comment})
	if err != nil {
		return false, fmt.Errorf("marshal comment: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET comments = comments || $2::jsonb
		WHERE id=$1
	`, postID, string(encoded))
	if err != nil {
		return false, fmt.Errorf("append post comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append post comment rows: %w", err)
	}
	return affected > 0, nil
}

// --- journeys ---

func (s *PostgresStore) ListJourneys(ctx context.Context) ([]Journey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, j.user_id, j.user_email, j.title, j.description, j.category, COALESCE(j.image, ''), array_to_json(j.likes), j.created_at,
			(SELECT COUNT(*) FROM journey_comments c WHERE c.journey_id = j.id) AS comments_count
		FROM journeys j
		ORDER BY j.created_at DESC, j.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	defer rows.Close()

	items := make([]Journey, 0)
	for rows.Next() {
		var item Journey
		var likesRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.UserEmail,
			&item.Title,
			&item.Description,
			&item.Category,
			&item.Image,
			&likesRaw,
			&item.CreatedAt,
			&item.CommentsCount,
		); err != nil {
			return nil, fmt.Errorf("scan journey: %w", err)
		}
		item.Likes = []string{}
		_ = json.Unmarshal(likesRaw, &item.Likes)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journeys: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetJourney(ctx context.Context, journeyID string) (Journey, error) {
	var item Journey
	var likesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, user_email, title, description, category, COALESCE(image, ''), array_to_json(likes), created_at
		FROM journeys
		WHERE id=$1
	`, journeyID).Scan(
		&item.ID,
		&item.UserID,
		&item.UserEmail,
		&item.Title,
		&item.Description,
		&item.Category,
		&item.Image,
		&likesRaw,
		&item.CreatedAt,
	)
	if err != nil {
		return Journey{}, err
	}
	item.Likes = []string{}
	_ = json.Unmarshal(likesRaw, &item.Likes)
	return item, nil
}

func (s *PostgresStore) InsertJourney(ctx context.Context, journey Journey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journeys (id, user_id, user_email, title, description, category, image, likes)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), '{}')
	`, journey.ID, journey.UserID, journey.UserEmail, journey.Title, journey.Description, journey.Category, journey.Image)
	if err != nil {
		return fmt.Errorf("insert journey: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddJourneyLike(ctx context.Context, journeyID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE journeys SET likes = array_append(likes, $2)
		WHERE id=$1 AND NOT ($2 = ANY(likes))
	`, journeyID, userID)
	if err != nil {
		return fmt.Errorf("add journey like: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveJourneyLike(ctx context.Context, journeyID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE journeys SET likes = array_remove(likes, $2)
		WHERE id=$1
	`, journeyID, userID)
	if err != nil {
		return fmt.Errorf("remove journey like: %w", err)
	}
	return nil
}

// --- journey comments ---

func (s *PostgresStore) InsertJourneyComment(ctx context.Context, comment JourneyComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journey_comments (id, journey_id, user_id, user_email, body)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.JourneyID, comment.UserID, comment.UserEmail, comment.Text)
	if err != nil {
		return fmt.Errorf("insert journey comment: %w", err)
	}
	return nil
}

// ListJourneyComments intentionally carries no ORDER BY; callers sort
// newest-first after every read.
func (s *PostgresStore) ListJourneyComments(ctx context.Context, journeyID string) ([]JourneyComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, journey_id, user_id, user_email, body, created_at
		FROM journey_comments
		WHERE journey_id=$1
	`, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey comments: %w", err)
	}
	defer rows.Close()

	items := make([]JourneyComment, 0)
	for rows.Next() {
		var item JourneyComment
		if err := rows.Scan(&item.ID, &item.JourneyID, &item.UserID, &item.UserEmail, &item.Text, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journey comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journey comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) JourneyCommentCount(ctx context.Context, journeyID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journey_comments WHERE journey_id=$1`, journeyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count journey comments: %w", err)
	}
	return count, nil
}

// --- challenges ---

func (s *PostgresStore) ListChallenges(ctx context.Context, userID string) ([]Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, difficulty, impact, COALESCE(due_date, ''), completed
		FROM challenges
		WHERE user_id=$1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	items := make([]Challenge, 0)
	for rows.Next() {
		var item Challenge
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.Difficulty, &item.Impact, &item.DueDate, &item.Completed); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, challengeID string) (Challenge, error) {
	var item Challenge
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, difficulty, impact, COALESCE(due_date, ''), completed
		FROM challenges
		WHERE id=$1
	`, challengeID).Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.Difficulty, &item.Impact, &item.DueDate, &item.Completed)
	if err != nil {
		return Challenge{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertChallenge(ctx context.Context, challenge Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, user_id, title, description, difficulty, impact, due_date, completed)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, challenge.ID, challenge.UserID, challenge.Title, challenge.Description, challenge.Difficulty, challenge.Impact, challenge.DueDate, challenge.Completed)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// UpdateChallenge is a full-field overwrite of the editable fields, scoped to
// the owner.
func (s *PostgresStore) UpdateChallenge(ctx context.Context, challenge Challenge) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE challenges SET title=$3, description=$4, difficulty=$5, impact=$6, due_date=NULLIF($7, ''), updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, challenge.ID, challenge.UserID, challenge.Title, challenge.Description, challenge.Difficulty, challenge.Impact, challenge.DueDate)
	if err != nil {
		return false, fmt.Errorf("update challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update challenge rows: %w", err)
	}
	return affected > 0, nil
}

// SetChallengeCompleted flips only the completed flag so concurrent edits to
// other fields are not clobbered.
func (s *PostgresStore) SetChallengeCompleted(ctx context.Context, challengeID, userID string, completed bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE challenges SET completed=$3, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, challengeID, userID, completed)
	if err != nil {
		return false, fmt.Errorf("set challenge completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set challenge completed rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteChallenge(ctx context.Context, challengeID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id=$1 AND user_id=$2`, challengeID, userID)
	if err != nil {
		return false, fmt.Errorf("delete challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete challenge rows: %w", err)
	}
	return affected > 0, nil
}

// --- carbon footprint entries ---

func (s *PostgresStore) ListCarbonEntries(ctx context.Context, userID string) ([]CarbonEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, entry_date, total, transportation, energy, consumption, waste
		FROM carbon_footprints
		WHERE user_id=$1
		ORDER BY entry_date ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list carbon entries: %w", err)
	}
	defer rows.Close()

	items := make([]CarbonEntry, 0)
	for rows.Next() {
		var item CarbonEntry
		if err := rows.Scan(&item.ID, &item.UserID, &item.Date, &item.Total, &item.Transportation, &item.Energy, &item.Consumption, &item.Waste); err != nil {
			return nil, fmt.Errorf("scan carbon entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate carbon entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCarbonEntry(ctx context.Context, entry CarbonEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carbon_footprints (id, user_id, entry_date, total, transportation, energy, consumption, waste)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.UserID, entry.Date, entry.Total, entry.Transportation, entry.Energy, entry.Consumption, entry.Waste)
	if err != nil {
		return fmt.Errorf("insert carbon entry: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
