package database

// Scheduled post queries
const (
	postColumns = `id, subreddit, title, post_type, content, post_time, posted,
		last_error, created_at, flair_id, flair_text, destination_type`

	InsertPostQuery = `
		INSERT INTO scheduled_posts (
			subreddit, title, post_type, content, post_time, posted,
			last_error, created_at, flair_id, flair_text, destination_type
		) VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?, ?, ?)
	`

	SelectAllPostsQuery = `
		SELECT ` + postColumns + `
		FROM scheduled_posts
		ORDER BY post_time ASC, id ASC
	`

	SelectDuePostsQuery = `
		SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE posted = 0 AND post_time <= ?
		ORDER BY post_time ASC, id ASC
	`

	SelectPostByIDQuery = `
		SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE id = ?
	`

	MarkPostedQuery = `
		UPDATE scheduled_posts
		SET posted = 1, last_error = NULL
		WHERE id = ?
	`

	// Failure never touches posted; a row that was already posted keeps its state.
	MarkFailedQuery = `
		UPDATE scheduled_posts
		SET last_error = ?
		WHERE id = ? AND posted = 0
	`

	DeletePostQuery = `
		DELETE FROM scheduled_posts
		WHERE id = ?
	`

	CountPostsByStatusQuery = `
		SELECT
			COALESCE(SUM(CASE WHEN posted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN posted = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN posted = 0 AND last_error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM scheduled_posts
	`
)
