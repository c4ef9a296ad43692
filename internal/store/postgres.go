package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/iptvdeck/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

var channelColumns = []string{"playlist_id", "name", "tvg_id", "logo", "group_title", "stream_url", "type", "metadata"}

// copyChannels bulk-inserts channels for playlistID inside tx.
func copyChannels(ctx context.Context, tx pgx.Tx, playlistID int64, channels []models.ParsedChannel) error {
	if len(channels) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"channels"}, channelColumns,
		pgx.CopyFromSlice(len(channels), func(i int) ([]any, error) {
			ch := channels[i]
			return []any{playlistID, ch.Name, ch.TvgID, ch.TvgLogo, ch.GroupTitle, ch.StreamURL, string(ch.Type), ch.Metadata}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy channels: %w", err)
	}
	return nil
}

// CreatePlaylist inserts the playlist row and copies its channels in one transaction.
func (p *Postgres) CreatePlaylist(ctx context.Context, pl *models.Playlist, channels []models.ParsedChannel) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreatePlaylist: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO playlists (name, url, content, device_key, is_active, last_parsed, parse_errors)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		pl.Name, pl.URL, pl.Content, pl.DeviceKey, pl.IsActive, pl.LastParsed, nonNil(pl.ParseErrors),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreatePlaylist: %w", err)
	}
	if err := copyChannels(ctx, tx, id, channels); err != nil {
		return 0, fmt.Errorf("CreatePlaylist: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("CreatePlaylist: commit: %w", err)
	}
	return id, nil
}

// ReplacePlaylistChannels deletes the old channel set and copies the new one.
func (p *Postgres) ReplacePlaylistChannels(ctx context.Context, playlistID int64, channels []models.ParsedChannel, parseErrors []string, parsedAt time.Time) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ReplacePlaylistChannels: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE playlists SET last_parsed = $2, parse_errors = $3, updated_at = NOW() WHERE id = $1`,
		playlistID, parsedAt, nonNil(parseErrors))
	if err != nil {
		return fmt.Errorf("ReplacePlaylistChannels: update playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE playlist_id = $1`, playlistID); err != nil {
		return fmt.Errorf("ReplacePlaylistChannels: delete channels: %w", err)
	}
	if err := copyChannels(ctx, tx, playlistID, channels); err != nil {
		return fmt.Errorf("ReplacePlaylistChannels: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ReplacePlaylistChannels: commit: %w", err)
	}
	return nil
}

const playlistSelect = `SELECT p.id, p.name, p.url, p.device_key, p.is_active, p.last_parsed,
	p.parse_errors, p.created_at, (SELECT COUNT(*) FROM channels c WHERE c.playlist_id = p.id)
	FROM playlists p`

func scanPlaylist(row pgx.Row) (*models.Playlist, error) {
	var (
		pl      models.Playlist
		created time.Time
	)
	err := row.Scan(&pl.ID, &pl.Name, &pl.URL, &pl.DeviceKey, &pl.IsActive, &pl.LastParsed,
		&pl.ParseErrors, &created, &pl.ChannelCount)
	if err != nil {
		return nil, err
	}
	pl.CreatedAt = &created
	pl.ParseErrors = nonNil(pl.ParseErrors)
	return &pl, nil
}

// GetPlaylistByID returns a single playlist by id.
func (p *Postgres) GetPlaylistByID(ctx context.Context, playlistID int64) (*models.Playlist, error) {
	pl, err := scanPlaylist(p.pool.QueryRow(ctx, playlistSelect+` WHERE p.id = $1`, playlistID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPlaylistByID: %w", err)
	}
	return pl, nil
}

// ListPlaylists returns playlists newest first.
func (p *Postgres) ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error) {
	var (
		where []string
		args  []any
	)
	if filter.DeviceKey != "" {
		args = append(args, filter.DeviceKey)
		where = append(where, fmt.Sprintf("p.device_key = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "p.is_active")
	}
	q := playlistSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY p.created_at DESC, p.id DESC"

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	defer rows.Close()

	out := []models.Playlist{}
	for rows.Next() {
		pl, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPlaylists: scan: %w", err)
		}
		out = append(out, *pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	return out, nil
}

// GetPlaylistContent returns the stored M3U text of a playlist.
func (p *Postgres) GetPlaylistContent(ctx context.Context, playlistID int64) (*string, error) {
	var content *string
	err := p.pool.QueryRow(ctx, `SELECT content FROM playlists WHERE id = $1`, playlistID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPlaylistContent: %w", err)
	}
	return content, nil
}

// DeletePlaylist deletes a playlist; channels go with it via ON DELETE CASCADE.
func (p *Postgres) DeletePlaylist(ctx context.Context, playlistID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, playlistID)
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const channelSelect = `SELECT id, playlist_id, name, tvg_id, logo, group_title, stream_url, type, metadata FROM channels`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var (
		ch  models.Channel
		typ string
	)
	if err := row.Scan(&ch.ID, &ch.PlaylistID, &ch.Name, &ch.TvgID, &ch.Logo, &ch.Group, &ch.StreamURL, &typ, &ch.Metadata); err != nil {
		return nil, err
	}
	ch.Type = models.ContentType(typ)
	return &ch, nil
}

// GetChannelByID returns a single channel by id.
func (p *Postgres) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch, err := scanChannel(p.pool.QueryRow(ctx, channelSelect+` WHERE id = $1`, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	return ch, nil
}

// ListChannels returns one page of channels in playlist order plus the total match count.
func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	filter = filter.Normalize()
	args := []any{filter.PlaylistID}
	where := []string{"playlist_id = $1"}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Group != "" {
		args = append(args, filter.Group)
		where = append(where, fmt.Sprintf("group_title = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		where = append(where, fmt.Sprintf("name ILIKE '%%' || $%d || '%%'", len(args)))
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels: count: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	q := fmt.Sprintf("%s%s ORDER BY id LIMIT $%d OFFSET $%d", channelSelect, cond, len(args)-1, len(args))
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	out := []models.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListChannels: scan: %w", err)
		}
		out = append(out, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	return out, total, nil
}

// CountChannelsByPlaylist returns the number of channels owned by a playlist.
func (p *Postgres) CountChannelsByPlaylist(ctx context.Context, playlistID int64) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels WHERE playlist_id = $1`, playlistID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountChannelsByPlaylist: %w", err)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
