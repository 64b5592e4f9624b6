package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"servicepulse/internal/models"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS services (
			id                    UUID PRIMARY KEY,
			name                  TEXT NOT NULL,
			description           TEXT NOT NULL DEFAULT '',
			type                  TEXT NOT NULL,
			target                TEXT NOT NULL,
			config                JSONB NOT NULL DEFAULT '{}',
			interval_seconds      INTEGER NOT NULL DEFAULT 60,
			timeout_seconds       INTEGER NOT NULL DEFAULT 30,
			status                TEXT NOT NULL DEFAULT 'unknown',
			is_active             BOOLEAN NOT NULL DEFAULT TRUE,
			last_check_at         TIMESTAMPTZ,
			last_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			uptime_percentage     DOUBLE PRECISION NOT NULL DEFAULT 0,
			consecutive_failures  INTEGER NOT NULL DEFAULT 0,
			tags                  JSONB NOT NULL DEFAULT '[]',
			group_name            TEXT NOT NULL DEFAULT '',
			created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS check_results (
			id               UUID PRIMARY KEY,
			service_id       UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
			is_healthy       BOOLEAN NOT NULL,
			status_code      INTEGER,
			response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			message          TEXT,
			error            TEXT,
			metadata         JSONB NOT NULL DEFAULT '{}',
			checked_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS ix_services_is_active ON services (is_active);
		CREATE INDEX IF NOT EXISTS ix_check_results_service_checked
			ON check_results (service_id, checked_at);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const serviceColumns = `
	id, name, description, type, target, config,
	interval_seconds, timeout_seconds, status, is_active,
	last_check_at, last_response_time_ms, uptime_percentage,
	consecutive_failures, tags, group_name, created_at, updated_at`

func (p *Postgres) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	row := p.pool.QueryRow(ctx, `SELECT`+serviceColumns+` FROM services WHERE id = $1`, id)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

func (p *Postgres) ListServices(ctx context.Context) ([]*models.Service, error) {
	rows, err := p.pool.Query(ctx, `SELECT`+serviceColumns+` FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()
	return scanServices(rows)
}

func (p *Postgres) ListDueServices(ctx context.Context, now time.Time) ([]*models.Service, error) {
	// Broad candidate query; the precise last_check_at + interval test
	// happens below, per service.
	rows, err := p.pool.Query(ctx, `
		SELECT`+serviceColumns+`
		  FROM services
		 WHERE is_active = TRUE
		   AND status <> 'paused'
		   AND (last_check_at IS NULL OR last_check_at < $1)`,
		now.Add(-time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("list due services: %w", err)
	}
	defer rows.Close()

	candidates, err := scanServices(rows)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Service, 0, len(candidates))
	for _, svc := range candidates {
		if isDue(svc, now) {
			due = append(due, svc)
		}
	}
	return due, nil
}

func (p *Postgres) SaveService(ctx context.Context, svc *models.Service) error {
	configJSON, err := json.Marshal(orEmptyMap(svc.Config))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tagsJSON, err := json.Marshal(orEmptySlice(svc.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			target = EXCLUDED.target,
			config = EXCLUDED.config,
			interval_seconds = EXCLUDED.interval_seconds,
			timeout_seconds = EXCLUDED.timeout_seconds,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			last_check_at = EXCLUDED.last_check_at,
			last_response_time_ms = EXCLUDED.last_response_time_ms,
			uptime_percentage = EXCLUDED.uptime_percentage,
			consecutive_failures = EXCLUDED.consecutive_failures,
			tags = EXCLUDED.tags,
			group_name = EXCLUDED.group_name,
			updated_at = EXCLUDED.updated_at`,
		svc.ID, svc.Name, svc.Description, string(svc.Type), svc.Target, configJSON,
		svc.IntervalSeconds, svc.TimeoutSeconds, string(svc.Status), svc.IsActive,
		svc.LastCheckAt, svc.LastResponseTimeMS, svc.UptimePercentage,
		svc.ConsecutiveFails, tagsJSON, svc.GroupName, svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save service: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteService(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendCheckResult(ctx context.Context, result *models.CheckResult) error {
	metaJSON, err := json.Marshal(orEmptyMap(result.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO check_results
			(id, service_id, is_healthy, status_code, response_time_ms, message, error, metadata, checked_at)
		VALUES
			($1, $2, $3, NULLIF($4, 0), $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		result.ID, result.ServiceID, result.IsHealthy, result.StatusCode,
		result.ResponseTimeMS, result.Message, result.Error, metaJSON, result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("append check result: %w", err)
	}
	return nil
}

func (p *Postgres) ListCheckResults(ctx context.Context, serviceID uuid.UUID, limit int) ([]*models.CheckResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, service_id, is_healthy, COALESCE(status_code, 0), response_time_ms,
		       COALESCE(message, ''), COALESCE(error, ''), metadata, checked_at
		  FROM check_results
		 WHERE service_id = $1
		 ORDER BY checked_at DESC
		 LIMIT $2`,
		serviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list check results: %w", err)
	}
	defer rows.Close()

	var results []*models.CheckResult
	for rows.Next() {
		var r models.CheckResult
		var metaJSON []byte
		if err := rows.Scan(
			&r.ID, &r.ServiceID, &r.IsHealthy, &r.StatusCode, &r.ResponseTimeMS,
			&r.Message, &r.Error, &metaJSON, &r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &r.Metadata)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (p *Postgres) CountCheckResults(ctx context.Context, serviceID uuid.UUID, since time.Time) (int64, int64, error) {
	var total, healthy int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_healthy)
		  FROM check_results
		 WHERE service_id = $1 AND checked_at >= $2`,
		serviceID, since,
	).Scan(&total, &healthy)
	if err != nil {
		return 0, 0, fmt.Errorf("count check results: %w", err)
	}
	return total, healthy, nil
}

func (p *Postgres) PruneCheckResults(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM check_results WHERE checked_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune check results: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*models.Service, error) {
	var svc models.Service
	var typ, status string
	var configJSON, tagsJSON []byte

	err := row.Scan(
		&svc.ID, &svc.Name, &svc.Description, &typ, &svc.Target, &configJSON,
		&svc.IntervalSeconds, &svc.TimeoutSeconds, &status, &svc.IsActive,
		&svc.LastCheckAt, &svc.LastResponseTimeMS, &svc.UptimePercentage,
		&svc.ConsecutiveFails, &tagsJSON, &svc.GroupName, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	svc.Type = models.ServiceType(typ)
	svc.Status = models.ServiceStatus(status)
	if len(configJSON) > 0 {
		_ = json.Unmarshal(configJSON, &svc.Config)
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &svc.Tags)
	}
	return &svc, nil
}

func scanServices(rows pgx.Rows) ([]*models.Service, error) {
	var services []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
