package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// HealthTimeout bounds the ping issued by the health endpoint.
const HealthTimeout = 5 * time.Second

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// HealthReport is the body served by the database health endpoint.
type HealthReport struct {
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	SchemaVersion int        `json:"schema_version"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// SchemaVersion returns the highest applied migration version, or 0 when
// no migration has run yet.
func SchemaVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var version int
	err := pool.QueryRow(ctx, `
SELECT CASE WHEN to_regclass('_migrations') IS NULL THEN 0
       ELSE (SELECT COALESCE(MAX(version), 0) FROM _migrations) END`).Scan(&version)
	return version, err
}

type healthProbe struct {
	ping    func(ctx context.Context) error
	version func(ctx context.Context) (int, error)
	stats   func() *PoolStats
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthProbe{
		ping:    pool.Ping,
		version: func(ctx context.Context) (int, error) { return SchemaVersion(ctx, pool) },
		stats:   func() *PoolStats { return GetPoolStats(pool) },
	}.handle
}

func (p healthProbe) handle(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), HealthTimeout)
	defer cancel()

	report := HealthReport{Status: "healthy", Pool: p.stats()}

	err := p.ping(ctx)
	if err == nil {
		report.SchemaVersion, err = p.version(ctx)
	}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		if report.Pool != nil {
			report.Pool.Healthy = false
		}
		return c.JSON(http.StatusServiceUnavailable, report)
	}
	return c.JSON(http.StatusOK, report)
}
