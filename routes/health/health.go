// Package routes_health reports whether the service's dependencies answer.
package routes_health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/response"
)

const checkTimeout = 2 * time.Second

// Check pings one dependency.
type Check func(ctx context.Context) error

type Status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Handler answers 200 when every check passes and 503 otherwise.
func Handler(checks map[string]Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		status := Status{Status: "ok", Checks: make(map[string]string, len(checks))}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				status.Status = "unavailable"
				status.Checks[name] = "unavailable"
				continue
			}
			status.Checks[name] = "ok"
		}

		if status.Status != "ok" {
			response.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		response.OK(w, status)
	}
}

// Database pings the connection pool behind db.
func Database(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
