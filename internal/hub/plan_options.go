// Package hub's plan-gating: one file covering both ways a user's Plan
// bounds an analysis request, the weekly request count and the engine
// resource options a batch worker is allowed to set.
package hub

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ucihub/internal/models"
)

// Plan-gated ceilings for engine resource options. Free-plan analyses are
// capped to keep shared worker capacity bounded; Pro gets a higher cap.
const (
	freeThreadsCeiling = "1"
	freeHashCeiling    = "16"
	proThreadsCeiling  = "4"
	proHashCeiling     = "256"
)

// planOptionCeilings returns the Threads/Hash values a plan is allowed.
func planOptionCeilings(plan models.Plan) (threads, hash string) {
	if plan == models.PlanPro {
		return proThreadsCeiling, proHashCeiling
	}
	return freeThreadsCeiling, freeHashCeiling
}

// applyPlanOptionCeiling caps Threads/Hash on ev's driver according to
// plan, using MaybeSetOption so a variant that suppresses either option
// (see internal/engine's variant rule table) is left alone.
func applyPlanOptionCeiling(ev *Evaluator, plan models.Plan) {
	threads, hash := planOptionCeilings(plan)
	ev.driver.MaybeSetOption("Threads", threads)
	ev.driver.MaybeSetOption("Hash", hash)
}

type quotaError struct {
	Limit int
	Used  int
}

func (e quotaError) Error() string {
	return "weekly quota exceeded"
}

// enforceWeeklyQuota admits add more analyses against a free-plan user's
// weekly budget, resetting the window when it has rolled over, and
// returns quotaError if admitting them would cross FreeWeeklyLimit. Pro
// users are never rejected and their analyses are not counted; for them
// only a rolled-over window start is written back. Called from SubmitGames before a
// job is created, so a request that would blow the budget never reaches
// CreateJob or the SQS enqueue loop.
func enforceWeeklyQuota(ctx context.Context, auth0Sub string, add int) (models.User, error) {
	if db == nil {
		return models.User{}, nil
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()

	user, err := getUserForUpdate(ctx, tx, auth0Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := insertDefaultUser(ctx, tx, auth0Sub); err != nil {
				return models.User{}, err
			}
			user, err = getUserForUpdate(ctx, tx, auth0Sub)
		}
		if err != nil {
			return models.User{}, err
		}
	}

	now := time.Now()
	currentWeekStart := weekStartUTC(now)
	resetUsage := user.UsagePeriodStart.Before(currentWeekStart)
	if resetUsage {
		user.AnalysesUsed = 0
		user.UsagePeriodStart = currentWeekStart
	}

	if add < 0 {
		add = 0
	}

	shouldUpdate := resetUsage
	if user.Plan == models.PlanFree {
		if user.AnalysesUsed+add > FreeWeeklyLimit {
			return user, quotaError{Limit: FreeWeeklyLimit, Used: user.AnalysesUsed}
		}
		user.AnalysesUsed += add
		shouldUpdate = true
	}

	if shouldUpdate {
		if err := updateUserUsage(ctx, tx, auth0Sub, user.AnalysesUsed, user.UsagePeriodStart); err != nil {
			return models.User{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}

	return user, nil
}

func getUserForUpdate(ctx context.Context, tx *sql.Tx, auth0Sub string) (models.User, error) {
	var user models.User
	err := tx.QueryRowContext(ctx, `
		SELECT plan, analyses_used, usage_period_start
		FROM users
		WHERE auth0_sub = $1
		FOR UPDATE;
	`, auth0Sub).Scan(&user.Plan, &user.AnalysesUsed, &user.UsagePeriodStart)
	if err != nil {
		return models.User{}, err
	}
	user.Auth0Sub = auth0Sub
	return user, nil
}

func insertDefaultUser(ctx context.Context, tx *sql.Tx, auth0Sub string) error {
	now := weekStartUTC(time.Now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (auth0_sub, plan, analyses_used, usage_period_start)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (auth0_sub) DO NOTHING;
	`, auth0Sub, models.PlanFree, 0, now)
	return err
}

func updateUserUsage(ctx context.Context, tx *sql.Tx, auth0Sub string, used int, start time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET analyses_used = $1, usage_period_start = $2
		WHERE auth0_sub = $3;
	`, used, start, auth0Sub)
	return err
}
