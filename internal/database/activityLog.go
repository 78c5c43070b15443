// Every meaningful action, synchronous or asynchronous, leaves an activity
// log entry behind. The table is polymorphic over entity/entity_id so the
// same audit trail covers accounts and verification attempts alike.
package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ActivityLog struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Entity      string    `db:"entity"`
	EntityId    string    `db:"entity_id"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// activity log entities
const (
	// ActivityLogUserEntity is used in activities that has to do with user accounts and the users table
	ActivityLogUserEntity = "user"

	// ActivityLogVerificationEntity is used in activities around identity verification;
	// entity_id holds the provider-side applicant id
	ActivityLogVerificationEntity = "verification"
)

// possible descriptions
const (
	ActivityLogUserRegistrationDescription = "User registration"
	ActivityLogUserLoginDescription        = "User login"
	ActivityLogFailedLoginDescription      = "Failed login"
	ActivityLogLockedAccountDescription    = "Account locked"
	ActivityLogProfilePictureDescription   = "Profile picture change"

	ActivityLogVerificationStartedDescription  = "Verification started"
	ActivityLogVerificationApprovedDescription = "Verification approved"
	ActivityLogVerificationRejectedDescription = "Verification rejected"
	ActivityLogVerificationOnHoldDescription   = "Verification on hold"
	ActivityLogVerificationPendingDescription  = "Verification pending"
)

func (db *DB) CreateActivityLog(log *ActivityLog) (*ActivityLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO activity_logs (user_id, entity, entity_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := db.GetContext(ctx, &log.ID, query,
		log.UserID,
		log.Entity,
		log.EntityId,
		log.Description,
	)

	if err != nil {
		return nil, err
	}

	return log, nil
}

// In order to prevent try-and-luck access into user's account
// ... we check for consecutive failed login requests
// and temporarily lock the account when the threshold is hit.
func (db *DB) CountConsecutiveFailedLoginAttempts(userID, description string) int {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var count int

	query := `
		SELECT count(*) FROM activity_logs
		WHERE user_id = $1 AND entity = $2 AND description = $3
		AND created_at > COALESCE(
			(SELECT max(created_at) FROM activity_logs
			 WHERE user_id = $1 AND entity = $2 AND description = $4),
			'epoch'::timestamptz
		)`

	err := db.GetContext(ctx, &count, query, userID, ActivityLogUserEntity, description, ActivityLogUserLoginDescription)
	if errors.Is(err, sql.ErrNoRows) {
		return 0
	}

	return count
}
