package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type User struct {
	ID                 string         `db:"id"`
	FirstName          string         `db:"first_name"`
	LastName           string         `db:"last_name"`
	PhoneNumber        string         `db:"phone_number"`
	Image              sql.NullString `db:"image"`
	Email              string         `db:"email"`
	AccountType        string         `db:"account_type"`
	Status             string         `db:"status"`
	KycStatus          string         `db:"kyc_status"`
	KycApplicantID     sql.NullString `db:"kyc_applicant_id"`
	KycRejectionReason sql.NullString `db:"kyc_rejection_reason"`
	KycLastUpdated     sql.NullTime   `db:"kyc_last_updated"`
	CreatedAt          time.Time      `db:"created_at"`
	DeletedAt          sql.NullTime   `db:"deleted_at"`
	VerifiedAt         sql.NullTime   `db:"verified_at"`
	HashedPassword     string         `db:"hashed_password"`
}

const (
	// UserAccountActiveStatus indicates that the user's account is active and fully functional.
	UserAccountActiveStatus = "active"

	// UserAccountLockedStatus indicates that the account has been locked, e.g. after
	// repeated failed login attempts. A locked account cannot log in until unlocked.
	UserAccountLockedStatus = "locked"
)

const (
	// UserAccountTypePersonal is an individual retail account.
	UserAccountTypePersonal = "personal"

	// UserAccountTypeBusiness is a company account; the verification provider
	// applies a different checklist to these.
	UserAccountTypeBusiness = "business"
)

// Verification statuses mirror what the review pipeline can report back.
// rejected and on_hold can re-enter pending when the user restarts verification.
const (
	KycStatusNotStarted = "not_started"
	KycStatusPending    = "pending"
	KycStatusApproved   = "approved"
	KycStatusRejected   = "rejected"
	KycStatusOnHold     = "on_hold"
)

func (db *DB) InsertUser(user *User, tx *sql.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string
	query := `
		INSERT INTO users (first_name, last_name, phone_number, email, account_type, hashed_password)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			user.FirstName,
			user.LastName,
			user.PhoneNumber,
			user.Email,
			user.AccountType,
			user.HashedPassword,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := db.GetContext(ctx, &id, query,
			user.FirstName,
			user.LastName,
			user.PhoneNumber,
			user.Email,
			user.AccountType,
			user.HashedPassword,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (db *DB) GetUser(id string) (*User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user User

	query := `SELECT * FROM users WHERE id = $1`

	err := db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

func (db *DB) GetUserByEmail(email string) (*User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user User

	query := `SELECT * FROM users WHERE email = $1`

	err := db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

// GetUserByApplicantID routes inbound review callbacks to the local account
// that started verification with that provider-side applicant.
func (db *DB) GetUserByApplicantID(applicantID string) (*User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user User

	query := `SELECT * FROM users WHERE kyc_applicant_id = $1`

	err := db.GetContext(ctx, &user, query, applicantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

func (db *DB) CheckIfPhoneNumberExist(phoneNumber string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1)`

	err := db.GetContext(ctx, &exists, query, phoneNumber)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// StartUserVerification records the provider-assigned applicant id and moves
// the account into pending. Safe to call again after a conflict-resolved
// retry; the applicant id is simply written over with the same value.
func (db *DB) StartUserVerification(userID, applicantID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE users
		SET kyc_status = $1, kyc_applicant_id = $2, kyc_rejection_reason = NULL, kyc_last_updated = now()
		WHERE id = $3`

	_, err := db.ExecContext(ctx, query, KycStatusPending, applicantID, userID)
	return err
}

// UpdateUserKycStatus projects a review outcome onto the account. An empty
// rejectionReason clears the stored reason. verified_at is only ever set on
// approval and cleared on any other transition.
func (db *DB) UpdateUserKycStatus(userID, status, rejectionReason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	reason := sql.NullString{String: rejectionReason, Valid: rejectionReason != ""}

	var query string
	if status == KycStatusApproved {
		query = `
			UPDATE users
			SET kyc_status = $1, kyc_rejection_reason = $2, kyc_last_updated = now(), verified_at = now()
			WHERE id = $3`
	} else {
		query = `
			UPDATE users
			SET kyc_status = $1, kyc_rejection_reason = $2, kyc_last_updated = now(), verified_at = NULL
			WHERE id = $3`
	}

	_, err := db.ExecContext(ctx, query, status, reason, userID)
	return err
}

func (db *DB) UserChangeProfilePicture(userID, imageURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET image = $1 WHERE id = $2`

	_, err := db.ExecContext(ctx, query, imageURL, userID)
	return err
}

func (db *DB) UserLockAccount(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET status = $1 WHERE id = $2`

	_, err := db.ExecContext(ctx, query, UserAccountLockedStatus, userID)
	return err
}
