package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ClassID  string `json:"class_id,omitempty"` // set for students
}

type UserStore struct{ db *sql.DB }

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, class_id FROM users WHERE username=$1`,
		username).Scan(&u.ID, &u.Username, &hash, &u.Role, &u.ClassID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Upsert creates or updates a user, hashing the supplied password. Used by
// the admin bootstrap and bulk provisioning.
func (s *UserStore) Upsert(ctx context.Context, u User, password string) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users
		(id, username, password_hash, role, class_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (username) DO UPDATE SET
		 password_hash=EXCLUDED.password_hash, role=EXCLUDED.role,
		 class_id=EXCLUDED.class_id`,
		u.ID, u.Username, string(hash), u.Role, u.ClassID, time.Now().Unix())
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ClassOf resolves a student's enrolled class. Satisfies the eligibility
// gate's EnrollmentSource.
func (s *UserStore) ClassOf(ctx context.Context, studentID string) (string, error) {
	var classID string
	err := s.db.QueryRowContext(ctx,
		`SELECT class_id FROM users WHERE id=$1`, studentID).Scan(&classID)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown students resolve to no class; the gate denies them with
		// a class mismatch rather than an internal error.
		return "", nil
	}
	return classID, err
}
