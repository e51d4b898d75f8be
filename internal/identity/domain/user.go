// Package domain holds the identity model: users, stored OAuth grants,
// and opaque API tokens for automation clients.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qnz18/qzwhatnext/internal/shared/domain"
)

var ErrInvalidEmail = errors.New("email is invalid")

// User is the single-tenant principal everything else is scoped to.
type User struct {
	shareddomain.BaseEntity

	email            string
	displayName      *string
	calendarTimezone *string
}

func NewUser(email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	return &User{
		BaseEntity: shareddomain.NewBaseEntity(),
		email:      email,
	}, nil
}

type RehydrateUserParams struct {
	ID               uuid.UUID
	Email            string
	DisplayName      *string
	CalendarTimezone *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func RehydrateUser(p RehydrateUserParams) *User {
	return &User{
		BaseEntity:       shareddomain.RehydrateBaseEntity(p.ID, p.CreatedAt, p.UpdatedAt),
		email:            p.Email,
		displayName:      p.DisplayName,
		calendarTimezone: p.CalendarTimezone,
	}
}

func (u *User) Email() string              { return u.email }
func (u *User) DisplayName() *string       { return u.displayName }
func (u *User) CalendarTimezone() *string  { return u.calendarTimezone }

func (u *User) SetDisplayName(name *string) {
	u.displayName = name
	u.Touch()
}

func (u *User) SetCalendarTimezone(tz string) {
	u.calendarTimezone = &tz
	u.Touch()
}

// Location resolves the user's calendar timezone, falling back to UTC
// when unset or unparseable.
func (u *User) Location() *time.Location {
	if u.calendarTimezone == nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(*u.calendarTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
