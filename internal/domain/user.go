package domain

import (
	"github.com/go-playground/validator/v10"

	"github.com/purlinworks/purlin/orm"
)

// Shared validator instance for field-level checks.
var validate = validator.New()

// User represents a registered author. The Posts relation stays empty
// unless it is eager-loaded through SelectRelated.
type User struct {
	orm.Model
	Name  string `db:"name"          json:"name"`
	Email string `db:"email,unique"  json:"email"`
	Posts []Post `rel:"many,fk:user_id" json:"posts,omitempty"`
}

// NewUser creates a transient User with the given name and email. The
// identity stays zero until the entity is saved.
// Returns an error if validation fails.
func NewUser(name, email string) (*User, error) {
	user := &User{Name: name, Email: email}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

// Validate checks if the User has valid data.
// Returns an error if any field fails validation.
func (u *User) Validate() error {
	if u.Name == "" {
		return ErrEmptyName
	}
	if u.Email == "" {
		return ErrEmptyEmail
	}
	if err := validate.Var(u.Email, "email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateUserFields checks a field map bound for a user write. Absent
// keys are not required, so partial updates stay valid.
func ValidateUserFields(fields orm.Fields) error {
	if v, ok := fields["name"]; ok {
		if name, _ := v.(string); name == "" {
			return ErrEmptyName
		}
	}
	if v, ok := fields["email"]; ok {
		email, _ := v.(string)
		if email == "" {
			return ErrEmptyEmail
		}
		if err := validate.Var(email, "email"); err != nil {
			return ErrInvalidEmail
		}
	}
	return nil
}
