package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// UnknownEnvelope labels expenses whose envelope reference no longer resolves.
const UnknownEnvelope = "Unknown Envelope"

type (
	User struct {
		ID        string    `json:"id" validate:"required"`
		Email     string    `json:"email,omitempty" validate:"omitempty,email"`
		Name      string    `json:"name,omitempty" validate:"max=100"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Envelope is a budget category. Fixed envelopes enforce Budget as a
	// ceiling; the others are informational.
	Envelope struct {
		ID     string           `json:"id"`
		UserID string           `json:"userId" validate:"required"`
		Title  string           `json:"title" validate:"max=100"`
		Fixed  bool             `json:"fixed"`
		Budget *decimal.Decimal `json:"budget"`
		Color  string           `json:"color,omitempty" validate:"omitempty,hexcolor"`
	}

	Expense struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId" validate:"required"`
		EnvelopeID  string          `json:"envelopeId,omitempty"`
		Amount      decimal.Decimal `json:"amount"`
		Date        string          `json:"date"`
		Location    string          `json:"location" validate:"max=100"`
		Description string          `json:"description,omitempty" validate:"max=200"`
	}

	Income struct {
		ID     string          `json:"id"`
		UserID string          `json:"userId" validate:"required"`
		Amount decimal.Decimal `json:"amount"`
		Date   string          `json:"date"`
		Source string          `json:"source,omitempty" validate:"max=100"`
	}

	// Note is a free-form user note. Envelope warnings delivered by the
	// worker are stored as notes too.
	Note struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId" validate:"required"`
		Title     string    `json:"title" validate:"max=120"`
		Body      string    `json:"body" validate:"max=5000"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidDate    = errors.New("invalid date")
	ErrEmptyTitle     = errors.New("empty title")
	ErrMissingBudget  = errors.New("fixed envelope requires a positive budget")
	ErrNegativeBudget = errors.New("budget cannot be negative")
	ErrInvalidField   = errors.New("invalid field")
)

// IsValidation reports whether err comes from entity validation.
func IsValidation(err error) bool {
	for _, target := range []error{ErrInvalidAmount, ErrInvalidDate, ErrEmptyTitle, ErrMissingBudget, ErrNegativeBudget, ErrInvalidField} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", ErrInvalidField, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return nil
}

func (u User) Validate() error {
	return validateStruct(u)
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if err := validateStruct(e); err != nil {
		return err
	}
	if e.Budget != nil && e.Budget.IsNegative() {
		return ErrNegativeBudget
	}
	if e.Fixed && (e.Budget == nil || !e.Budget.IsPositive()) {
		return ErrMissingBudget
	}
	return nil
}

// HasBudget reports whether the envelope carries a ceiling usable for warnings.
func (e Envelope) HasBudget() bool {
	return e.Budget != nil
}

func (e Expense) Validate() error {
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, ok := ParseDate(e.Date); !ok {
		return ErrInvalidDate
	}
	return validateStruct(e)
}

func (i Income) Validate() error {
	if !i.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, ok := ParseDate(i.Date); !ok {
		return ErrInvalidDate
	}
	return validateStruct(i)
}

func (n Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrEmptyTitle
	}
	return validateStruct(n)
}

// EnvelopeTitle resolves an envelope id to its title, falling back to
// UnknownEnvelope for dangling references.
func EnvelopeTitle(envelopes []Envelope, id string) string {
	for _, e := range envelopes {
		if e.ID == id {
			return e.Title
		}
	}
	return UnknownEnvelope
}
