package handler

import (
	"strings"

	"rmr/internal/identity/models"
	"rmr/internal/identity/service"
	dErrors "rmr/pkg/domain-errors"
)

const maxAliases = 50

// CreateClientRequest is the body of POST /clients.
type CreateClientRequest struct {
	ID           string   `json:"id"`
	PrimaryEmail string   `json:"primary_email"`
	AliasEmails  []string `json:"alias_emails"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Phone        string   `json:"phone"`
	DogName      string   `json:"dog_name"`
	Address      string   `json:"address"`
}

func (r *CreateClientRequest) Validate() error {
	if strings.TrimSpace(r.PrimaryEmail) == "" {
		return dErrors.New(dErrors.CodeValidation, "primary_email is required")
	}
	if len(r.AliasEmails) > maxAliases {
		return dErrors.New(dErrors.CodeValidation, "too many alias_emails")
	}
	return nil
}

func (r *CreateClientRequest) Command() models.CreateClientCommand {
	return models.CreateClientCommand{
		ID:           r.ID,
		PrimaryEmail: r.PrimaryEmail,
		AliasEmails:  r.AliasEmails,
		Profile: models.Profile{
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Phone:     r.Phone,
			DogName:   r.DogName,
			Address:   r.Address,
		},
	}
}

// UpdateClientRequest is the body of PATCH /clients/{id}. Absent fields are
// left unchanged.
type UpdateClientRequest struct {
	PrimaryEmail *string `json:"primary_email"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Phone        *string `json:"phone"`
	DogName      *string `json:"dog_name"`
	Address      *string `json:"address"`
}

func (r *UpdateClientRequest) Command() service.UpdateClientCommand {
	return service.UpdateClientCommand{
		PrimaryEmail: r.PrimaryEmail,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Phone:        r.Phone,
		DogName:      r.DogName,
		Address:      r.Address,
	}
}

// AddAliasRequest is the body of POST /clients/{id}/aliases.
type AddAliasRequest struct {
	Email string `json:"email"`
}

func (r *AddAliasRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}
