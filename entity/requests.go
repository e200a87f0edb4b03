package entity

import (
	"net/http"

	"mentorhub/lib/validate"
)

// Request payloads accepted by the HTTP API. Each implements render.Binder
// so handlers can decode and validate in one call.

type VerifyInviteRequest struct {
	Code string `json:"code" validate:"required"`
}

func (v *VerifyInviteRequest) Bind(_ *http.Request) error {
	return validate.Struct(v)
}

type RegisterRequest struct {
	Name       string `json:"name" validate:"required"`
	Language   string `json:"language" validate:"required"`
	Country    string `json:"country" validate:"omitempty"`
	InviteCode string `json:"invite_code" validate:"required"`
	ExternalID string `json:"external_id" validate:"omitempty"`
}

func (r *RegisterRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (l *LoginRequest) Bind(_ *http.Request) error {
	return validate.Struct(l)
}

type PostMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (p *PostMessageRequest) Bind(_ *http.Request) error {
	return validate.Struct(p)
}

type ReplyRequest struct {
	MessageID string `json:"message_id" validate:"required"`
	Reply     string `json:"reply" validate:"required,max=4000"`
}

func (r *ReplyRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

// GenerateInviteRequest creates a new code. Kind is the role the code
// grants; expires_in is a duration in hours, zero meaning no expiry.
type GenerateInviteRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=user admin"`
	MaxUses      int    `json:"max_uses" validate:"omitempty,min=1"`
	ExpiresInHrs int    `json:"expires_in" validate:"omitempty,min=1"`
}

func (g *GenerateInviteRequest) Bind(_ *http.Request) error {
	return validate.Struct(g)
}
