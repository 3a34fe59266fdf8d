package model

import "time"

// CandidateStatus represents a candidate account's standing.
type CandidateStatus string

const (
	CandidateStatusActive   CandidateStatus = "ACTIVE"
	CandidateStatusPending  CandidateStatus = "PENDING"
	CandidateStatusDisabled CandidateStatus = "DISABLED"
)

// Candidate represents an exam-taking user.
type Candidate struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	IDCard       string          `json:"id_card,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Status       CandidateStatus `json:"status"`
	PasswordHash string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CandidateLoginRequest is the payload for candidate authentication.
type CandidateLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// CandidateLoginResponse is returned after successful candidate login.
type CandidateLoginResponse struct {
	Token     string    `json:"token"`
	Candidate Candidate `json:"candidate"`
}

// RegisterCandidateRequest is the self-registration payload.
type RegisterCandidateRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	IDCard   string `json:"id_card" binding:"omitempty,min=4,max=30"`
	Phone    string `json:"phone" binding:"omitempty,min=6,max=20"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// UpdateCandidateRequest is the admin payload for updating a candidate.
type UpdateCandidateRequest struct {
	Name     string          `json:"name" binding:"omitempty,min=2,max=100"`
	Email    string          `json:"email" binding:"omitempty,email"`
	IDCard   *string         `json:"id_card" binding:"omitempty,min=4,max=30"`
	Phone    *string         `json:"phone" binding:"omitempty,min=6,max=20"`
	Status   CandidateStatus `json:"status" binding:"omitempty,oneof=ACTIVE PENDING DISABLED"`
	Password string          `json:"password" binding:"omitempty,min=6,max=128"`
}
