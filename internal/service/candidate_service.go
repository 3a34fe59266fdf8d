package service

import (
	"context"

	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/response"
)

// CandidateService handles candidate account management.
type CandidateService struct {
	candidateRepo *repository.CandidateRepository
	authService   *AuthService
}

// NewCandidateService creates a new CandidateService.
func NewCandidateService(candidateRepo *repository.CandidateRepository, authService *AuthService) *CandidateService {
	return &CandidateService{candidateRepo: candidateRepo, authService: authService}
}

// Register creates a new candidate account in ACTIVE status.
func (s *CandidateService) Register(ctx context.Context, req *model.RegisterCandidateRequest) (*model.Candidate, error) {
	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	c := &model.Candidate{
		Name:         req.Name,
		Email:        req.Email,
		IDCard:       req.IDCard,
		Phone:        req.Phone,
		Status:       model.CandidateStatusActive,
		PasswordHash: hash,
	}
	if err := s.candidateRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Login verifies credentials and issues a single-device token.
func (s *CandidateService) Login(ctx context.Context, email, password string) (*model.CandidateLoginResponse, error) {
	c, err := s.candidateRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.authService.CheckPassword(c.PasswordHash, password); err != nil {
		return nil, err
	}
	if c.Status == model.CandidateStatusDisabled {
		return nil, ErrAccountDisabled
	}

	token, err := s.authService.GenerateCandidateToken(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &model.CandidateLoginResponse{Token: token, Candidate: *c}, nil
}

// GetByID retrieves a candidate.
func (s *CandidateService) GetByID(ctx context.Context, id int) (*model.Candidate, error) {
	return s.candidateRepo.GetByID(ctx, id)
}

// List retrieves candidates with pagination and an optional status filter.
func (s *CandidateService) List(ctx context.Context, status *model.CandidateStatus, page, perPage int) ([]model.Candidate, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	candidates, total, err := s.candidateRepo.ListPaginated(ctx, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return candidates, pagination, nil
}

// Update applies an admin edit to a candidate's profile and optionally resets
// their password.
func (s *CandidateService) Update(ctx context.Context, id int, req *model.UpdateCandidateRequest) (*model.Candidate, error) {
	c, err := s.candidateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		c.Name = req.Name
	}
	if req.Email != "" {
		c.Email = req.Email
	}
	if req.IDCard != nil {
		c.IDCard = *req.IDCard
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Status != "" {
		c.Status = req.Status
	}

	if err := s.candidateRepo.Update(ctx, c); err != nil {
		return nil, err
	}

	if req.Password != "" {
		hash, err := s.authService.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		if err := s.candidateRepo.UpdatePassword(ctx, id, hash); err != nil {
			return nil, err
		}
	}

	// Disabling an account also kills any active login session.
	if c.Status == model.CandidateStatusDisabled {
		_ = s.authService.ResetCandidateSession(ctx, id)
	}

	return c, nil
}

// Delete removes a candidate and resets any active session.
func (s *CandidateService) Delete(ctx context.Context, id int) error {
	_ = s.authService.ResetCandidateSession(ctx, id)
	return s.candidateRepo.Delete(ctx, id)
}

// ResetSession clears a candidate's single-device login lock.
func (s *CandidateService) ResetSession(ctx context.Context, id int) error {
	return s.authService.ResetCandidateSession(ctx, id)
}
