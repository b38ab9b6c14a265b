package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// CreateInput groups fields required to create an account.
type CreateInput struct {
	Code     string
	Name     string
	Type     AccountType
	Currency string
	ParentID *int64
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := s.validate(ctx, in); err != nil {
		return Account{}, err
	}
	return s.repo.Create(ctx, Account{
		Code:     strings.TrimSpace(in.Code),
		Name:     strings.TrimSpace(in.Name),
		Type:     in.Type,
		Currency: strings.ToUpper(in.Currency),
		ParentID: in.ParentID,
		IsActive: true,
	})
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Activate re-enables a soft-disabled account.
func (s *Service) Activate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, true)
}

// Deactivate soft-disables an account. History stays intact.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, false)
}

// Delete removes an account that has never been posted to.
// Accounts referenced by entries can only be deactivated.
func (s *Service) Delete(ctx context.Context, id int64) error {
	has, err := s.repo.HasEntries(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return shared.ErrAccountHasEntries
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(ctx context.Context, in CreateInput) error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: account code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: account name is required", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, in.Type)
	}
	if !validCurrency(in.Currency) {
		return fmt.Errorf("%w: currency must be a 3-letter code", shared.ErrValidation)
	}
	if in.ParentID != nil {
		return s.checkHierarchy(ctx, *in.ParentID)
	}
	return nil
}

// checkHierarchy walks the ancestor chain and rejects cycles.
func (s *Service) checkHierarchy(ctx context.Context, parentID int64) error {
	visited := map[int64]struct{}{}
	current := parentID
	for {
		if _, seen := visited[current]; seen {
			return shared.ErrCircularHierarchy
		}
		visited[current] = struct{}{}
		parent, err := s.repo.GetByID(ctx, current)
		if err != nil {
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		current = *parent.ParentID
	}
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range strings.ToUpper(code) {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
