package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grainhub/warehouse-backend/pkg/db/models"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

// Actor is who is acting and in which role.
type Actor struct {
	ID          uuid.UUID       `json:"id"`
	Role        enums.ActorRole `json:"role"`
	DisplayName string          `json:"display_name"`
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service resolves actor ids into roles.
type Service interface {
	Lookup(ctx context.Context, actorID uuid.UUID) (*Actor, error)
}

type service struct {
	users userFinder
}

func NewService(users userFinder) (Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &service{users: users}, nil
}

func (s *service) Lookup(ctx context.Context, actorID uuid.UUID) (*Actor, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	user, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	role, err := enums.ParseActorRole(user.Role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "user has an unknown role")
	}
	return &Actor{ID: user.ID, Role: role, DisplayName: user.DisplayName}, nil
}
