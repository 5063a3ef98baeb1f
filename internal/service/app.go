package service

import (
	"context"
	"log/slog"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/events"
)

type AppService struct {
	*BaseService
}

func NewAppService(
	mgr *apps.Manager,
	router *events.Router,
	logger *slog.Logger,
) *AppService {
	return &AppService{BaseService: NewBaseService(mgr, router, logger)}
}

func (s *AppService) Initialize(ctx context.Context, name string, opts apps.Options) (apps.Info, error) {
	inst, err := s.apps.Initialize(ctx, name, opts)
	if err != nil {
		return apps.Info{}, err
	}
	return apps.Info{Name: inst.Name(), Options: inst.Options()}, nil
}

// Delete tears the instance down: its listeners are removed, pending
// transactions fail and cached snapshots are dropped.
func (s *AppService) Delete(ctx context.Context, name string) error {
	return s.apps.Delete(ctx, name)
}

func (s *AppService) List() []apps.Info {
	return s.apps.List()
}
