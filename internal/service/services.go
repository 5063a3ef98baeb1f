package service

import (
	"log/slog"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/events"
)

type Services struct {
	Apps      *AppService
	Database  *DatabaseService
	Firestore *FirestoreService
}

func New(
	mgr *apps.Manager,
	router *events.Router,
	logger *slog.Logger,
) *Services {
	return &Services{
		Apps:      NewAppService(mgr, router, logger),
		Database:  NewDatabaseService(mgr, router, logger),
		Firestore: NewFirestoreService(mgr, router, logger),
	}
}
