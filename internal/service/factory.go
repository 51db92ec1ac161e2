package service

import (
	"gitplumbers.app/bridge/core/config"
	"gitplumbers.app/bridge/internal/queue"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
	"gitplumbers.app/bridge/internal/store"
)

type ServicesConfig struct {
	Stores         *store.Stores
	TxRunner       TxRunner
	Connector      issue_tracker.Connector
	Producer       queue.Producer
	WorkOS         config.WorkOSConfig
	CommandPrefix  string
	CloseRetention config.CloseRetention
}

type Services struct {
	stores         *store.Stores
	txRunner       TxRunner
	connector      issue_tracker.Connector
	producer       queue.Producer
	workOSCfg      config.WorkOSConfig
	commandPrefix  string
	closeRetention config.CloseRetention

	// Shared so every sync service serializes imports on the same keys.
	importLocks *keyedMutex
}

func NewServices(cfg ServicesConfig) *Services {
	return &Services{
		stores:         cfg.Stores,
		txRunner:       cfg.TxRunner,
		connector:      cfg.Connector,
		producer:       cfg.Producer,
		workOSCfg:      cfg.WorkOS,
		commandPrefix:  cfg.CommandPrefix,
		closeRetention: cfg.CloseRetention,
		importLocks:    newKeyedMutex(),
	}
}

func (s *Services) IssueSync() IssueSyncService {
	return NewIssueSyncService(s.connector, s.stores.TrackedIssues(), s.stores.Users(), s.txRunner, s.importLocks)
}

func (s *Services) IssueLifecycle() IssueLifecycleService {
	return NewIssueLifecycleService(s.connector, s.stores.TrackedIssues(), s.closeRetention)
}

func (s *Services) Commands() CommandDispatcher {
	return NewCommandDispatcher(s.connector, s.producer, s.commandPrefix)
}

func (s *Services) Auth() AuthService {
	return NewAuthService(s.stores.Users(), s.stores.Sessions(), s.txRunner, s.workOSCfg)
}
