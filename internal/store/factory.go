package store

import (
	"gitplumbers.app/bridge/core/db"
)

type Stores struct {
	conn db.DBTX
}

func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) TrackedIssues() TrackedIssueStore {
	return newTrackedIssueStore(s.conn)
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.conn)
}

func (s *Stores) Sessions() SessionStore {
	return newSessionStore(s.conn)
}
