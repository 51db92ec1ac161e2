package service_test

import (
	"context"
	"sync"

	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/queue"
	"gitplumbers.app/bridge/internal/service"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
	"gitplumbers.app/bridge/internal/store"
)

// mockTrackedIssueStore keeps records in memory and enforces the
// (repository, external id) uniqueness the real table has.
type mockTrackedIssueStore struct {
	mu      sync.Mutex
	records map[int64]model.TrackedIssue

	insertFn    func(ctx context.Context, issue *model.TrackedIssue) (bool, error)
	deleteFn    func(ctx context.Context, id int64) error
	setStatusFn func(ctx context.Context, id int64, status model.IssueStatus) error
	insertCalls int
}

func newMockTrackedIssueStore() *mockTrackedIssueStore {
	return &mockTrackedIssueStore{records: make(map[int64]model.TrackedIssue)}
}

func (m *mockTrackedIssueStore) seed(records ...model.TrackedIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range records {
		m.records[record.ID] = record
	}
}

func (m *mockTrackedIssueStore) all() []model.TrackedIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TrackedIssue, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}
	return out
}

func (m *mockTrackedIssueStore) GetByID(_ context.Context, id int64) (*model.TrackedIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (m *mockTrackedIssueStore) GetByRepositoryAndExternalID(_ context.Context, repository string, externalIssueID int) (*model.TrackedIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.RepositoryFullName == repository && record.ExternalIssueID == externalIssueID {
			return &record, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockTrackedIssueStore) ListByRepository(_ context.Context, repository string) ([]model.TrackedIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrackedIssue
	for _, record := range m.records {
		if record.RepositoryFullName == repository {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *mockTrackedIssueStore) ListExternalIDsByRepository(_ context.Context, repository string) (map[int]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[int]struct{})
	for _, record := range m.records {
		if record.RepositoryFullName == repository {
			ids[record.ExternalIssueID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *mockTrackedIssueStore) Insert(ctx context.Context, issue *model.TrackedIssue) (bool, error) {
	m.mu.Lock()
	m.insertCalls++
	m.mu.Unlock()

	if m.insertFn != nil {
		return m.insertFn(ctx, issue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.RepositoryFullName == issue.RepositoryFullName && record.ExternalIssueID == issue.ExternalIssueID {
			return false, nil
		}
	}
	m.records[issue.ID] = *issue
	return true, nil
}

func (m *mockTrackedIssueStore) SetStatus(ctx context.Context, id int64, status model.IssueStatus) error {
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	record.Status = status
	m.records[id] = record
	return nil
}

func (m *mockTrackedIssueStore) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

type mockUserStore struct {
	getByIDFn func(ctx context.Context, id int64) (*model.User, error)
	upsertFn  func(ctx context.Context, user *model.User) error
}

func (m *mockUserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStore) UpsertByWorkOSID(ctx context.Context, user *model.User) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, user)
	}
	return nil
}

type mockSessionStore struct {
	createFn   func(ctx context.Context, session *model.Session) error
	getValidFn func(ctx context.Context, tokenHash []byte) (*model.Session, error)
	deleteFn   func(ctx context.Context, tokenHash []byte) error
}

func (m *mockSessionStore) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionStore) GetValidByTokenHash(ctx context.Context, tokenHash []byte) (*model.Session, error) {
	if m.getValidFn != nil {
		return m.getValidFn(ctx, tokenHash)
	}
	return nil, store.ErrNotFound
}

func (m *mockSessionStore) DeleteByTokenHash(ctx context.Context, tokenHash []byte) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tokenHash)
	}
	return nil
}

type mockStoreProvider struct {
	issues   store.TrackedIssueStore
	users    store.UserStore
	sessions store.SessionStore
}

func (p *mockStoreProvider) TrackedIssues() store.TrackedIssueStore { return p.issues }
func (p *mockStoreProvider) Users() store.UserStore { return p.users }
func (p *mockStoreProvider) Sessions() store.SessionStore { return p.sessions }

// mockTxRunner runs fn directly against the provider's stores.
type mockTxRunner struct {
	provider *mockStoreProvider
	calls    int
}

func (m *mockTxRunner) WithTx(_ context.Context, fn func(stores service.StoreProvider) error) error {
	m.calls++
	return fn(m.provider)
}

type mockConnector struct {
	tracker    issue_tracker.IssueTracker
	err        error
	mu         sync.Mutex
	calls      int
	lastInstID int64
}

func (m *mockConnector) Connect(_ context.Context, installationID int64) (issue_tracker.IssueTracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastInstID = installationID
	if m.err != nil {
		return nil, m.err
	}
	return m.tracker, nil
}

type mockTracker struct {
	mu sync.Mutex

	listFn    func(ctx context.Context, repo model.Repository) ([]model.ExternalIssue, error)
	createFn  func(ctx context.Context, repo model.Repository, params issue_tracker.CreateIssueParams) (*model.ExternalIssue, error)
	closeFn   func(ctx context.Context, repo model.Repository, number int) error
	commentFn func(ctx context.Context, repo model.Repository, number int, body string) error

	closed   []int
	comments []string
}

func (m *mockTracker) ListOpenIssues(ctx context.Context, repo model.Repository) ([]model.ExternalIssue, error) {
	if m.listFn != nil {
		return m.listFn(ctx, repo)
	}
	return nil, nil
}

func (m *mockTracker) CreateIssue(ctx context.Context, repo model.Repository, params issue_tracker.CreateIssueParams) (*model.ExternalIssue, error) {
	if m.createFn != nil {
		return m.createFn(ctx, repo, params)
	}
	return &model.ExternalIssue{Number: 1, Title: params.Title, Body: params.Body, State: model.IssueStatusOpen}, nil
}

func (m *mockTracker) CloseIssue(ctx context.Context, repo model.Repository, number int) error {
	if m.closeFn != nil {
		if err := m.closeFn(ctx, repo, number); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, number)
	return nil
}

func (m *mockTracker) CreateComment(ctx context.Context, repo model.Repository, number int, body string) error {
	if m.commentFn != nil {
		if err := m.commentFn(ctx, repo, number, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, body)
	return nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, event queue.TriggerEvent) error
	events    []queue.TriggerEvent
}

func (m *mockProducer) Enqueue(ctx context.Context, event queue.TriggerEvent) error {
	if m.enqueueFn != nil {
		if err := m.enqueueFn(ctx, event); err != nil {
			return err
		}
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}
