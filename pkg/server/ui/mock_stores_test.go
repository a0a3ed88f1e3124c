package ui

import (
	"github.com/stretchr/testify/mock"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// MockIdentityStore is a mock implementation of store.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) UpsertIdentities(identities []model.Identity) (store.UpsertResult, error) {
	args := m.Called(identities)
	return args.Get(0).(store.UpsertResult), args.Error(1)
}

func (m *MockIdentityStore) GetIdentity(id string) (*model.Identity, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Identity), args.Error(1)
}

func (m *MockIdentityStore) ListIdentities(filter store.IdentityFilter) ([]model.Identity, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Identity), args.Error(1)
}

func (m *MockIdentityStore) CountIdentities(filter store.IdentityFilter) (int64, error) {
	args := m.Called(filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIdentityStore) LatestSource() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// MockRunStore is a mock implementation of store.RunStore
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) CreateRun(run *model.ReviewRun, stages []model.StageRun) error {
	args := m.Called(run, stages)
	return args.Error(0)
}

func (m *MockRunStore) GetRun(id string) (*model.ReviewRun, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReviewRun), args.Error(1)
}

func (m *MockRunStore) GetRunStages(id string) ([]model.StageRun, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StageRun), args.Error(1)
}

func (m *MockRunStore) ListRuns(limit, offset int) ([]model.ReviewRun, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ReviewRun), args.Error(1)
}

func (m *MockRunStore) CountRuns() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRunStore) CountActiveRuns() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRunStore) UpdateRun(run *model.ReviewRun) error {
	args := m.Called(run)
	return args.Error(0)
}

func (m *MockRunStore) CancelRun(id string) (*model.ReviewRun, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReviewRun), args.Error(1)
}

func (m *MockRunStore) CreateStage(stage *model.StageRun) error {
	args := m.Called(stage)
	return args.Error(0)
}

func (m *MockRunStore) UpdateStage(stage *model.StageRun) error {
	args := m.Called(stage)
	return args.Error(0)
}

// MockFindingStore is a mock implementation of store.FindingStore
type MockFindingStore struct {
	mock.Mock
}

func (m *MockFindingStore) ReplaceFindings(runID string, findings []model.Finding) error {
	args := m.Called(runID, findings)
	return args.Error(0)
}

func (m *MockFindingStore) ListFindings(runID string, band string) ([]model.Finding, error) {
	args := m.Called(runID, band)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Finding), args.Error(1)
}
