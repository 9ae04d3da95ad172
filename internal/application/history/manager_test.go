package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/growsmart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockRepo struct{ mock.Mock }

func (m *mockRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepo) ReplaceEntries(ctx context.Context, userID string, entries []domain.PredictionEntry) error {
	return m.Called(ctx, userID, entries).Error(0)
}

// --- helpers ---

func entry(id string) domain.PredictionEntry {
	v := 1123.4
	return domain.PredictionEntry{ID: id, Kind: domain.KindRainfall, Year: 2023, State: "Kerala", PredictedRainfall: &v}
}

func ids(entries []domain.PredictionEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func profile(entryIDs ...string) *domain.Profile {
	p := &domain.Profile{UserID: "u1", Username: "alice"}
	for _, id := range entryIDs {
		p.Predictions = append(p.Predictions, entry(id))
	}
	return p
}

func loaded(t *testing.T, repo *mockRepo, entryIDs ...string) *Manager {
	t.Helper()
	repo.On("Get", mock.Anything, "u1").Return(profile(entryIDs...), nil).Once()
	m := NewManager(repo, 0)
	_, err := m.Load(context.Background(), "u1")
	require.NoError(t, err)
	return m
}

func persisted(entryIDs ...string) interface{} {
	return mock.MatchedBy(func(got []domain.PredictionEntry) bool {
		return assert.ObjectsAreEqual(entryIDs, ids(got))
	})
}

// --- load ---

func TestLoad_ProjectsEntries(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B")

	snap := m.Snapshot()
	assert.True(t, snap.Loaded)
	assert.False(t, snap.Loading)
	assert.Equal(t, "alice", snap.Username)
	assert.Equal(t, []string{"A", "B"}, ids(snap.Entries))
}

func TestLoad_NotFound(t *testing.T) {
	repo := &mockRepo{}
	repo.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)

	_, err := NewManager(repo, 0).Load(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoad_FailureKeepsPreviousList(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B")
	repo.On("Get", mock.Anything, "u1").Return(nil, domain.ErrUnavailable).Once()

	_, err := m.Load(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, []string{"A", "B"}, ids(m.Snapshot().Entries))
}

// --- append ---

func TestAppend_ThenLoadKeepsOrder(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B")
	repo.On("ReplaceEntries", mock.Anything, "u1", persisted("A", "B", "C")).Return(nil).Once()

	got, err := m.Append(context.Background(), "u1", entry("C"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(got))

	repo.On("Get", mock.Anything, "u1").Return(profile("A", "B", "C"), nil).Once()
	got, err = m.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(got))
	repo.AssertExpectations(t)
}

func TestAppend_KeepsStructurallyIdenticalEntries(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo)
	dup := entry("X")
	repo.On("ReplaceEntries", mock.Anything, "u1", mock.Anything).Return(nil)

	_, err := m.Append(context.Background(), "u1", dup)
	require.NoError(t, err)
	got, err := m.Append(context.Background(), "u1", dup)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAppend_PersistFailureRollsBack(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")
	repo.On("ReplaceEntries", mock.Anything, "u1", mock.Anything).Return(domain.ErrUnavailable)

	_, err := m.Append(context.Background(), "u1", entry("B"))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, []string{"A"}, ids(m.Snapshot().Entries))
}

func TestAppend_LoadsFirstWhenNotLoaded(t *testing.T) {
	repo := &mockRepo{}
	repo.On("Get", mock.Anything, "u1").Return(nil, domain.ErrUnavailable).Once()
	m := NewManager(repo, 0)
	_, err := m.Load(context.Background(), "u1")
	require.Error(t, err)

	repo.On("Get", mock.Anything, "u1").Return(profile("A"), nil).Once()
	repo.On("ReplaceEntries", mock.Anything, "u1", persisted("A", "B")).Return(nil).Once()

	got, err := m.Append(context.Background(), "u1", entry("B"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(got))
	repo.AssertExpectations(t)
}

func TestAppend_SignedOut(t *testing.T) {
	_, err := NewManager(&mockRepo{}, 0).Append(context.Background(), "u1", entry("A"))
	assert.ErrorIs(t, err, domain.ErrSignedOut)
}

func TestAppend_RefusesOtherUsersList(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")

	_, err := m.Append(context.Background(), "u2", entry("B"))
	assert.ErrorIs(t, err, domain.ErrSignedOut)
	assert.Equal(t, []string{"A"}, ids(m.Snapshot().Entries))
	repo.AssertNotCalled(t, "ReplaceEntries", mock.Anything, mock.Anything, mock.Anything)
}

// --- remove ---

func TestRemove_Index(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B", "C")
	repo.On("ReplaceEntries", mock.Anything, "u1", persisted("A", "C")).Return(nil).Once()

	got, err := m.Remove(context.Background(), 1, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(got))
}

func TestRemove_TwiceWithSameIndexRemovesOnce(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B", "C")
	repo.On("ReplaceEntries", mock.Anything, "u1", persisted("A", "C")).Return(nil).Once()

	_, err := m.Remove(context.Background(), 1, "B")
	require.NoError(t, err)
	got, err := m.Remove(context.Background(), 1, "B")
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	assert.Equal(t, []string{"A", "C"}, ids(got))
	repo.AssertNumberOfCalls(t, "ReplaceEntries", 1)
}

func TestRemove_OutOfRange(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")

	for _, i := range []int{-1, 1, 5} {
		_, err := m.Remove(context.Background(), i, "A")
		assert.ErrorIs(t, err, domain.ErrOutOfRange, "index %d", i)
	}
	repo.AssertNotCalled(t, "ReplaceEntries", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemove_RequiresEntryID(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")
	_, err := m.Remove(context.Background(), 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRemove_PersistFailureRestoresEntry(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B")
	repo.On("ReplaceEntries", mock.Anything, "u1", mock.Anything).Return(domain.ErrUnavailable)

	_, err := m.Remove(context.Background(), 0, "A")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, []string{"A", "B"}, ids(m.Snapshot().Entries))
}

// A load that resolves while a removal is being persisted must not bring the
// removed entry back, locally or remotely.
func TestRemove_ConcurrentLoadDoesNotResurrect(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B", "C")

	persisting := make(chan struct{})
	release := make(chan struct{})
	repo.On("ReplaceEntries", mock.Anything, "u1", persisted("A", "C")).Run(func(mock.Arguments) {
		close(persisting)
		<-release
	}).Return(nil).Once()
	repo.On("Get", mock.Anything, "u1").Return(profile("A", "B", "C", "D"), nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Remove(context.Background(), 1, "B")
		assert.NoError(t, err)
	}()
	<-persisting

	_, err := m.Load(context.Background(), "u1")
	require.NoError(t, err)
	close(release)
	wg.Wait()

	assert.NotContains(t, ids(m.Snapshot().Entries), "B")
	assert.Equal(t, []string{"A", "C"}, ids(m.Snapshot().Entries))
	repo.AssertExpectations(t)
}

func TestRemove_LoadStartedBeforeRemoveIsDiscarded(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A", "B", "C")

	fetching := make(chan struct{})
	release := make(chan struct{})
	repo.On("Get", mock.Anything, "u1").Run(func(mock.Arguments) {
		close(fetching)
		<-release
	}).Return(profile("A", "B", "C", "D"), nil).Once()
	repo.On("ReplaceEntries", mock.Anything, "u1", persisted("A", "C")).Return(nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), "u1")
		done <- err
	}()
	<-fetching

	_, err := m.Remove(context.Background(), 1, "B")
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"A", "C"}, ids(m.Snapshot().Entries))
}

// --- refresh ---

func TestRefresh_ClearsLoadingOnFailure(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")
	repo.On("Get", mock.Anything, "u1").Return(nil, errors.New("boom")).Once()

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, m.Loading())
}

func TestRefresh_OverlappingCallIsRejected(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")

	fetching := make(chan struct{})
	release := make(chan struct{})
	repo.On("Get", mock.Anything, "u1").Run(func(mock.Arguments) {
		close(fetching)
		<-release
	}).Return(profile("A", "B"), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		done <- err
	}()
	<-fetching
	assert.True(t, m.Loading())

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.True(t, m.Loading())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, m.Loading())
	assert.Equal(t, []string{"A", "B"}, ids(m.Snapshot().Entries))
}

func TestRefresh_SignedOut(t *testing.T) {
	_, err := NewManager(&mockRepo{}, 0).Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrSignedOut)
}

func TestReset_DiscardsInFlightLoad(t *testing.T) {
	repo := &mockRepo{}
	m := loaded(t, repo, "A")

	fetching := make(chan struct{})
	release := make(chan struct{})
	repo.On("Get", mock.Anything, "u1").Run(func(mock.Arguments) {
		close(fetching)
		<-release
	}).Return(profile("A", "B"), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		done <- err
	}()
	<-fetching
	m.Reset()
	close(release)
	require.NoError(t, <-done)

	snap := m.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.False(t, snap.Loaded)
}
