package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
)

func testReport() *launch.BatchReport {
	pct := 50.0
	return &launch.BatchReport{
		BatchID:    "batch-1",
		LaunchDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Statuses: []launch.DepartmentStatus{
			{Department: launch.DepartmentBOM, CompletionPercentage: &pct, RawRowCount: 2, Completed: 1, Pending: 1},
			{Department: launch.DepartmentPPAP, Err: lberrors.NewDepartmentError("ppap", errors.New("403 Forbidden"), 1)},
		},
		Results: []launch.QueryResult{
			{
				Department: launch.DepartmentBOM,
				Success:    true,
				Columns:    []string{"part_number", "status"},
				Rows:       []launch.Row{{"part_number": "P-1", "status": "complete"}, {"part_number": "P-2", "status": "open"}},
				RowCount:   2,
			},
			{Department: launch.DepartmentPPAP},
		},
	}
}

func TestFromReport(t *testing.T) {
	s := FromReport("U1", testReport())

	assert.Equal(t, "U1", s.UserID)
	assert.Equal(t, "2024-03-15", s.LaunchDate)
	assert.Equal(t, "batch-1", s.BatchID)
	require.Len(t, s.Departments, 2)

	bom, ok := s.Department(launch.DepartmentBOM)
	require.True(t, ok)
	assert.Equal(t, []string{"part_number", "status"}, bom.Columns)
	assert.Len(t, bom.Rows, 2)

	ppap, ok := s.Department(launch.DepartmentPPAP)
	require.True(t, ok)
	assert.Equal(t, "permission_denied", ppap.ErrorCode)
	assert.NotEmpty(t, ppap.ErrorMessage)
	assert.Empty(t, ppap.Rows)

	_, ok = s.Department(launch.DepartmentMFE)
	assert.False(t, ok)
}

func TestSession_Statuses(t *testing.T) {
	statuses := FromReport("U1", testReport()).Statuses()

	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].OK())
	assert.InDelta(t, 50.0, *statuses[0].CompletionPercentage, 0.0001)

	require.NotNil(t, statuses[1].Err)
	assert.Equal(t, lberrors.ErrCodePermissionDenied, statuses[1].Err.Code)
	assert.True(t, errors.Is(statuses[1].Err, lberrors.ErrExecution))
	assert.Nil(t, statuses[1].Err.Cause)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	_, err := store.Load(ctx, "U1")
	assert.True(t, lberrors.IsNotFound(err))

	require.NoError(t, store.Save(ctx, FromReport("U1", testReport())))

	s, err := store.Load(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", s.LaunchDate)
	assert.Len(t, s.Departments, 2)

	require.NoError(t, store.Delete(ctx, "U1"))
	_, err = store.Load(ctx, "U1")
	assert.True(t, lberrors.IsNotFound(err))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, FromReport("U1", testReport())))

	now = now.Add(59 * time.Second)
	_, err := store.Load(ctx, "U1")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Load(ctx, "U1")
	assert.True(t, lberrors.IsNotFound(err))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_SaveEvictsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, FromReport("U1", testReport())))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Save(ctx, FromReport("U2", testReport())))

	assert.Equal(t, 1, store.Len())
}

func TestNewMemoryStore_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewMemoryStore(0).ttl)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisStore(client, time.Minute)
	userID := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = store.Delete(ctx, userID) })

	_, err = store.Load(ctx, userID)
	assert.True(t, lberrors.IsNotFound(err))

	require.NoError(t, store.Save(ctx, FromReport(userID, testReport())))
	s, err := store.Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", s.BatchID)

	ttl, err := client.TTL(ctx, sessionKey(userID)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)
}
