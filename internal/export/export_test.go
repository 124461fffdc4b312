package export

import (
	"testing"
	"time"

	"bookrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []models.QueueItem {
	last := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	return []models.QueueItem{
		{
			ID:            "11111111-1111-1111-1111-111111111111",
			Payload:       []byte(`{"client_id":"c1"}`),
			Status:        models.StatusPending,
			Attempts:      2,
			CreatedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			LastAttemptAt: &last,
		},
		{
			ID:        "22222222-2222-2222-2222-222222222222",
			Payload:   []byte(`{"client_id":"c2"}`),
			Status:    models.StatusPermanentlyFailed,
			Attempts:  5,
			CreatedAt: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
			LastError: "503 Service Unavailable",
		},
	}
}

func TestBuildQueueReport(t *testing.T) {
	f, err := BuildQueueReport(sampleItems())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Queue")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Status", rows[0][1])

	assert.Equal(t, "11111111-1111-1111-1111-111111111111", rows[1][0])
	assert.Equal(t, models.StatusPending, rows[1][1])
	assert.Equal(t, "2", rows[1][2])

	assert.Equal(t, models.StatusPermanentlyFailed, rows[2][1])
	assert.Equal(t, "503 Service Unavailable", rows[2][6])

	// Дефолтный лист удален
	assert.Equal(t, []string{"Queue"}, f.GetSheetList())
}

func TestSaveQueueReport(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveQueueReport(sampleItems(), dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, path, "queue_export_")
}
