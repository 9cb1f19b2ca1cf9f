package feed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	models "rwa-stream/models"
)

func ids(txs []models.ParsedTransaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestFeedKeepsMostRecent(t *testing.T) {
	f := New(3)
	ctx := context.Background()
	assert.Empty(t, f.Recent(0))

	for i := 1; i <= 5; i++ {
		assert.NoError(t, f.Write(ctx, &models.ParsedTransaction{ID: fmt.Sprintf("H%d", i)}))
	}

	assert.Equal(t, 3, f.Len())
	assert.Equal(t, int64(5), f.Total())
	assert.Equal(t, []string{"H5", "H4", "H3"}, ids(f.Recent(0)))
	assert.Equal(t, []string{"H5", "H4"}, ids(f.Recent(2)))
	assert.Equal(t, []string{"H5", "H4", "H3"}, ids(f.Recent(10)))
}

func TestFeedPartiallyFilled(t *testing.T) {
	f := New(4)
	_ = f.Write(context.Background(), &models.ParsedTransaction{ID: "A"})
	_ = f.Write(context.Background(), &models.ParsedTransaction{ID: "B"})
	assert.Equal(t, []string{"B", "A"}, ids(f.Recent(0)))
}
