package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/content-curator/internal/models"
)

type recorder struct {
	name string
	got  []*models.Message
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Deliver(ctx context.Context, msg *models.Message) error {
	r.got = append(r.got, msg)
	return nil
}

func TestRegistry(t *testing.T) {
	a := &recorder{name: "alerts"}
	b := &recorder{name: "digest"}
	reg := NewRegistry(b, a)

	assert.Equal(t, []string{"alerts", "digest"}, reg.Names())

	require.NoError(t, reg.Deliver(context.Background(), "digest", &models.Message{Content: "hi"}))
	assert.Len(t, b.got, 1)
	assert.Empty(t, a.got)

	err := reg.Deliver(context.Background(), "missing", &models.Message{})
	assert.ErrorIs(t, err, ErrUnknownNotifier)
}
