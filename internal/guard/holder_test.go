package guard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notesearch/internal/errors"
)

func TestHolder_InstanceOpensOnceAndReturnsSameGuard(t *testing.T) {
	var opens atomic.Int32
	fw := newFakeWriter()
	h := NewHolder(func() (*Guard, error) {
		opens.Add(1)
		return New(fw, WithLogger(quietLogger())), nil
	})
	assert.Equal(t, StateUninitialized, h.State())

	const callers = 32
	got := make([]*Guard, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := h.Instance()
			assert.NoError(t, err)
			got[i] = g
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for _, g := range got {
		assert.Same(t, got[0], g)
	}
	assert.Equal(t, StateOpen, h.State())
	require.NoError(t, h.Close())
}

func TestHolder_FailedOpenStaysUninitialized(t *testing.T) {
	attempts := 0
	h := NewHolder(func() (*Guard, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.StorageIO("open", fmt.Errorf("permission denied"))
		}
		return New(newFakeWriter(), WithLogger(quietLogger())), nil
	})

	_, err := h.Instance()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageIO)
	assert.Equal(t, StateUninitialized, h.State())

	g, err := h.Instance()
	require.NoError(t, err)
	assert.NotNil(t, g)
	require.NoError(t, h.Close())
}

func TestHolder_InstanceFailsAfterClose(t *testing.T) {
	fw := newFakeWriter()
	h := NewHolder(func() (*Guard, error) {
		return New(fw, WithLogger(quietLogger())), nil
	})
	g, err := h.Instance()
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.Instance()
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.Equal(t, StateClosed, h.State())

	_, err = g.NumDocs(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	_, closes := fw.counts()
	assert.Equal(t, 1, closes)
}

func TestHolder_CloseBeforeOpenIsTerminal(t *testing.T) {
	var opens atomic.Int32
	h := NewHolder(func() (*Guard, error) {
		opens.Add(1)
		return New(newFakeWriter(), WithLogger(quietLogger())), nil
	})

	require.NoError(t, h.Close())

	_, err := h.Instance()
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.Equal(t, int32(0), opens.Load())
}

func TestHolder_NoticesGuardClosedDirectly(t *testing.T) {
	h := NewHolder(func() (*Guard, error) {
		return New(newFakeWriter(), WithLogger(quietLogger())), nil
	})
	g, err := h.Instance()
	require.NoError(t, err)

	require.NoError(t, g.Close())

	_, err = h.Instance()
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.Equal(t, StateClosed, h.State())
}

func TestHolder_WriterCloseFailureStillEndsClosed(t *testing.T) {
	// Given: a holder whose writer fails to close
	fw := newFakeWriter()
	fw.closeErr = fmt.Errorf("segment flush failed")
	var reported []string
	h := NewHolder(func() (*Guard, error) {
		return New(fw,
			WithLogger(quietLogger()),
			WithCloseErrorHandler(func(step string, err error) {
				reported = append(reported, step+": "+err.Error())
			})), nil
	})
	g, err := h.Instance()
	require.NoError(t, err)
	term, doc := noteDoc("a.md", "body")
	require.NoError(t, g.UpdateDocument(context.Background(), term, doc))

	// When: the holder is closed
	require.NoError(t, h.Close())

	// Then: the failure was reported, the holder is terminal and the guard
	// rejects further work
	assert.Equal(t, []string{"close: segment flush failed"}, reported)
	_, closes := fw.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, StateClosed, h.State())

	_, err = h.Instance()
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	_, err = g.NumDocs(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}
