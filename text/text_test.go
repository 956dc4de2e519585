package text

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/service"
)

func TestDocument(t *testing.T) {
	r := &core.Recipe{Name: "Tomato Pasta", Description: " quick dinner ", Tags: []string{"italian", " ", "easy"}}
	assert.Equal(t, "Tomato Pasta. quick dinner. tags: italian, easy", Document(r))
	assert.Equal(t, "Soup", Document(&core.Recipe{Name: "Soup"}))
}

func TestPoolIgnoresPadding(t *testing.T) {
	st := service.TokenStates{
		Hidden: [][]float64{{1, 1}, {3, 5}, {100, 100}},
		Mask:   []float64{1, 1, 0},
	}
	assert.Equal(t, []float64{2, 3}, Pool(st, 2))

	empty := service.TokenStates{Hidden: [][]float64{{7, 7}}, Mask: []float64{0}}
	assert.Equal(t, []float64{0, 0}, Pool(empty, 2))
}

func TestEncoderOrderAndPadding(t *testing.T) {
	bb := NewHashingBackbone(8, 16)
	enc := NewEncoder(bb, 2, 3, zerolog.Nop())
	docs := []string{"tomato pasta", "green salad", "tomato pasta", "", "cheese toast"}
	vecs, err := enc.Encode(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, vecs, len(docs))
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
	assert.Equal(t, make([]float64, 8), vecs[3])

	// 补齐长度不影响结果
	longer, err := NewEncoder(NewHashingBackbone(8, 64), 4, 1, zerolog.Nop()).Encode(context.Background(), docs[:1])
	require.NoError(t, err)
	assert.InDeltaSlice(t, vecs[0], longer[0], 1e-12)
}

type failingBackbone struct{ HashingBackbone }

func (failingBackbone) Forward(context.Context, []string) ([]service.TokenStates, error) {
	return nil, errors.New("offline")
}

func TestEncoderError(t *testing.T) {
	enc := NewEncoder(&failingBackbone{*NewHashingBackbone(4, 4)}, 1, 2, zerolog.Nop())
	_, err := enc.Encode(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "offline")
}

func TestRegistryLoadsOnce(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	loader := func() (Backbone, error) {
		calls.Add(1)
		return NewHashingBackbone(4, 4), nil
	}
	a, err := reg.Get("hashing", loader)
	require.NoError(t, err)
	b, err := reg.Get("hashing", loader)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.EqualValues(t, 1, calls.Load())
	assert.NotNil(t, Shared())
}
