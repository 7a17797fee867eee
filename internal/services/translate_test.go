package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderTranslator_SameLanguageIsNoop(t *testing.T) {
	p := &fakeProvider{name: "primary", responses: []fakeResponse{{raw: "should not be used"}}}
	tr := NewProviderTranslator(&ProviderRegistry{Primary: p}, nil)

	out, err := tr.Translate(context.Background(), "árbol binario", "en", "EN")
	require.NoError(t, err)
	assert.Equal(t, "árbol binario", out)
	assert.Equal(t, 0, p.Calls())
}

func TestProviderTranslator_CachesResult(t *testing.T) {
	p := &fakeProvider{name: "primary", responses: []fakeResponse{{raw: `"binary tree"`}}}
	tr := NewProviderTranslator(&ProviderRegistry{Primary: p}, nil)

	for i := 0; i < 3; i++ {
		out, err := tr.Translate(context.Background(), "árbol binario", "en", "es")
		require.NoError(t, err)
		assert.Equal(t, "binary tree", out)
	}
	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, []float32{0.1}, p.Temperatures())
}

func TestProviderTranslator_FallsBackThenReturnsOriginal(t *testing.T) {
	failing := &fakeProvider{name: "primary", responses: []fakeResponse{{err: errors.New("down")}}}
	working := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: "binary tree"}}}

	tr := NewProviderTranslator(&ProviderRegistry{Primary: failing, Secondary: working}, nil)
	out, err := tr.Translate(context.Background(), "árbol binario", "en", "es")
	require.NoError(t, err)
	assert.Equal(t, "binary tree", out)

	tr = NewProviderTranslator(&ProviderRegistry{Primary: failing}, nil)
	out, err = tr.Translate(context.Background(), "árbol binario", "en", "es")
	assert.Error(t, err)
	assert.Equal(t, "árbol binario", out)
}
