package document

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource 测试用的内存文档
type fakeSource struct {
	texts      []string
	textErr    map[int]error
	renderErr  map[int]error
	renderCall []int
}

func (f *fakeSource) PageCount() int { return len(f.texts) }

func (f *fakeSource) ExtractText(pageNr int) (string, error) {
	if err := f.textErr[pageNr]; err != nil {
		return "", err
	}
	return f.texts[pageNr-1], nil
}

func (f *fakeSource) RenderPage(pageNr int) ([]byte, error) {
	f.renderCall = append(f.renderCall, pageNr)
	if err := f.renderErr[pageNr]; err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("page-%d", pageNr)), nil
}

func TestSplitYieldsOnePagePerInputPage(t *testing.T) {
	src := &fakeSource{texts: []string{"a", "b", "c", "d"}}

	pages, err := Split(src)
	require.NoError(t, err)
	require.Len(t, pages, 4)

	for i, p := range pages {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, fmt.Sprintf("page-%d", i+1), string(p.Content))
	}
	assert.Equal(t, []int{1, 2, 3, 4}, src.renderCall)
}

func TestSplitEmptyDocument(t *testing.T) {
	pages, err := Split(&fakeSource{})
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestSplitTextFailureBecomesEmptyText(t *testing.T) {
	src := &fakeSource{
		texts:   []string{"a", "b"},
		textErr: map[int]error{2: errors.New("broken font")},
	}

	pages, err := Split(src)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "", pages[1].Text)
}

func TestSplitRenderFailureAborts(t *testing.T) {
	src := &fakeSource{
		texts:     []string{"a", "b", "c"},
		renderErr: map[int]error{2: errors.New("bad page tree")},
	}

	pages, err := Split(src)
	require.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "page 2")
}
