package tgui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscAndTags(t *testing.T) {
	assert.Equal(t, H("a &lt;b&gt; &amp; c"), Esc("a <b> & c"))
	assert.Equal(t, H("<b>1 &lt; 2</b>"), B("1 < 2"))
	assert.Equal(t, H("<code>-100</code>"), Code("-100"))
	assert.Equal(t, H("x\ny"), Lines("x", "", "  ", "y"))
}

func TestTruncation(t *testing.T) {
	assert.Equal(t, "héllo", CutRunes("héllo", 5))
	assert.Equal(t, "hé", CutRunes("héllo", 2))
	assert.Equal(t, "hé…", TruncRunes("héllo", 2))
	assert.Equal(t, "héllo", TruncRunes("héllo", 10))
	assert.Equal(t, "", CutRunes("abc", 0))
}
