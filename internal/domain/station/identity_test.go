package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"double leading slash", "//AcTec001", "/AcTec001"},
		{"single slash", "/AcTec001", "/AcTec001"},
		{"no leading slash", "AcTec001", "/AcTec001"},
		{"nested double slashes", "/a//b///c", "/a/b/c"},
		{"empty", "", "/"},
		{"only slashes", "///", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPath(tt.path))
		})
	}
}

func TestFromPath(t *testing.T) {
	assert.Equal(t, Identity("AcTec001"), FromPath("//AcTec001", true))
	assert.Equal(t, Identity("AcTec001"), FromPath("/AcTec001", false))
	// collapse关闭时多余斜杠保留在标识内
	assert.Equal(t, Identity("/AcTec001"), FromPath("//AcTec001", false))
}

func TestIdentity_Path(t *testing.T) {
	id := FromPath("//AcTec001", true)
	assert.Equal(t, "/AcTec001", id.Path())
	assert.Equal(t, "AcTec001", id.String())
	assert.False(t, id.IsZero())
	assert.True(t, Identity("").IsZero())
}
