package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/thumbtree/internal/errors"
)

func TestClassify_DecisionOrder(t *testing.T) {
	c := New(Extensions{})

	cases := map[string]Class{
		".DS_Store":        Ignore,
		"Thumbs.db":        Ignore,
		"IMG_0001.CR2":     Raw,
		"photo.nef":        Raw,
		"photo.JPG":        Image,
		"scan.tiff":        Image,
		"clip.MOV":         Video,
		"clip.mts":         Video,
		"README":           CopyVerbatim,
		".hidden":          CopyVerbatim,
		"notes.txt":        CopyVerbatim,
		"IMG_0001.CR2.pp3": Ignore,
		"clip.THM":         Ignore,
		"archive.xyz":      Unknown,
		"backup.tar.gz":    Unknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, c.Classify(name), name)
	}
}

func TestClassify_UsesBaseNameOfRelativePath(t *testing.T) {
	c := New(Extensions{})
	assert.Equal(t, Image, c.Classify(filepath.Join("2024", "trip.d", "a.jpg")))
	assert.Equal(t, CopyVerbatim, c.Classify(filepath.Join("dir.jpg", "LICENSE")))
}

func TestClassify_ExtraExtensions(t *testing.T) {
	c := New(Extensions{
		Image:        []string{".AVIF"},
		Copy:         []string{"gz"},
		IgnoredNames: []string{"@eaDir"},
	})
	assert.Equal(t, Image, c.Classify("a.avif"))
	assert.Equal(t, CopyVerbatim, c.Classify("backup.tar.gz"))
	assert.Equal(t, Ignore, c.Classify("@eaDir"))

	// the built-in tables are not affected by another classifier's extensions
	assert.Equal(t, Unknown, New(Extensions{}).Classify("a.avif"))
}

func TestExtAndStem(t *testing.T) {
	assert.Equal(t, "jpg", Ext("a.JPG"))
	assert.Equal(t, "gz", Ext("a.tar.gz"))
	assert.Equal(t, "", Ext(".bashrc"))
	assert.Equal(t, "", Ext("Makefile"))
	assert.Equal(t, "", Ext("trailing."))
	assert.Equal(t, "pp3", Ext(".a.cr2.pp3"))

	assert.Equal(t, "IMG_1", Stem("IMG_1.CR2"))
	assert.Equal(t, "a.tar", Stem("a.tar.gz"))
	assert.Equal(t, ".bashrc", Stem(".bashrc"))
	assert.Equal(t, ".a", Stem(".a.nef"))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "raw", Raw.String())
	assert.Equal(t, "copy", CopyVerbatim.String())
	assert.Equal(t, "unknown", Unknown.String())
}

func TestLoadRules_NoRules(t *testing.T) {
	rules, err := LoadRules(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestLoadRules_InvalidGlob(t *testing.T) {
	_, err := LoadRules(t.TempDir(), []string{"[unterminated"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRules_GlobsAndIgnoreFile(t *testing.T) {
	root := t.TempDir()
	content := []byte(`
# synology thumbnails
@eaDir/
*.bak
`)
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), content, 0o644))

	rules, err := LoadRules(root, []string{"**/private/*.raw"})
	require.NoError(t, err)
	require.NotNil(t, rules)

	c := New(Extensions{}).WithRules(rules)
	assert.Equal(t, Ignore, c.Classify(filepath.Join("2024", "@eaDir", "a.jpg")))
	assert.Equal(t, Ignore, c.Classify(filepath.Join("2024", "a.xyz.bak")))
	assert.Equal(t, Ignore, c.Classify(filepath.Join("x", "private", "dump.raw")))
	assert.Equal(t, Image, c.Classify(filepath.Join("2024", "a.jpg")))
	assert.Equal(t, Unknown, c.Classify("dump.raw"))
}
