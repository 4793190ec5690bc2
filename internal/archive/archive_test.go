package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stepchowfun/toast/internal/pathcollector"
)

func TestWriteAndExtractTarRoundTrips(t *testing.T) {
	entries := []pathcollector.Entry{
		{RelPath: []byte("src"), Kind: pathcollector.KindDirectory, Mode: 0o755},
		{RelPath: []byte("src/main.c"), Kind: pathcollector.KindFile, Mode: 0o644, Content: []byte("int main(){}")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTar(&buf, entries))

	dest := t.TempDir()
	require.NoError(t, ExtractTar(&buf, dest))

	content, err := os.ReadFile(filepath.Join(dest, "src", "main.c"))
	require.NoError(t, err)
	require.Equal(t, "int main(){}", string(content))
}

func TestMoveTreeRelocatesFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "a.out"), []byte("binary"), 0o755))

	require.NoError(t, MoveTree(src, dst))

	content, err := os.ReadFile(filepath.Join(dst, "nested", "a.out"))
	require.NoError(t, err)
	require.Equal(t, "binary", string(content))
}
