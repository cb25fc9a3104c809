package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testProject is a throwaway project directory using the offline embedder.
type testProject struct {
	dir string
	raw string
}

const testConfig = `embeddings:
  provider: static
  dimensions: 64
  batch_delay: 0s
query:
  similarity_threshold: 0.78
`

func newTestProject(t *testing.T) *testProject {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("OPENAI_API_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "academykb.yaml"), []byte(testConfig), 0644))
	raw := filepath.Join(dir, "data", "raw")
	require.NoError(t, os.MkdirAll(raw, 0755))
	return &testProject{dir: dir, raw: raw}
}

// write creates a file under the raw root and returns its path.
func (p *testProject) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(p.raw, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// run executes the root command against the project and returns stdout.
func (p *testProject) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--dir", p.dir}, args...))
	err := root.Execute()
	return out.String(), err
}

func (p *testProject) seed(t *testing.T) {
	t.Helper()
	p.write(t, "exposure/aperture.md", "---\ntitle: Aperture Basics\nsource: lesson\n---\nAperture controls depth of field. Wide apertures blur the background.")
	p.write(t, "exposure/iso.md", "---\ntitle: ISO Explained\nsource: lesson\n---\nISO sets sensor sensitivity. High ISO adds noise.")
	p.write(t, "qa/faq.csv", "question,answer\nWhat lens for portraits?,An 85mm prime flatters faces.\n")
}
