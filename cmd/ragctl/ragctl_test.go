package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlyTxt(name string) bool { return strings.HasSuffix(name, ".txt") }

func TestBatcherHandleEvent(t *testing.T) {
	dir := t.TempDir()
	resume := filepath.Join(dir, "ana_lima.txt")
	require.NoError(t, os.WriteFile(resume, []byte("Ana Lima"), 0o644))
	image := filepath.Join(dir, "foto.jpg")
	require.NoError(t, os.WriteFile(image, []byte("x"), 0o644))
	hidden := filepath.Join(dir, ".rascunho.txt")
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o644))
	sub := filepath.Join(dir, "pasta.txt")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create", fsnotify.Event{Name: resume, Op: fsnotify.Create}, true},
		{"write with chmod", fsnotify.Event{Name: resume, Op: fsnotify.Write | fsnotify.Chmod}, true},
		{"chmod only", fsnotify.Event{Name: resume, Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: resume, Op: fsnotify.Remove}, false},
		{"unsupported", fsnotify.Event{Name: image, Op: fsnotify.Create}, false},
		{"hidden", fsnotify.Event{Name: hidden, Op: fsnotify.Create}, false},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
		{"already gone", fsnotify.Event{Name: filepath.Join(dir, "sumiu.txt"), Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBatcher(onlyTxt)
			assert.Equal(t, tt.want, b.handleEvent(tt.ev))
		})
	}
}

func TestBatcherDrain(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"b.txt", "a.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		paths = append(paths, p)
	}

	b := newBatcher(onlyTxt)
	b.handleEvent(fsnotify.Event{Name: paths[0], Op: fsnotify.Create})
	b.handleEvent(fsnotify.Event{Name: paths[0], Op: fsnotify.Write})
	b.handleEvent(fsnotify.Event{Name: paths[1], Op: fsnotify.Create})

	assert.Equal(t, []string{paths[1], paths[0]}, b.drain())
	assert.Empty(t, b.drain())
}

func TestReadJobDescription(t *testing.T) {
	jd, err := readJobDescription("  Dev Go  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Dev Go", jd)

	path := filepath.Join(t.TempDir(), "vaga.txt")
	require.NoError(t, os.WriteFile(path, []byte("Analista de dados\n"), 0o644))
	jd, err = readJobDescription("", path)
	require.NoError(t, err)
	assert.Equal(t, "Analista de dados", jd)

	_, err = readJobDescription("   ", "")
	assert.Error(t, err)
	_, err = readJobDescription("", filepath.Join(t.TempDir(), "nada.txt"))
	assert.Error(t, err)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "Joã...", clip("João Silva", 3))
	assert.Equal(t, "curto", clip("curto", 10))
	assert.Equal(t, "sem limite", clip("sem limite", -1))
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maria_souza.txt")
	require.NoError(t, os.WriteFile(path, []byte("Maria Souza\nDesenvolvedora Go com 5 anos de experiência"), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("chunker:\n  strategy: fixed\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"extract", "--config", cfgPath, "--max-len", "11", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	text := out.String()
	assert.Contains(t, text, "maria_souza.txt")
	assert.Contains(t, text, "candidate_name: Maria Souza")
	assert.Contains(t, text, "Maria Souza...")
}
