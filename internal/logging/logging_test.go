package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestSetupFile(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	path := filepath.Join(t.TempDir(), "logs", "headshot.log")
	out, err := Setup(Options{File: path})
	require.NoError(t, err)

	lj, ok := out.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 10, lj.MaxSize)
	assert.Equal(t, 28, lj.MaxAge)

	log.Printf("crop finished")
	require.NoError(t, lj.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "crop finished"))
}

func TestSetupQuiet(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	out, err := Setup(Options{Quiet: true})
	require.NoError(t, err)
	assert.Equal(t, io.Discard, out)

	out, err = Setup(Options{})
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, out)
}
