package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("@echo off\r\n"), 0o644))
	return p
}

func TestValidatorAcceptsCmdFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Backup.CMD")
	got, err := Validator{}.Validate(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestValidatorRejections(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt")
	sub := filepath.Join(dir, "folder.cmd")
	require.NoError(t, os.Mkdir(sub, 0o755))

	cases := map[string]string{
		"empty":     "",
		"missing":   filepath.Join(dir, "gone.cmd"),
		"extension": txt,
		"directory": sub,
	}
	for name, p := range cases {
		_, err := Validator{}.Validate(p)
		assert.ErrorIs(t, err, ErrInvalid, name)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), name)
	}
}

func TestValidatorCustomExtensions(t *testing.T) {
	dir := t.TempDir()
	bat := writeFile(t, dir, "job.bat")
	v := Validator{Extensions: []string{"bat", ".cmd"}}
	_, err := v.Validate(bat)
	assert.NoError(t, err)

	_, err = Validator{}.Validate(bat)
	assert.ErrorIs(t, err, ErrInvalid)
}
