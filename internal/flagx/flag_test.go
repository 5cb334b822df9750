package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs_SeparateValue(t *testing.T) {
	args := []string{"-b", "cache.db", "-x", "ignored", "-t", "15"}
	got := FilterArgs(args, []string{"-b", "-t"})
	assert.Equal(t, []string{"-b", "cache.db", "-t", "15"}, got)
}

func TestFilterArgs_EqualsForm(t *testing.T) {
	args := []string{"--config=conf.json", "--other=zzz", "-b=cache.db"}
	got := FilterArgs(args, []string{"--config", "-b"})
	assert.Equal(t, []string{"--config=conf.json", "-b=cache.db"}, got)
}

func TestFilterArgs_FlagWithoutValue(t *testing.T) {
	args := []string{"-v", "-b", "-t", "3"}
	got := FilterArgs(args, []string{"-v", "-t"})
	assert.Equal(t, []string{"-v", "-t", "3"}, got)
}

func TestFilterArgs_Empty(t *testing.T) {
	got := FilterArgs(nil, []string{"-b"})
	assert.NotNil(t, got)
	assert.Len(t, got, 0)
}
