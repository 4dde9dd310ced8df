package boundaries

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGoFile(t *testing.T, root string, rel string, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCheckReportsLayerViolations(t *testing.T) {
	root := t.TempDir()
	writeGoFile(t, root, "engagement/polls/domain/entities/poll.go", `package entities

import (
	"strings"

	"golang.org/x/text/cases"
	"pollhub/internal/platform/db"
)
`)
	writeGoFile(t, root, "engagement/polls/application/commands/cast.go", `package commands

import (
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"pollhub/contexts/engagement/polls/adapters/memory"
	"pollhub/contexts/engagement/surveys/ports"
	"pollhub/contracts/gen/events/v1"
)
`)
	writeGoFile(t, root, "engagement/polls/application/commands/cast_test.go", `package commands

import "pollhub/internal/platform/db"
`)

	violations, err := Check(root, DefaultRules())
	require.NoError(t, err)

	rules := make([]string, 0, len(violations))
	for _, v := range violations {
		rules = append(rules, v.Rule)
	}
	assert.Equal(t, []string{
		"application import is outside explicit allowlist",
		"application must not import adapters",
		"application import is outside explicit allowlist",
		"cross-module imports are forbidden",
		"application import is outside explicit allowlist",
		"domain must not import runtime infrastructure",
		"domain import is outside explicit allowlist",
	}, rules)
	assert.Equal(t, "engagement/polls/application/commands/cast.go", violations[0].File)
	assert.Equal(t, "gorm.io/gorm", violations[0].Import)
}

func TestRepositoryContextsRespectBoundaries(t *testing.T) {
	violations, err := Check(filepath.Join("..", "..", "..", "contexts"), DefaultRules())
	require.NoError(t, err)
	assert.Empty(t, violations)
}
