package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/forgeworks/blockforge/block"
)

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeRules(t, path, `
mode: whitelist
allow_names:
  - is_valid_email
  - mask_email
allow_categories:
  - validation
max_calls_per_block: 50
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, ModeWhitelist, rules.Mode)
	assert.Equal(t, []string{"is_valid_email", "mask_email"}, rules.AllowNames)
	assert.Equal(t, []string{"validation"}, rules.AllowCategories)
	assert.Equal(t, 50, rules.MaxCallsPerBlock)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read policy file")
}

func TestLoadRulesMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeRules(t, path, "mode: [unclosed")

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse policy file")
}

func TestLoadRulesUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeRules(t, path, "mode: graylist")

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "graylist"`)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeRules(t, path, "mode: blacklist\n")

	engine := NewEngine(Rules{Mode: ModeBlacklist})
	stop, err := Watch(path, engine, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer stop()

	req := Request{Name: "reverse_string", Category: "string", Tier: block.TierA}
	require.True(t, engine.Check(req).Allowed)

	writeRules(t, path, "mode: whitelist\nallow_names: [is_valid_email]\n")

	assert.Eventually(t, func() bool {
		return !engine.Check(req).Allowed
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, ModeWhitelist, engine.Rules().Mode)
}

func TestWatchKeepsSnapshotOnMalformedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeRules(t, path, "mode: blacklist\n")

	engine := NewEngine(Rules{Mode: ModeBlacklist})
	stop, err := Watch(path, engine, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer stop()

	writeRules(t, path, "mode: [broken")

	// Rules are never partially applied; the previous snapshot survives.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, ModeBlacklist, engine.Rules().Mode)
	assert.True(t, engine.Check(Request{Name: "reverse_string", Category: "string", Tier: block.TierA}).Allowed)
}

func TestWatchMissingFile(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "absent.yaml"), NewEngine(Rules{}), nil)
	assert.Error(t, err)
}
