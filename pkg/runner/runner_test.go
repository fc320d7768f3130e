package runner

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benschubert/wast/pkg/artifact"
	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/envcache"
)

type fakeGraph struct {
	prereqs map[string][]string
}

func (f *fakeGraph) Prerequisites(fqName string) []string { return f.prereqs[fqName] }
func (f *fakeGraph) IsGroup(string) bool                   { return false }

func TestRunnerPublishAndGetArtifactsRoundtrip(t *testing.T) {
	cfg, err := config.New(config.Options{CachePath: t.TempDir(), Colors: func() *bool { b := false; return &b }()})
	require.NoError(t, err)

	cache := envcache.New(cfg)
	h := cache.PrepareUnmanaged("build")

	g := &fakeGraph{prereqs: map[string][]string{"publish": {"build"}}}
	bus := artifact.New(g)

	var out, errOut bytes.Buffer
	buildRunner := New(context.Background(), h, bus, cfg, "build", &out, &errOut)
	buildRunner.PublishArtifact("wheel", "dist/pkg.whl")
	bus.MarkSucceeded("build")

	publishRunner := New(context.Background(), h, bus, cfg, "publish", &out, &errOut)
	assert.Equal(t, []interface{}{"dist/pkg.whl"}, publishRunner.GetArtifacts("wheel"))
}

func TestRunnerCachePathIsKeyedByInstance(t *testing.T) {
	cfg, err := config.New(config.Options{CachePath: t.TempDir(), Colors: func() *bool { b := false; return &b }()})
	require.NoError(t, err)
	cache := envcache.New(cfg)
	h := cache.PrepareUnmanaged("lint")

	r := New(context.Background(), h, nil, cfg, "lint[3.10]", nil, nil)
	assert.Contains(t, r.CachePath(), "lint[3.10]")
}
