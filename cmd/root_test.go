package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/config"
	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
)

type mockHierarchy struct {
	mock.Mock
}

func (m *mockHierarchy) Districts(ctx context.Context) ([]crawler.Option, error) {
	args := m.Called(ctx)
	opts, _ := args.Get(0).([]crawler.Option)
	return opts, args.Error(1)
}

func (m *mockHierarchy) Tehsils(ctx context.Context, district string) ([]crawler.Option, error) {
	args := m.Called(ctx, district)
	opts, _ := args.Get(0).([]crawler.Option)
	return opts, args.Error(1)
}

func (m *mockHierarchy) RICircles(ctx context.Context, district, tehsil string) ([]crawler.Option, error) {
	args := m.Called(ctx, district, tehsil)
	opts, _ := args.Get(0).([]crawler.Option)
	return opts, args.Error(1)
}

func (m *mockHierarchy) Villages(ctx context.Context, district, tehsil, ri string) ([]crawler.Option, error) {
	args := m.Called(ctx, district, tehsil, ri)
	opts, _ := args.Get(0).([]crawler.Option)
	return opts, args.Error(1)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"crawl", "init", "tiles", "hierarchy", "serve"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestResolveAppRequiresInitialization(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)

	app := &App{Config: config.Config{}, Logger: zap.NewNop()}
	got, err := resolveApp(context.WithValue(context.Background(), appKey, app))
	require.NoError(t, err)
	assert.Same(t, app, got)
}

func TestResolveVillagesPrefersExplicitList(t *testing.T) {
	t.Parallel()

	h := &mockHierarchy{}
	got, err := resolveVillages(context.Background(), []string{" 38", "", "39 "}, h, crawler.Path{})
	require.NoError(t, err)
	assert.Equal(t, []string{"38", "39"}, got)
	h.AssertNotCalled(t, "Villages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveVillagesDiscovers(t *testing.T) {
	t.Parallel()

	h := &mockHierarchy{}
	h.On("Villages", mock.Anything, "1", "1", "2").Return([]crawler.Option{
		{Value: "", Label: "Select Village"},
		{Value: "38", Label: "Village 38"},
		{Value: "select", Label: "--"},
		{Value: " 39 ", Label: "Village 39"},
	}, nil)
	got, err := resolveVillages(context.Background(), nil, h, crawler.Path{State: "21", District: "1", Tehsil: "1", RI: "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"38", "39"}, got)

	failing := &mockHierarchy{}
	failing.On("Villages", mock.Anything, "1", "1", "2").Return(nil, crawler.ErrDiscovery)
	_, err = resolveVillages(context.Background(), nil, failing, crawler.Path{District: "1", Tehsil: "1", RI: "2"})
	require.ErrorIs(t, err, crawler.ErrDiscovery)
}

func TestListLevelSelectsDeepestLevel(t *testing.T) {
	t.Parallel()

	h := &mockHierarchy{}
	h.On("Districts", mock.Anything).Return([]crawler.Option{{Value: "1"}}, nil)
	h.On("Tehsils", mock.Anything, "1").Return([]crawler.Option{{Value: "2"}}, nil)
	h.On("RICircles", mock.Anything, "1", "2").Return([]crawler.Option{{Value: "3"}}, nil)
	h.On("Villages", mock.Anything, "1", "2", "3").Return([]crawler.Option{{Value: "38"}}, nil)

	cases := []struct {
		opts hierarchyOptions
		want string
	}{
		{hierarchyOptions{}, "1"},
		{hierarchyOptions{district: "1"}, "2"},
		{hierarchyOptions{district: "1", tehsil: "2"}, "3"},
		{hierarchyOptions{district: "1", tehsil: "2", ri: "3"}, "38"},
	}
	for _, tc := range cases {
		got, err := listLevel(context.Background(), h, &tc.opts)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, tc.want, got[0].Value)
	}

	_, err := listLevel(context.Background(), h, &hierarchyOptions{ri: "3"})
	require.Error(t, err)
	_, err = listLevel(context.Background(), h, &hierarchyOptions{district: "1", ri: "3"})
	require.Error(t, err)
}

func TestClosersRunInReverseOrder(t *testing.T) {
	t.Parallel()

	var order []int
	var c closers
	c.add(func() { order = append(order, 1) })
	c.add(nil)
	c.add(func() { order = append(order, 2) })
	c.run()
	assert.Equal(t, []int{2, 1}, order)
}

func TestInitCommandResetsFiles(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "village_data")
	stateFile := filepath.Join(dir, "scraper_state.json")
	logFile := filepath.Join(dir, "scraper.log")
	require.NoError(t, os.MkdirAll(outputDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "village_38.json"), []byte("{}"), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "storage:\n" +
		"  output_dir: " + outputDir + "\n" +
		"  state_file: " + stateFile + "\n" +
		"logging:\n" +
		"  development: true\n" +
		"  file: " + logFile + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", cfgPath})
	require.NoError(t, root.ExecuteContext(context.Background()))

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	data, err := os.ReadFile(stateFile) // #nosec G304 -- temp dir
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed_sheets":{},"last_village":null,"last_sheet":null}`, string(data))
}

func TestRootCommandReportsConfigErrors(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
