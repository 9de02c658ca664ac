package crawler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"readtx/lib/browser"
	"readtx/lib/tabular"
	"readtx/lib/testutil"
	"readtx/lib/timezone"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Name:       "testbank",
		OutputPath: t.TempDir(),
		Since:      time.Date(2024, time.January, 1, 0, 0, 0, 0, timezone.Location),
		Until:      time.Date(2024, time.December, 31, 0, 0, 0, 0, timezone.Location),
	}
}

func newTestBase(t *testing.T) (*Base, *testutil.FakeSession) {
	t.Helper()
	session := &testutil.FakeSession{}
	base, err := NewBase(context.Background(), testConfig(t), func(ctx context.Context, downloadDir string) (browser.Session, error) {
		return session, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })
	return base, session
}

// stageSite records which lifecycle stages ran and can fail one of them.
type stageSite struct {
	*Base
	stages []string
	failAt string
}

func (s *stageSite) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		return err
	}
	s.stages = append(s.stages, name)
	if s.failAt == name {
		return errors.New("boom")
	}
	return nil
}

func (s *stageSite) Login(ctx context.Context) error {
	return s.stage(ctx, "login", s.Base.Login)
}

func (s *stageSite) DownloadData(ctx context.Context) error {
	return s.stage(ctx, "download_data", s.Base.DownloadData)
}

func (s *stageSite) ProcessData(ctx context.Context) error {
	return s.stage(ctx, "process_data", s.Base.ProcessData)
}

func (s *stageSite) SaveData(ctx context.Context) error {
	return s.stage(ctx, "save_data", s.Base.SaveData)
}

func TestRunLifecycle(t *testing.T) {
	base, session := newTestBase(t)
	site := &stageSite{Base: base}
	site.SetData(SingleTable(tabular.FromRecords([][]string{
		{"Datum", "Betrag"},
		{"01.01.2024", "-5"},
	})))

	err := Run(context.Background(), site)
	require.NoError(t, err)
	require.Equal(t, []string{"login", "download_data", "process_data", "save_data"}, site.stages)
	require.Equal(t, 1, session.Quits)
	require.Equal(t, StateClosed, base.State())
}

func TestRunStageErrorAborts(t *testing.T) {
	base, session := newTestBase(t)
	site := &stageSite{Base: base, failAt: "download_data"}

	err := Run(context.Background(), site)
	require.EqualError(t, err, "testbank: download_data: boom")
	require.Equal(t, []string{"login", "download_data"}, site.stages)
	require.Equal(t, 1, session.Quits, "close must run even after a stage failure")
}

func TestSaveDataSingleTable(t *testing.T) {
	base, _ := newTestBase(t)
	base.SetData(SingleTable(tabular.FromRecords([][]string{
		{"Datum", "Betrag"},
		{"01.01.2024", "-5,00"},
	})))

	require.NoError(t, base.SaveData(context.Background()))

	raw, err := os.ReadFile(filepath.Join(base.Config().OutputPath, "testbank.csv"))
	require.NoError(t, err)
	require.Equal(t, "Datum;Betrag\n01.01.2024;-5,00\n", string(raw))
}

func TestSaveDataByFile(t *testing.T) {
	base, _ := newTestBase(t)
	base.SetData(TablesByFile(map[string]*tabular.Table{
		"kurse_840400.csv": tabular.FromRecords([][]string{{"Datum"}, {"01.01.2024"}}),
		"export.xlsx":      tabular.FromRecords([][]string{{"Datum"}, {"02.01.2024"}}),
	}))

	require.NoError(t, base.SaveData(context.Background()))

	out := base.Config().OutputPath
	require.FileExists(t, filepath.Join(out, "kurse_840400.csv"))
	require.FileExists(t, filepath.Join(out, "export.csv"))
}

func TestSaveDataNothingDownloaded(t *testing.T) {
	base, _ := newTestBase(t)
	require.NoError(t, base.SaveData(context.Background()))

	entries, err := os.ReadDir(base.Config().OutputPath)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCloseIdempotent(t *testing.T) {
	base, session := newTestBase(t)
	require.NoError(t, base.Close())
	require.NoError(t, base.Close())
	require.Equal(t, 1, session.Quits)
	require.NoDirExists(t, base.DownloadDir())
}

func TestConfigValidation(t *testing.T) {
	cfg := testConfig(t)
	factory := func(ctx context.Context, downloadDir string) (browser.Session, error) {
		return &testutil.FakeSession{}, nil
	}

	bad := cfg
	bad.Name = ""
	_, err := NewBase(context.Background(), bad, factory)
	require.Error(t, err)

	bad = cfg
	bad.Since, bad.Until = bad.Until, bad.Since
	_, err = NewBase(context.Background(), bad, factory)
	require.Error(t, err)
}

func TestURLLookup(t *testing.T) {
	base := &Base{
		cfg: Config{Name: "testbank", URLs: map[string]string{"login": "https://example.com"}},
		log: slog.Default(),
	}

	u, err := base.URL("login")
	require.NoError(t, err)
	require.Equal(t, "https://example.com", u)

	_, err = base.URL("transactions")
	require.ErrorContains(t, err, `"transactions"`)
}

func TestParseDay(t *testing.T) {
	got, err := ParseDay(" 24.10.2024 ")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.October, 24, 0, 0, 0, 0, timezone.Location), got)

	_, err = ParseDay("2024-10-24")
	require.Error(t, err)
}
