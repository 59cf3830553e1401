package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/seqbuild/internal/config"
	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/eventstore"
	helpers "git.home.luguber.info/inful/seqbuild/internal/testutil/testutils"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type project struct {
	root string
	fs   *helpers.FileAssertions
	cli  *CLI
	out  *syncBuffer
	g    *Global
}

func newProject(t *testing.T) *project {
	t.Helper()
	t.Setenv(config.EnvExternalSink, "")
	t.Setenv(config.EnvHistory, "")

	root := t.TempDir()
	fa := helpers.NewFileAssertions(t, root)
	fa.WriteFile("Scripts/Common.py", []byte("A\n"))
	fa.WriteFile("Scripts/Sequencer.py", []byte("B\n"))

	out := &syncBuffer{}
	return &project{
		root: root,
		fs:   fa,
		cli:  &CLI{Dir: root},
		out:  out,
		g:    &Global{Context: t.Context(), Stdout: out},
	}
}

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, Options("test")...)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestParse_DefaultsToBuild(t *testing.T) {
	_, kctx := parse(t)
	assert.Equal(t, "build", kctx.Command())

	cli, kctx := parse(t, "--external-sink", "/tmp/maya")
	assert.Equal(t, "build", kctx.Command())
	assert.Equal(t, "/tmp/maya", cli.Build.ExternalSink)

	cli, kctx = parse(t, "-C", "/work", "-v", "clean")
	assert.Equal(t, "clean", kctx.Command())
	assert.Equal(t, "/work", cli.Dir)
	assert.True(t, cli.Verbose)

	for _, args := range [][]string{{"Build"}, {"default"}} {
		_, kctx = parse(t, args...)
		assert.Equal(t, "build", kctx.Command(), args)
	}
	_, kctx = parse(t, "Clean")
	assert.Equal(t, "clean", kctx.Command())

	cli, kctx = parse(t, "watch", "--poll", "30s", "--metrics-addr", ":9105")
	assert.Equal(t, "watch", kctx.Command())
	assert.Equal(t, 30*time.Second, cli.Watch.Poll)
	assert.Equal(t, ":9105", cli.Watch.MetricsAddr)
}

func TestBuildCmd(t *testing.T) {
	p := newProject(t)
	p.fs.WriteFile("Out/stale.txt", []byte("old"))

	require.NoError(t, (&BuildCmd{}).Run(p.g, p.cli))

	p.fs.AssertFileBytes("Out/Sequencer.py", []byte("A\nB\n"))
	p.fs.AssertDirEntries("Out", "Sequencer.py")
	assert.Contains(t, p.out.String(), "Built "+filepath.Join(p.root, "Out", "Sequencer.py")+" (4 bytes")
	assert.NotContains(t, p.out.String(), "External sink")
}

func TestBuildCmd_ExternalSinkPrecedence(t *testing.T) {
	p := newProject(t)
	envSink := t.TempDir()
	flagSink := t.TempDir()
	t.Setenv(config.EnvExternalSink, envSink)

	require.NoError(t, (&BuildCmd{}).Run(p.g, p.cli))
	helpers.NewFileAssertions(t, envSink).AssertFileBytes("Sequencer.py", []byte("A\nB\n"))

	require.NoError(t, (&BuildCmd{ExternalSink: flagSink}).Run(p.g, p.cli))
	helpers.NewFileAssertions(t, flagSink).AssertFileBytes("Sequencer.py", []byte("A\nB\n"))
	assert.Contains(t, p.out.String(), "Copied to "+filepath.Join(flagSink, "Sequencer.py"))
}

func TestBuildCmd_MissingSinkIsReported(t *testing.T) {
	p := newProject(t)
	sink := filepath.Join(t.TempDir(), "absent")

	require.NoError(t, (&BuildCmd{ExternalSink: sink}).Run(p.g, p.cli))
	assert.Contains(t, p.out.String(), "External sink "+sink+" skipped (not found)")
	_, err := os.Stat(sink)
	assert.True(t, os.IsNotExist(err))
}

func TestBuildCmd_ConfigFile(t *testing.T) {
	p := newProject(t)
	p.fs.WriteFile("src/first.py", []byte("1"))
	p.fs.WriteFile("src/second.py", []byte("2"))
	p.fs.WriteFile(config.DefaultFileName, []byte(`pipeline:
  inputs: [src/second.py, src/first.py]
  output_dir: dist
  artifact: bundle.py
`))

	require.NoError(t, (&BuildCmd{}).Run(p.g, p.cli))
	p.fs.AssertFileBytes("dist/bundle.py", []byte("21"))
	p.fs.AssertPathNotExists("Out")
}

func TestBuildCmd_MissingInputExitCode(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(p.root, "Scripts", "Common.py")))

	err := (&BuildCmd{}).Run(p.g, p.cli)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryRead))
	assert.Equal(t, 12, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	p.fs.AssertPathNotExists("Out/Sequencer.py")
}

func TestBuildCmd_MissingExplicitConfig(t *testing.T) {
	p := newProject(t)
	p.cli.Config = filepath.Join(p.root, "nope.yaml")

	err := (&BuildCmd{}).Run(p.g, p.cli)
	require.Error(t, err)
	assert.Equal(t, 7, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestBuildCmd_MetricsFile(t *testing.T) {
	p := newProject(t)
	metricsFile := filepath.Join(t.TempDir(), "textfile", "seqbuild.prom")

	require.NoError(t, (&BuildCmd{MetricsFile: metricsFile}).Run(p.g, p.cli))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `seqbuild_build_outcomes_total{outcome="success"} 1`)
	assert.Contains(t, string(data), "seqbuild_artifact_bytes 4")
}

func TestCleanCmd(t *testing.T) {
	p := newProject(t)
	p.fs.WriteFile("Out/Sequencer.py", []byte("old"))

	require.NoError(t, (&CleanCmd{}).Run(p.g, p.cli))
	p.fs.AssertPathNotExists("Out")
	p.fs.AssertFileBytes("Scripts/Common.py", []byte("A\n"))

	require.NoError(t, (&CleanCmd{}).Run(p.g, p.cli))
	assert.Equal(t, 2, strings.Count(p.out.String(), "Removed "))
}

func TestTasksCmd(t *testing.T) {
	p := newProject(t)
	require.NoError(t, (&TasksCmd{}).Run(p.g, p.cli))

	lines := strings.Split(strings.TrimSpace(p.out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "clean"))
	assert.Contains(t, lines[2], "clean")
	assert.True(t, strings.HasPrefix(lines[3], "default"))
}

func TestInitCmd(t *testing.T) {
	p := newProject(t)

	require.NoError(t, (&InitCmd{}).Run(p.g, p.cli))
	path := filepath.Join(p.root, config.DefaultFileName)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Sequencer.py", cfg.Pipeline.Artifact)

	err = (&InitCmd{}).Run(p.g, p.cli)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryConfig))

	require.NoError(t, (&InitCmd{Force: true}).Run(p.g, p.cli))
}

func TestHistoryCmd(t *testing.T) {
	p := newProject(t)
	p.cli.HistoryDB = filepath.Join(t.TempDir(), "history.db")

	require.NoError(t, (&BuildCmd{}).Run(p.g, p.cli))
	require.NoError(t, os.Remove(filepath.Join(p.root, "Scripts", "Sequencer.py")))
	require.Error(t, (&BuildCmd{}).Run(p.g, p.cli))

	out := &syncBuffer{}
	g := &Global{Context: t.Context(), Stdout: out}
	require.NoError(t, (&HistoryCmd{JSON: true}).Run(g, p.cli))

	var runs []eventstore.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out.String()), &runs))
	require.Len(t, runs, 2)
	statuses := []string{runs[0].Status, runs[1].Status}
	assert.ElementsMatch(t, []string{eventstore.StatusSucceeded, eventstore.StatusFailed}, statuses)

	table := &syncBuffer{}
	require.NoError(t, (&HistoryCmd{Limit: 1}).Run(&Global{Context: t.Context(), Stdout: table}, p.cli))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
}

func TestHistoryCmd_NotConfigured(t *testing.T) {
	p := newProject(t)
	err := (&HistoryCmd{}).Run(p.g, p.cli)
	require.Error(t, err)
	assert.Equal(t, 2, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestWatchCmd_RebuildsOnChange(t *testing.T) {
	p := newProject(t)
	ctx, cancel := context.WithCancel(t.Context())
	p.g.Context = ctx

	done := make(chan error, 1)
	go func() { done <- (&WatchCmd{Debounce: 50 * time.Millisecond}).Run(p.g, p.cli) }()

	artifact := filepath.Join(p.root, "Out", "Sequencer.py")
	contentIs := func(want string) func() bool {
		return func() bool {
			got, err := os.ReadFile(artifact)
			return err == nil && string(got) == want
		}
	}
	require.Eventually(t, contentIs("A\nB\n"), 5*time.Second, 20*time.Millisecond)

	// The watcher is armed once the startup build has been reported.
	require.Eventually(t, func() bool { return strings.Contains(p.out.String(), "Built ") }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	p.fs.WriteFile("Scripts/Common.py", []byte("C\n"))
	require.Eventually(t, contentIs("C\nB\n"), 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestBuildCmd_RejectsStateInsideOutput(t *testing.T) {
	t.Run("history database", func(t *testing.T) {
		p := newProject(t)
		p.cli.HistoryDB = filepath.Join(p.root, "Out", "history.db")

		err := (&BuildCmd{}).Run(p.g, p.cli)
		require.Error(t, err)
		assert.Equal(t, 2, derrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
		p.fs.AssertPathNotExists("Out")
	})

	t.Run("metrics textfile", func(t *testing.T) {
		p := newProject(t)
		err := (&BuildCmd{MetricsFile: filepath.Join(p.root, "Out", "seqbuild.prom")}).Run(p.g, p.cli)
		require.Error(t, err)
		assert.True(t, derrors.IsCategory(err, derrors.CategoryValidation))
		p.fs.AssertPathNotExists("Out")
	})
}

func TestHistoryCmd_SurvivesClean(t *testing.T) {
	p := newProject(t)
	p.fs.WriteFile(config.DefaultFileName, []byte("history:\n  path: .seqbuild/history.db\n"))

	require.NoError(t, (&BuildCmd{}).Run(p.g, p.cli))
	require.NoError(t, (&CleanCmd{}).Run(p.g, p.cli))
	require.NoError(t, (&BuildCmd{}).Run(p.g, p.cli))

	out := &syncBuffer{}
	require.NoError(t, (&HistoryCmd{JSON: true}).Run(&Global{Context: t.Context(), Stdout: out}, p.cli))
	var runs []eventstore.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out.String()), &runs))
	assert.Len(t, runs, 3)
}
