package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/ai-session-hub/internal/recordcache"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

const claudeFixture = `{"type":"user","timestamp":"2024-03-05T10:00:00Z","cwd":"/home/u/work/api","message":{"role":"user","content":"add a handler"}}
{"type":"assistant","timestamp":"2024-03-05T10:00:10Z","message":{"role":"assistant","content":[{"type":"text","text":"sure"},{"type":"tool_use","id":"t1"}]}}
{"type":"assistant","timestamp":"2024-03-09T09:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"t2"}]}}
`

const codexFixture = `{"timestamp":"2024-03-06T08:00:00Z","type":"session_meta","payload":{"cwd":"/home/u/play"}}
{"timestamp":"2024-03-06T08:01:00Z","type":"event_msg","payload":{"type":"user_message","message":"hi"}}
{"timestamp":"2024-03-06T08:02:00Z","type":"response_item","payload":{"type":"function_call","name":"shell"}}
{"timestamp":"2024-03-06T08:03:00Z","type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done"}]}}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func claudeProvider(t *testing.T) (*FS, string) {
	t.Helper()
	root := t.TempDir()
	cache, err := recordcache.Open(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	p, err := New(session.SourceRef{Kind: session.KindClaude, Locality: session.Local}, root, cache)
	require.NoError(t, err)
	return p, root
}

func refreshCtx() session.LoadContext {
	return session.LoadContext{Scope: session.AllScope(), Policy: session.Refresh}
}

func TestRefreshParsesAndCaches(t *testing.T) {
	p, root := claudeProvider(t)
	writeFile(t, filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-111111111111.jsonl"), claudeFixture)

	res, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)
	require.False(t, res.CacheHit)
	require.Len(t, res.Summaries, 1)

	rec := res.Summaries[0]
	require.Equal(t, "claude:0b6ab5f2-9df2-4f8a-b4a0-111111111111", rec.ID)
	require.Equal(t, "/home/u/work/api", rec.WorkingDir)
	require.Equal(t, 3, rec.Messages)
	require.Equal(t, 2, rec.ToolCalls)
	require.Equal(t, session.QualityEnriched, rec.Quality)
	require.Equal(t, 5, rec.CreatedAt.Day())
	require.Equal(t, 9, rec.UpdatedAt.Day())
	require.True(t, rec.ActiveDays["2024-03"].Has(5))
	require.True(t, rec.ActiveDays["2024-03"].Has(9))

	// cacheOnly now sees the same record without touching content
	cached, err := p.Load(context.Background(), session.LoadContext{Policy: session.CacheOnly})
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Len(t, cached.Summaries, 1)
	require.Equal(t, rec.ID, cached.Summaries[0].ID)
}

func TestRefreshPrunesVanishedFiles(t *testing.T) {
	p, root := claudeProvider(t)
	path := filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-222222222222.jsonl")
	writeFile(t, path, claudeFixture)

	_, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	res, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)
	require.Empty(t, res.Summaries)
}

func TestRefreshSkipsUnchangedFiles(t *testing.T) {
	p, root := claudeProvider(t)
	path := filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-333333333333.jsonl")
	writeFile(t, path, claudeFixture)

	_, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)

	// poison the parser: a second parse would be detectable
	p.stats = func(string) (parseStats, error) {
		t.Fatal("unchanged file was reparsed")
		return parseStats{}, nil
	}
	res, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)
}

func TestParseFailureDegradesToMetadata(t *testing.T) {
	p, root := claudeProvider(t)
	path := filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-444444444444.jsonl")
	writeFile(t, path, claudeFixture)
	p.stats = func(string) (parseStats, error) {
		return parseStats{}, os.ErrPermission
	}

	res, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)
	require.Equal(t, session.QualityMetadata, res.Summaries[0].Quality)
	require.False(t, res.Summaries[0].UpdatedAt.IsZero())
}

func TestCodexParsing(t *testing.T) {
	root := t.TempDir()
	cache, err := recordcache.Open(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	p, err := New(session.SourceRef{Kind: session.KindCodex, Locality: session.Remote, Host: "devbox"}, root, cache)
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "2024", "03", "06",
		"rollout-2024-03-06T08-00-00-0b6ab5f2-9df2-4f8a-b4a0-555555555555.jsonl"), codexFixture)

	res, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)

	rec := res.Summaries[0]
	require.Equal(t, "codex@devbox:0b6ab5f2-9df2-4f8a-b4a0-555555555555", rec.ID)
	require.Equal(t, "/home/u/play", rec.WorkingDir)
	require.Equal(t, 2, rec.Messages)
	require.Equal(t, 1, rec.ToolCalls)
	require.True(t, rec.ActiveDays["2024-03"].Has(6))
}

func TestMonthScopeAttachesCoverage(t *testing.T) {
	p, root := claudeProvider(t)
	writeFile(t, filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-666666666666.jsonl"), claudeFixture)

	lc := session.LoadContext{
		Scope:  session.MonthScope(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		From:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Policy: session.Refresh,
	}
	res, err := p.Load(context.Background(), lc)
	require.NoError(t, err)
	require.Len(t, res.Summaries, 1)
	require.Contains(t, res.Coverage, "2024-03")
	days := res.Coverage["2024-03"][res.Summaries[0].ID]
	require.True(t, days.Has(5))
	require.True(t, days.Has(9))
}

func TestUpdatedOnFiltersByFileMtime(t *testing.T) {
	p, root := claudeProvider(t)
	path := filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-777777777777.jsonl")
	writeFile(t, path, claudeFixture)

	mtime := time.Date(2024, 3, 5, 15, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	recs, err := p.UpdatedOn(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = p.UpdatedOn(context.Background(), time.Date(2024, 3, 6, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestUnderDirFiltersByWorkingDir(t *testing.T) {
	p, root := claudeProvider(t)
	writeFile(t, filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-888888888888.jsonl"), claudeFixture)

	recs, err := p.UnderDir(context.Background(), "/home/u/work")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = p.UnderDir(context.Background(), "/home/u/other")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestScanReparsesChangedFile(t *testing.T) {
	p, root := claudeProvider(t)
	path := filepath.Join(root, "proj", "0b6ab5f2-9df2-4f8a-b4a0-999999999999.jsonl")
	writeFile(t, path, claudeFixture)

	res, err := p.Load(context.Background(), refreshCtx())
	require.NoError(t, err)
	id := res.Summaries[0].ID

	// append activity on a new day
	extra := `{"type":"user","timestamp":"2024-03-12T10:00:00Z","message":{"role":"user","content":"more"}}` + "\n"
	writeFile(t, path, claudeFixture+extra)

	month := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	days, err := p.Scan(context.Background(), month, []string{id})
	require.NoError(t, err)
	require.True(t, days[id].Has(12))
}
