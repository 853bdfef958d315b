package extractor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-quote-harvester/internal/document"
	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptyPage = "<body> <main></main> </body>"

const expectedContent = `<span class="decoration" style="font-weight: bold;color: RGB(242,85,106);">MickBim:</span> rha merde, demain je me lève<br>
<span class="decoration" style="font-weight: bold;color: RGB(85,242,127);">unreal-:</span> MickBim: le fais pas pour nous 😛<br>
<span class="decoration" style="font-weight: bold;color: RGB(242,85,106);">MickBim:</span> je le fais pour me nourrir.<br>
<span class="decoration" style="font-weight: bold;color: RGB(148,85,242);">barBe:</span> pas besoin de se nourrir<br>
<span class="decoration" style="font-weight: bold;color: RGB(148,85,242);">barBe:</span> suffit de tuer des monstres et de fouiller leurs corps`

var expectedLines = []domain.QuoteLine{
	{Author: "MickBim", Color: "RGB(242,85,106)", Message: "rha merde, demain je me lève", Order: 0},
	{Author: "unreal-", Color: "RGB(85,242,127)", Message: "MickBim: le fais pas pour nous 😛", Order: 1},
	{Author: "MickBim", Color: "RGB(242,85,106)", Message: "je le fais pour me nourrir.", Order: 2},
	{Author: "barBe", Color: "RGB(148,85,242)", Message: "pas besoin de se nourrir", Order: 3},
	{Author: "barBe", Color: "RGB(148,85,242)", Message: "suffit de tuer des monstres et de fouiller leurs corps", Order: 4},
}

var fixedNow = time.Date(2026, time.October, 19, 8, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func loadFixture(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "quote_1.html"))
	require.NoError(t, err)
	return string(raw)
}

func newEngine(t *testing.T, html string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	e, err := FromHTML(html, opts...)
	require.NoError(t, err)
	return e
}

func TestParseMetadataFromQuotePage(t *testing.T) {
	e := newEngine(t, loadFixture(t))

	got := e.ParseMetadata()

	assert.Equal(t, domain.Quote{
		Title:      "🎲 La vie est un jeu de rôle",
		Author:     "Chat-nonyme",
		URL:        "",
		RawContent: collapseSpaces(expectedContent),
		PostedAt:   "2005-03-06T23:00:07.000Z",
		ScrapedAt:  "2026-10-19T08:30:00.000Z",
		Type:       domain.QuoteTypeText,
	}, got)
}

func TestParseLinesFromQuotePage(t *testing.T) {
	e := newEngine(t, loadFixture(t))

	lines := e.ParseLines()

	assert.Equal(t, expectedLines, lines)
}

func TestParseLinesBeforeMetadata(t *testing.T) {
	e := newEngine(t, loadFixture(t))

	lines := e.ParseLines()
	q := e.ParseMetadata()

	assert.Len(t, lines, len(expectedLines))
	assert.Equal(t, domain.QuoteTypeText, q.Type)
}

func TestDegenerateDocument(t *testing.T) {
	rec := &Recorder{}
	e := newEngine(t, emptyPage, WithReporter(rec))

	q := e.ParseMetadata()
	assert.Equal(t, "", q.Title)
	assert.Equal(t, "", q.Author)
	assert.Equal(t, "", q.URL)
	assert.Equal(t, "", q.RawContent)
	assert.Equal(t, "", q.PostedAt)
	assert.Equal(t, domain.QuoteTypeImage, q.Type)

	lines := e.ParseLines()
	require.NotNil(t, lines)
	assert.Empty(t, lines)

	kinds := map[string]Kind{}
	for _, d := range rec.Diagnostics() {
		kinds[d.Field] = d.Kind
	}
	assert.Equal(t, map[string]Kind{
		"title":       KindMissingElement,
		"author":      KindMissingElement,
		"posted_at":   KindMissingElement,
		"raw_content": KindNoContentContainer,
		"lines":       KindNoContentContainer,
	}, kinds)
}

func TestMissingFieldsAreIndependent(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		check func(t *testing.T, q domain.Quote)
	}{
		{
			name: "no heading",
			html: `<main><div class="wp-block-post-author-name"><a>Zed</a></div>
<div class="entry-content"><p><span>a:</span> b</p></div></main>`,
			check: func(t *testing.T, q domain.Quote) {
				assert.Equal(t, "", q.Title)
				assert.Equal(t, "Zed", q.Author)
				assert.Equal(t, domain.QuoteTypeText, q.Type)
			},
		},
		{
			name: "no author link",
			html: `<main><h1>Title</h1><div class="wp-block-post-author-name">Zed</div></main>`,
			check: func(t *testing.T, q domain.Quote) {
				assert.Equal(t, "Title", q.Title)
				assert.Equal(t, "", q.Author)
				assert.Equal(t, domain.QuoteTypeImage, q.Type)
			},
		},
		{
			name: "time without datetime attribute",
			html: `<main><h1>Title</h1><time>hier</time></main>`,
			check: func(t *testing.T, q domain.Quote) {
				assert.Equal(t, "", q.PostedAt)
			},
		},
		{
			name: "image quote",
			html: `<main><h1>Title</h1><div class="entry-content"><figure><img src="/q.png"></figure></div></main>`,
			check: func(t *testing.T, q domain.Quote) {
				assert.Equal(t, "", q.RawContent)
				assert.Equal(t, domain.QuoteTypeImage, q.Type)
			},
		},
		{
			name: "whitespace-only container counts as image",
			html: `<main><div class="entry-content"><p>   </p></div></main>`,
			check: func(t *testing.T, q domain.Quote) {
				assert.Equal(t, "", q.RawContent)
				assert.Equal(t, domain.QuoteTypeImage, q.Type)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, newEngine(t, tc.html).ParseMetadata())
		})
	}
}

func TestTypeFollowsRawContent(t *testing.T) {
	pages := []string{emptyPage, loadFixture(t), `<main><div class="entry-content"><p>plain text</p></div></main>`}
	for _, page := range pages {
		q := newEngine(t, page).ParseMetadata()
		if q.RawContent != "" {
			assert.Equal(t, domain.QuoteTypeText, q.Type)
		} else {
			assert.Equal(t, domain.QuoteTypeImage, q.Type)
		}
		assert.NotEqual(t, domain.QuoteTypeBlog, q.Type)
	}
}

func TestPostDateParsing(t *testing.T) {
	tests := []struct {
		attr string
		want string
		kind Kind
	}{
		{attr: "2005-03-07T00:00:07+01:00", want: "2005-03-06T23:00:07.000Z"},
		{attr: "2019-11-02T10:15:30.250Z", want: "2019-11-02T10:15:30.250Z"},
		{attr: "2019-11-02T10:15:30", want: "2019-11-02T10:15:30.000Z"},
		{attr: "2019-11-02", want: "2019-11-02T00:00:00.000Z"},
		{attr: "le 2 novembre", want: "", kind: KindUnparsableDate},
		{attr: "  ", want: "", kind: KindMissingElement},
	}

	for _, tc := range tests {
		t.Run(tc.attr, func(t *testing.T) {
			rec := &Recorder{}
			html := `<main><time datetime="` + tc.attr + `">x</time></main>`
			q := newEngine(t, html, WithReporter(rec)).ParseMetadata()

			assert.Equal(t, tc.want, q.PostedAt)

			var dateDiag *Diagnostic
			for _, d := range rec.Diagnostics() {
				if d.Field == "posted_at" {
					dateDiag = &d
				}
			}
			if tc.kind == "" {
				assert.Nil(t, dateDiag)
				return
			}
			require.NotNil(t, dateDiag)
			assert.Equal(t, tc.kind, dateDiag.Kind)
		})
	}
}

func TestParseMetadataIsIdempotent(t *testing.T) {
	ticks := []time.Time{fixedNow, fixedNow.Add(1500 * time.Millisecond)}
	calls := 0
	clock := func() time.Time {
		now := ticks[calls%len(ticks)]
		calls++
		return now
	}

	e := newEngine(t, loadFixture(t), WithClock(clock))
	first := e.ParseMetadata()
	second := e.ParseMetadata()

	assert.Equal(t, "2026-10-19T08:30:00.000Z", first.ScrapedAt)
	assert.Equal(t, "2026-10-19T08:30:01.500Z", second.ScrapedAt)

	second.ScrapedAt = first.ScrapedAt
	assert.Equal(t, first, second)
	assert.Equal(t, e.ParseLines(), e.ParseLines())
}

func TestLineOrderIsContiguous(t *testing.T) {
	html := `<main><div class="entry-content"><p>
intro text
<span>A:</span> one<br>
<em>aside</em>
<span>B:</span> two<br>
stray
<span>C:</span><br>
<span>D:</span> four
</p></div></main>`

	lines := newEngine(t, html).ParseLines()

	require.Len(t, lines, 4)
	for i, l := range lines {
		assert.Equal(t, i, l.Order)
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, []string{lines[0].Author, lines[1].Author, lines[2].Author, lines[3].Author})
	assert.Equal(t, "one", lines[0].Message)
	assert.Equal(t, "two", lines[1].Message)
	assert.Equal(t, "", lines[2].Message, "a line-break right after the span leaves the message empty")
	assert.Equal(t, "four", lines[3].Message)
}

func TestAdjacentSpansLeaveFirstMessageEmpty(t *testing.T) {
	html := `<main><div class="entry-content"><p><span>A:</span><span>B:</span> answer</p></div></main>`

	lines := newEngine(t, html).ParseLines()

	require.Len(t, lines, 2)
	assert.Equal(t, domain.QuoteLine{Author: "A", Message: "", Order: 0}, lines[0])
	assert.Equal(t, domain.QuoteLine{Author: "B", Message: "answer", Order: 1}, lines[1])
}

func TestSpeakerColonHandling(t *testing.T) {
	html := `<main><div class="entry-content"><p><span>MickBim:</span> rha merde, demain je me lève<br>` +
		`<span> nocolon </span> x<br><span>double::</span> y<br><span><b>Bold</b>:</span> z</p></div></main>`

	lines := newEngine(t, html).ParseLines()

	require.Len(t, lines, 4)
	assert.Equal(t, "MickBim", lines[0].Author)
	assert.Equal(t, "rha merde, demain je me lève", lines[0].Message)
	assert.Equal(t, "nocolon", lines[1].Author)
	assert.Equal(t, "double:", lines[2].Author)
	assert.Equal(t, "Bold", lines[3].Author)
}

func TestFirstContainerWins(t *testing.T) {
	html := `<main><div class="entry-content"><p><span>First:</span> 1</p><p><span>Second:</span> 2</p></div></main>`

	e := newEngine(t, html)
	lines := e.ParseLines()
	q := e.ParseMetadata()

	require.Len(t, lines, 1)
	assert.Equal(t, "First", lines[0].Author)
	assert.Equal(t, "<span>First:</span> 1", q.RawContent)
}

// fakeDocument serves hand-built elements keyed by selector.
type fakeDocument map[string]*document.Element

func (f fakeDocument) Find(selector string) (*document.Element, bool) {
	el, ok := f[selector]
	return el, ok
}

func TestEngineAcceptsAnyDocumentBackend(t *testing.T) {
	doc := fakeDocument{
		SelectorTitle:    document.NewElement("h1", nil, document.Text(" Hand built ")),
		SelectorAuthor:   document.NewElement("a", nil, document.Text("Anon")),
		SelectorPostDate: document.NewElement("time", []document.Attribute{{Name: "datetime", Value: "2020-01-02T03:04:05Z"}}),
		SelectorContent: document.NewElement("p", nil,
			document.NewElement("span", []document.Attribute{{Name: "style", Value: "color:#fff"}}, document.Text("Neo:")),
			document.Text("  wake up  "),
			document.NewElement("br", nil),
		),
	}

	e := New(doc, WithClock(fixedClock))

	q := e.ParseMetadata()
	assert.Equal(t, "Hand built", q.Title)
	assert.Equal(t, "Anon", q.Author)
	assert.Equal(t, "2020-01-02T03:04:05.000Z", q.PostedAt)
	assert.Equal(t, `<span style="color:#fff">Neo:</span> wake up <br>`, q.RawContent)
	assert.Equal(t, []domain.QuoteLine{{Author: "Neo", Color: "#fff", Message: "wake up", Order: 0}}, e.ParseLines())
}

func TestRawContentKeepsFrenchPunctuation(t *testing.T) {
	e, err := FromHTML(`<main><h1>Citation</h1><div class="entry-content"><p><span style="color: red">Zoé:</span> j'ai dit "non"<br><span>Max:</span> c'est l'été</p></div></main>`)
	require.NoError(t, err)

	q := e.ParseMetadata()
	assert.Equal(t, `<span style="color: red">Zoé:</span> j'ai dit "non"<br><span>Max:</span> c'est l'été`, q.RawContent)
	assert.Equal(t, []domain.QuoteLine{
		{Author: "Zoé", Color: "red", Message: `j'ai dit "non"`, Order: 0},
		{Author: "Max", Message: "c'est l'été", Order: 1},
	}, e.ParseLines())
}

func TestNilDocumentNeverPanics(t *testing.T) {
	var tree *document.Tree
	for _, doc := range []Document{nil, tree} {
		e := New(doc)
		assert.NotPanics(t, func() {
			q := e.ParseMetadata()
			assert.Equal(t, domain.QuoteTypeImage, q.Type)
			assert.NotEmpty(t, q.ScrapedAt)
			assert.Empty(t, e.ParseLines())
		})
	}
}

type recordingLogger struct {
	msgs []string
	objs []interface{}
}

func (r *recordingLogger) WarnObj(msg, _ string, obj interface{}) {
	r.msgs = append(r.msgs, msg)
	r.objs = append(r.objs, obj)
}

func TestLogReporterForwardsDiagnostics(t *testing.T) {
	log := &recordingLogger{}
	rec := &Recorder{}
	e := newEngine(t, `<main><h1>Only a title</h1></main>`, WithReporter(MultiReporter(LogReporter(log), nil, rec)))

	e.ParseMetadata()

	require.Len(t, log.msgs, 3)
	assert.Equal(t, len(rec.Diagnostics()), len(log.objs))
	d, ok := log.objs[0].(Diagnostic)
	require.True(t, ok)
	assert.Equal(t, "author", d.Field)

	rec.Reset()
	assert.Empty(t, rec.Diagnostics())
	assert.NotNil(t, LogReporter(nil))
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Kind: KindUnparsableDate, Field: "posted_at", Selector: SelectorPostDate, Detail: "soon"}
	assert.Equal(t, "unparsable_date: posted_at (main time): soon", d.String())

	d.Detail = ""
	assert.Equal(t, "unparsable_date: posted_at (main time)", d.String())
}
