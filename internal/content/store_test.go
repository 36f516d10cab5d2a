package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore/blobstoretest"
)

const seedJSON = `{
  "siteSettings": {"title": "Seed", "navigation": [{"id": "nav-1", "label": "Home", "targetId": "hero"}]},
  "hero": {"title": "Seed hero"},
  "services": {"title": "Diensten", "items": [{"id": "svc-1", "title": "Knippen", "price": "25"}]}
}`

type spyMetrics struct {
	loads     []string
	fallbacks []string
	saves     []string
}

func (m *spyMetrics) IncContentLoad(source string)     { m.loads = append(m.loads, source) }
func (m *spyMetrics) IncContentFallback(reason string) { m.fallbacks = append(m.fallbacks, reason) }
func (m *spyMetrics) IncContentSave(backend, result string) {
	m.saves = append(m.saves, backend+":"+result)
}

func writeSeed(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "content.json")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return p
}

func newFileStore(t *testing.T) (*Store, string, *spyMetrics) {
	t.Helper()
	p := writeSeed(t, seedJSON)
	m := &spyMetrics{}
	s, err := NewStore(Options{SeedPath: p, Metrics: m})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, p, m
}

func newBlobStore(t *testing.T) (*Store, *blobstoretest.Memory, string, *spyMetrics) {
	t.Helper()
	p := writeSeed(t, seedJSON)
	mem := blobstoretest.NewMemory()
	m := &spyMetrics{}
	s, err := NewStore(Options{SeedPath: p, Blobs: mem, Metrics: m})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, mem, p, m
}

func TestNewStore_RequiresSeedPath(t *testing.T) {
	if _, err := NewStore(Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_BackendSelection(t *testing.T) {
	fs, _, _ := newFileStore(t)
	if fs.Backend() != SourceFile || fs.ContentKey() != "" {
		t.Fatalf("file store: backend=%s key=%q", fs.Backend(), fs.ContentKey())
	}
	bs, _, _, _ := newBlobStore(t)
	if bs.Backend() != SourceBlob || bs.ContentKey() != DefaultContentKey {
		t.Fatalf("blob store: backend=%s key=%q", bs.Backend(), bs.ContentKey())
	}
}

// file mode

func TestFileStore_GetContent(t *testing.T) {
	s, _, m := newFileStore(t)
	doc, err := s.GetContent(context.Background())
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if doc.SiteSettings.Title != "Seed" || doc.Services.Items[0].ID != "svc-1" {
		t.Fatalf("doc = %+v", doc)
	}
	if !reflect.DeepEqual(m.loads, []string{"file"}) {
		t.Fatalf("loads = %v", m.loads)
	}
	if s.ContentSource() != "file" || len(s.ContentHash()) != 64 {
		t.Fatalf("source=%q hash=%q", s.ContentSource(), s.ContentHash())
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, p, m := newFileStore(t)
	ctx := context.Background()

	want := validDocument()
	if err := s.SaveContent(ctx, want); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	got, err := s.GetContent(ctx)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}

	raw, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "{\n  \"siteSettings\"") {
		t.Fatalf("seed file not pretty printed:\n%s", raw)
	}
	if !reflect.DeepEqual(m.saves, []string{"file:ok"}) {
		t.Fatalf("saves = %v", m.saves)
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	s, p, _ := newFileStore(t)
	if err := s.SaveContent(context.Background(), validDocument()); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the content file, got %d entries", len(entries))
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	s, err := NewStore(Options{SeedPath: filepath.Join(t.TempDir(), "missing.json")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetContent(context.Background()); err == nil {
		t.Fatal("expected error for missing seed file")
	}
	if err := s.ReadyErr(context.Background()); err == nil {
		t.Fatal("expected not ready")
	}
}

func TestFileStore_SaveInvalidDocument(t *testing.T) {
	s, p, m := newFileStore(t)
	doc := validDocument()
	doc.Announcement.BackgroundColor = "purple"

	err := s.SaveContent(context.Background(), doc)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("err = %v, want ErrInvalidDocument", err)
	}
	raw, _ := os.ReadFile(p)
	if string(raw) != seedJSON {
		t.Fatal("seed file changed after rejected save")
	}
	if !reflect.DeepEqual(m.saves, []string{"file:invalid"}) {
		t.Fatalf("saves = %v", m.saves)
	}
}

func TestFileStore_SaveNormalizes(t *testing.T) {
	s, _, _ := newFileStore(t)
	doc := validDocument()
	doc.FAQ.Items = append(doc.FAQ.Items, FAQItem{Title: "Nieuw"})

	if err := s.SaveContent(context.Background(), doc); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	if doc.FAQ.Items[1].ID == "" {
		t.Fatal("expected new item to get an ID")
	}
}

func TestFileStore_SaveFailureIsSaveFailed(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(Options{SeedPath: filepath.Join(dir, "nope", "content.json")})
	if err != nil {
		t.Fatal(err)
	}
	err = s.SaveContent(context.Background(), validDocument())
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}
	var se *SaveError
	if !errors.As(err, &se) || se.Backend != SourceFile {
		t.Fatalf("expected SaveError for file backend, got %v", err)
	}
}

// blob mode

func TestBlobStore_RoundTrip(t *testing.T) {
	s, mem, p, m := newBlobStore(t)
	ctx := context.Background()

	want := validDocument()
	if err := s.SaveContent(ctx, want); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	got, err := s.GetContent(ctx)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
	if s.ContentSource() != "blob" {
		t.Fatalf("ContentSource = %q", s.ContentSource())
	}

	// seed untouched in blob mode
	raw, _ := os.ReadFile(p)
	if string(raw) != seedJSON {
		t.Fatal("seed file written in blob mode")
	}
	if _, ok := mem.Data(DefaultContentKey); !ok {
		t.Fatal("expected canonical object")
	}
	if !reflect.DeepEqual(m.loads, []string{"blob"}) {
		t.Fatalf("loads = %v", m.loads)
	}
}

func TestBlobStore_AbsentFallsBackToSeed(t *testing.T) {
	s, mem, _, m := newBlobStore(t)
	doc, err := s.GetContent(context.Background())
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if doc.SiteSettings.Title != "Seed" {
		t.Fatalf("Title = %q, want seed", doc.SiteSettings.Title)
	}
	if !reflect.DeepEqual(m.fallbacks, []string{"absent"}) || !reflect.DeepEqual(m.loads, []string{"seed"}) {
		t.Fatalf("fallbacks=%v loads=%v", m.fallbacks, m.loads)
	}
	if len(mem.Keys()) != 0 {
		t.Fatal("read path must not write")
	}
}

func TestBlobStore_PrefixMatchIsNotExact(t *testing.T) {
	s, mem, _, m := newBlobStore(t)
	mem.Seed("content.json-old", []byte(`{"hero":{"title":"stale"}}`), "application/json")

	doc, err := s.GetContent(context.Background())
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if doc.SiteSettings.Title != "Seed" {
		t.Fatalf("expected seed, got %+v", doc.SiteSettings)
	}
	if !reflect.DeepEqual(m.fallbacks, []string{"absent"}) {
		t.Fatalf("fallbacks = %v", m.fallbacks)
	}
}

func TestBlobStore_FallbackReasons(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(mem *blobstoretest.Memory)
		reason string
	}{
		{"list error", func(mem *blobstoretest.Memory) { mem.FailList = blobstoretest.ErrInjected }, "list_error"},
		{"get error", func(mem *blobstoretest.Memory) {
			mem.Seed(DefaultContentKey, []byte(`{}`), "application/json")
			mem.FailGet = blobstoretest.ErrInjected
		}, "get_error"},
		{"decode error", func(mem *blobstoretest.Memory) {
			mem.Seed(DefaultContentKey, []byte(`{not json`), "application/json")
		}, "decode_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem, _, m := newBlobStore(t)
			tt.setup(mem)
			doc, err := s.GetContent(context.Background())
			if err != nil {
				t.Fatalf("GetContent: %v", err)
			}
			if doc.SiteSettings.Title != "Seed" {
				t.Fatalf("expected seed document, got %+v", doc.SiteSettings)
			}
			if !reflect.DeepEqual(m.fallbacks, []string{tt.reason}) {
				t.Fatalf("fallbacks = %v, want [%s]", m.fallbacks, tt.reason)
			}
		})
	}
}

func TestBlobStore_SaveRemovesStaleMatches(t *testing.T) {
	s, mem, _, _ := newBlobStore(t)
	mem.Seed(DefaultContentKey, []byte(`{}`), "application/json")
	mem.Seed("content.json-1699999999", []byte(`{}`), "application/json")
	mem.Seed("images/a.png", []byte("png"), "image/png")

	if err := s.SaveContent(context.Background(), validDocument()); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	if got := mem.Keys(); !reflect.DeepEqual(got, []string{DefaultContentKey, "images/a.png"}) {
		t.Fatalf("keys = %v", got)
	}
	want := []string{"list:content.json", "delete:content.json-1699999999", "put:content.json"}
	if !reflect.DeepEqual(mem.Calls, want) {
		t.Fatalf("calls = %v, want %v", mem.Calls, want)
	}
}

func TestBlobStore_SaveListFailure(t *testing.T) {
	s, mem, _, m := newBlobStore(t)
	mem.FailList = blobstoretest.ErrInjected
	err := s.SaveContent(context.Background(), validDocument())
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}
	if !errors.Is(err, blobstoretest.ErrInjected) {
		t.Fatal("cause should be preserved")
	}
	if !reflect.DeepEqual(m.saves, []string{"blob:error"}) {
		t.Fatalf("saves = %v", m.saves)
	}
}

func TestBlobStore_SaveDeleteFailure(t *testing.T) {
	s, mem, _, _ := newBlobStore(t)
	mem.Seed("content.json.bak", []byte(`{}`), "application/json")
	mem.FailDelete = blobstoretest.ErrInjected
	if err := s.SaveContent(context.Background(), validDocument()); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}
	if _, ok := mem.Data(DefaultContentKey); ok {
		t.Fatal("nothing should be written after a failed delete")
	}
}

func TestBlobStore_FailedInsertFallsBackToPreviousSeed(t *testing.T) {
	s, mem, p, _ := newBlobStore(t)
	ctx := context.Background()
	mem.FailPut = blobstoretest.ErrInjected

	err := s.SaveContent(ctx, validDocument())
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}

	raw, _ := os.ReadFile(p)
	if string(raw) != seedJSON {
		t.Fatal("failed remote save must not write the seed file")
	}

	doc, err := s.GetContent(ctx)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	seed, _ := Decode([]byte(seedJSON))
	if doc.SiteSettings.Title != seed.SiteSettings.Title || doc.Hero.Title != seed.Hero.Title {
		t.Fatalf("expected previous seed, got %+v", doc)
	}
}

func TestBlobStore_FailedInsertKeepsPreviousRemote(t *testing.T) {
	s, mem, _, _ := newBlobStore(t)
	ctx := context.Background()

	first := validDocument()
	if err := s.SaveContent(ctx, first); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}

	mem.FailPut = blobstoretest.ErrInjected
	second := validDocument()
	second.Hero.Title = "changed"
	if err := s.SaveContent(ctx, second); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}

	got, err := s.GetContent(ctx)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Fatal("previous document should survive a failed save")
	}
}

func TestStore_MetaStampsLoadTime(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewStore(Options{SeedPath: writeSeed(t, seedJSON), Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Meta(); ok {
		t.Fatal("expected no meta before first load")
	}
	if _, err := s.GetContent(context.Background()); err != nil {
		t.Fatal(err)
	}
	meta, ok := s.Meta()
	if !ok || !meta.LoadedAt.Equal(fixed) || meta.Source != SourceFile || meta.Size != len(seedJSON) {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestStore_ReadyErrDoesNotTouchStorageOrMeta(t *testing.T) {
	s, mem, _, m := newBlobStore(t)
	mem.Seed(DefaultContentKey, []byte(seedJSON), "application/json")

	for range 3 {
		if err := s.ReadyErr(context.Background()); err != nil {
			t.Fatalf("ReadyErr: %v", err)
		}
	}
	if len(mem.Calls) != 0 {
		t.Fatalf("readiness reached blob storage: %v", mem.Calls)
	}
	if _, ok := s.Meta(); ok {
		t.Fatal("readiness must not replace the content metadata")
	}
	if len(m.loads) != 0 || len(m.fallbacks) != 0 {
		t.Fatalf("readiness counted loads %v fallbacks %v", m.loads, m.fallbacks)
	}
}

func TestBlobStore_ReadyErrWithBrokenSeed(t *testing.T) {
	p := writeSeed(t, "{not json")
	mem := blobstoretest.NewMemory()
	m := &spyMetrics{}
	s, err := NewStore(Options{SeedPath: p, Blobs: mem, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.ReadyErr(ctx); err == nil {
		t.Fatal("no remote and a broken seed should not be ready")
	}

	mem.Seed(DefaultContentKey, []byte(seedJSON), "application/json")
	if err := s.ReadyErr(ctx); err != nil {
		t.Fatalf("remote document should make the store ready: %v", err)
	}
	if _, ok := s.Meta(); ok || len(m.fallbacks) != 0 {
		t.Fatalf("readiness changed meta or metrics: fallbacks=%v", m.fallbacks)
	}
}

func TestBlobStore_UnsavedIDsStayStableUntilSaved(t *testing.T) {
	s, mem, _, _ := newBlobStore(t)
	mem.Seed(DefaultContentKey, []byte(`{"faq":{"items":[{"title":"Parkeren?","answer":"Ja"}]}}`), "application/json")
	ctx := context.Background()

	first, err := s.GetContent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.GetContent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := first.FAQ.Items[0].ID
	if id == "" || again.FAQ.Items[0].ID != id {
		t.Fatalf("ID %q then %q", id, again.FAQ.Items[0].ID)
	}

	if err := s.SaveContent(ctx, first); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	raw, _ := mem.Data(DefaultContentKey)
	if !strings.Contains(string(raw), `"id":"`+id+`"`) {
		t.Fatalf("saved document lost the ID the admin saw: %s", raw)
	}
}
