package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/internal/constants"
	"adequa-rag/internal/indexer"
	"adequa-rag/internal/parser"
	"adequa-rag/internal/storage"
	"adequa-rag/internal/storage/models"
)

type memoryRepo struct {
	mu      sync.Mutex
	records []models.ResumeRecord
	events  []*models.OutboxMessage
	saveErr error
}

func (m *memoryRepo) CountResumes(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) SaveUpload(ctx context.Context, records []models.ResumeRecord, event *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append(m.records, records...)
	m.events = append(m.events, event)
	return nil
}

func (m *memoryRepo) ListResumeRecords(ctx context.Context, userID string) ([]models.ResumeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ResumeRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released int
}

func (l *memoryLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return "", storage.ErrLockHeld
	}
	l.held[key] = "owner"
	return "owner", nil
}

func (l *memoryLocker) ReleaseLock(ctx context.Context, key, value string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != value {
		return false, nil
	}
	delete(l.held, key)
	l.released++
	return true, nil
}

// markerChecker 文本包含 marker 才算简历
type markerChecker string

func (m markerChecker) IsResume(ctx context.Context, text string) bool {
	return strings.Contains(text, string(m))
}

type uploadFixture struct {
	svc   *UploadService
	ix    *indexer.Indexer
	blobs *storage.MemoryBlobStore
	repo  *memoryRepo
}

func newUploadFixture(t *testing.T, opts ...UploadOption) uploadFixture {
	t.Helper()
	ingestor, err := parser.NewIngestor(context.Background())
	require.NoError(t, err)
	chunker, err := parser.NewSmartChunker(parser.WithStrategy(parser.ChunkStrategyFixed), parser.WithChunkWindow(40, 5))
	require.NoError(t, err)
	store, err := indexer.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ix, err := indexer.New(parser.NewHashEmbedder(128), store)
	require.NoError(t, err)

	blobs := storage.NewMemoryBlobStore()
	repo := &memoryRepo{}
	opts = append([]UploadOption{WithResumeRepository(repo)}, opts...)
	svc, err := NewUploadService(ingestor, chunker, ix, blobs, opts...)
	require.NoError(t, err)
	return uploadFixture{svc: svc, ix: ix, blobs: blobs, repo: repo}
}

func textFile(name, content string) UploadFile {
	return UploadFile{Name: name, Content: strings.NewReader(content)}
}

const anaResume = `Ana Lima
EXPERIÊNCIA
Desenvolvedora Go com 6 anos de experiência em Kubernetes e Docker.
FORMAÇÃO
Bacharel em Ciência da Computação`

func TestUploadResumes(t *testing.T) {
	f := newUploadFixture(t, WithResumeChecker(markerChecker("EXPERIÊNCIA")))

	res, err := f.svc.UploadResumes(context.Background(), "u1", []UploadFile{
		textFile("ana_lima.txt", anaResume),
		textFile("cardapio.txt", "Pizza margherita e lasanha"),
		textFile("foto.gif", "GIF89a"),
		textFile("ana_lima.txt", "segunda cópia"),
	})
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	acc := res.Accepted[0]
	assert.Equal(t, "ana_lima.txt", acc.FileName)
	assert.Equal(t, "Ana Lima", acc.CandidateName)
	assert.True(t, strings.HasPrefix(acc.ObjectKey, "uploaded_files/txt/"))
	assert.True(t, strings.HasSuffix(acc.ObjectKey, "_ana_lima.txt"))
	assert.Positive(t, acc.ChunkCount)
	assert.Equal(t, acc.ChunkCount, res.ChunkCount)

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.FileName] = s.Reason
	}
	assert.Equal(t, skipNotResume, reasons["cardapio.txt"])
	assert.Equal(t, skipUnsupported, reasons["foto.gif"])
	assert.Equal(t, skipDuplicate, reasons["ana_lima.txt"])

	ok, err := f.blobs.Exists(context.Background(), acc.ObjectKey)
	require.NoError(t, err)
	assert.True(t, ok)

	// 记录与 outbox 事件同时写入
	require.Len(t, f.repo.records, 1)
	rec := f.repo.records[0]
	assert.Equal(t, res.IndexID, rec.IndexID)
	assert.Len(t, rec.FileMD5, 32)
	assert.Equal(t, int64(len(anaResume)), rec.FileSize)
	var md map[string]any
	require.NoError(t, json.Unmarshal(rec.Metadata, &md))
	assert.Contains(t, md["skills"], "go")
	assert.EqualValues(t, 6, md["experience_years"])

	require.Len(t, f.repo.events, 1)
	assert.Equal(t, constants.IndexBuiltRoutingKey, f.repo.events[0].TargetRoutingKey)
	assert.Equal(t, res.IndexID, f.repo.events[0].AggregateID)

	hits, err := f.ix.Search(context.Background(), res.IndexID, "kubernetes", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "ana_lima.txt", hits[0].Metadata.String("file_name"))
}

func TestUploadResumesValidation(t *testing.T) {
	f := newUploadFixture(t)

	_, err := f.svc.UploadResumes(context.Background(), " ", []UploadFile{textFile("a.txt", "x")})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.UploadResumes(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.UploadResumes(context.Background(), "u1", []UploadFile{textFile("a.exe", "MZ")})
	assert.ErrorIs(t, err, ErrNoValidResumes)
	assert.Empty(t, f.repo.records)
}

func TestUploadResumesLimit(t *testing.T) {
	f := newUploadFixture(t, WithMaxResumesPerUser(2))

	_, err := f.svc.UploadResumes(context.Background(), "u1", []UploadFile{textFile("ana.txt", anaResume)})
	require.NoError(t, err)

	_, err = f.svc.UploadResumes(context.Background(), "u1", []UploadFile{
		textFile("b.txt", anaResume), textFile("c.txt", anaResume),
	})
	assert.ErrorIs(t, err, ErrUploadLimit)

	// 其他用户不受影响
	_, err = f.svc.UploadResumes(context.Background(), "u2", []UploadFile{textFile("b.txt", anaResume)})
	assert.NoError(t, err)
}

func TestUploadResumesFileSizeLimit(t *testing.T) {
	f := newUploadFixture(t, WithMaxFileSize(16))

	res, err := f.svc.UploadResumes(context.Background(), "u1", []UploadFile{
		textFile("big.txt", anaResume), textFile("ok.txt", "Curto e ok"),
	})
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "ok.txt", res.Accepted[0].FileName)
	assert.Equal(t, []SkippedFile{{FileName: "big.txt", Reason: skipTooLarge}}, res.Skipped)
}

func TestUploadResumesLock(t *testing.T) {
	locker := &memoryLocker{}
	f := newUploadFixture(t, WithUploadLocker(locker, time.Minute))

	_, err := locker.AcquireLock(context.Background(), storage.UploadLockKey("busy"), time.Minute)
	require.NoError(t, err)
	_, err = f.svc.UploadResumes(context.Background(), "busy", []UploadFile{textFile("a.txt", anaResume)})
	assert.ErrorIs(t, err, ErrUploadInProgress)

	_, err = f.svc.UploadResumes(context.Background(), "free", []UploadFile{textFile("a.txt", anaResume)})
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	assert.NotContains(t, locker.held, storage.UploadLockKey("free"))
}

func TestUploadResumesPersistFailure(t *testing.T) {
	f := newUploadFixture(t)
	f.repo.saveErr = errors.New("deadlock")

	_, err := f.svc.UploadResumes(context.Background(), "u1", []UploadFile{textFile("a.txt", anaResume)})
	assert.ErrorIs(t, err, ErrPersistFailed)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "persist", pe.Op)
	assert.Contains(t, pe.Detail, "deadlock")

	// 原件和索引都被回滚
	keys, err := f.blobs.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	ids, err := f.ix.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUploadResumesCancelled(t *testing.T) {
	f := newUploadFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.UploadResumes(ctx, "u1", []UploadFile{textFile("a.txt", anaResume)})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListIndexes(t *testing.T) {
	f := newUploadFixture(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.repo.records = []models.ResumeRecord{
		{ID: "1", UserID: "u1", IndexID: "idx_old", FileName: "a.pdf", CreatedAt: base},
		{ID: "2", UserID: "u1", IndexID: "idx_old", FileName: "b.pdf", CreatedAt: base.Add(time.Second)},
		{ID: "3", UserID: "u1", IndexID: "idx_new", FileName: "c.pdf", CreatedAt: base.Add(time.Hour)},
		{ID: "4", UserID: "u2", IndexID: "idx_other", FileName: "d.pdf", CreatedAt: base},
	}

	list, err := f.svc.ListIndexes(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "idx_new", list[0].IndexID)
	assert.Equal(t, IndexSummary{IndexID: "idx_old", ResumeCount: 2, CreatedAt: base, Resumes: []string{"a.pdf", "b.pdf"}}, list[1])

	empty, err := f.svc.ListIndexes(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.ListIndexes(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestListIndexesWithoutRepository(t *testing.T) {
	f := newUploadFixture(t)
	res, err := f.svc.UploadResumes(context.Background(), "u1", []UploadFile{textFile("a.txt", anaResume)})
	require.NoError(t, err)

	noRepo, err := NewUploadService(f.svc.ingestor, f.svc.chunker, f.ix, nil)
	require.NoError(t, err)
	list, err := noRepo.ListIndexes(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.IndexID, list[0].IndexID)
}
