package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"uplink/internal/common"
	"uplink/internal/dbx"
	"uplink/internal/logging"
	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
	"uplink/internal/server/repositories/files"
	"uplink/internal/server/repositories/links"
	"uplink/internal/server/repositories/sessions"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *sc.Config {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	return cfg
}

// env wires every service against the in-memory fakes.
type env struct {
	rm       *fakeRepoManager
	store    *fakeStore
	tc       *fakeTranscoder
	notifier *fakeNotifier
	cfg      *sc.Config

	links    *LinkService
	upload   *UploadService
	files    *FileService
	playback *PlaybackService
	webhook  *WebhookService
}

func newEnv() *env {
	e := &env{
		rm:       newFakeRepoManager(),
		store:    newFakeStore(),
		tc:       &fakeTranscoder{},
		notifier: newFakeNotifier(),
		cfg:      testConfig(),
	}
	log := testLogger()
	e.links = NewLinkService(nil, e.rm)
	e.upload = NewUploadService(nil, e.rm, e.links, e.store, e.cfg, log)
	e.files = NewFileService(nil, e.rm, e.links, e.store, e.tc, e.notifier, e.cfg, log)
	e.playback = NewPlaybackService(nil, e.rm, e.files, e.store, e.cfg, log)
	e.webhook = NewWebhookService(e.files, e.cfg, log)
	return e
}

// activeLink seeds a usable upload link.
func (e *env) activeLink(linkID string) *models.UploadLink {
	link := &models.UploadLink{
		LinkID:      linkID,
		ClientName:  "acme",
		ProjectName: "spring",
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	e.rm.linkRepo.links[linkID] = link
	return link
}

// fakeLinkRepo is an in-memory links.Repository.
type fakeLinkRepo struct {
	mu      sync.Mutex
	links   map[string]*models.UploadLink
	touched []string
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: map[string]*models.UploadLink{}}
}

func (r *fakeLinkRepo) Create(ctx context.Context, link *models.UploadLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.LinkID]; ok {
		return common.ErrorAlreadyExists
	}
	cp := *link
	r.links[link.LinkID] = &cp
	return nil
}

func (r *fakeLinkRepo) GetByLinkID(ctx context.Context, linkID string) (*models.UploadLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[linkID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *fakeLinkRepo) List(ctx context.Context) ([]*models.UploadLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UploadLink
	for _, l := range r.links {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeLinkRepo) SetActive(ctx context.Context, linkID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[linkID]
	if !ok {
		return common.ErrorNotFound
	}
	link.IsActive = active
	return nil
}

func (r *fakeLinkRepo) Delete(ctx context.Context, linkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[linkID]; !ok {
		return common.ErrorNotFound
	}
	delete(r.links, linkID)
	return nil
}

func (r *fakeLinkRepo) Touch(ctx context.Context, linkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[linkID]
	if !ok {
		return common.ErrorNotFound
	}
	link.UploadCount++
	now := time.Now()
	link.LastUsedAt = &now
	r.touched = append(r.touched, linkID)
	return nil
}

// fakeFileRepo is an in-memory files.Repository. conflictFirst forces that
// many version conflicts on PatchColumns before accepting, to exercise the
// retry loop.
type fakeFileRepo struct {
	mu            sync.Mutex
	files         map[string]*models.File
	conflictFirst int
	patched       [][]files.Assignment
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: map[string]*models.File{}}
}

func (r *fakeFileRepo) Create(ctx context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *file
	cp.Version = 1
	cp.Frameio.Status = models.TierPending
	cp.R2.Status = models.TierPending
	cp.Wasabi.Status = models.TierPending
	cp.LucidLink.Status = models.TierPending
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.files[file.ID] = &cp
	return nil
}

func (r *fakeFileRepo) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	cp.Proxies = append([]models.Proxy(nil), f.Proxies...)
	return &cp, nil
}

func (r *fakeFileRepo) ListByLink(ctx context.Context, linkID string) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.LinkID == linkID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *fakeFileRepo) PatchColumns(ctx context.Context, id string, version int64, assignments []files.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return common.ErrVersionConflict
	}
	if r.conflictFirst > 0 {
		r.conflictFirst--
		f.Version++ // simulate a concurrent writer
		return common.ErrVersionConflict
	}
	if f.Version != version {
		return common.ErrVersionConflict
	}
	for _, a := range assignments {
		if err := applyAssignment(f, a); err != nil {
			return err
		}
	}
	f.Version++
	f.UpdatedAt = time.Now()
	r.patched = append(r.patched, assignments)
	return nil
}

func applyAssignment(f *models.File, a files.Assignment) error {
	str := func() string {
		switch v := a.Value.(type) {
		case string:
			return v
		case models.TierStatus:
			return string(v)
		case models.FileStatus:
			return string(v)
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	switch a.Column {
	case "status":
		f.Status = models.FileStatus(str())
	case "storage_key":
		f.StorageKey = str()
	case "frameio_status":
		f.Frameio.Status = models.TierStatus(str())
	case "frameio_asset_id":
		f.Frameio.AssetID = str()
	case "frameio_folder_id":
		f.Frameio.FolderID = str()
	case "r2_status":
		f.R2.Status = models.TierStatus(str())
	case "r2_original_key":
		f.R2.OriginalKey = str()
	case "wasabi_status":
		f.Wasabi.Status = models.TierStatus(str())
	case "wasabi_archive_key":
		f.Wasabi.ArchiveKey = str()
	case "lucidlink_status":
		f.LucidLink.Status = models.TierStatus(str())
	case "lucidlink_file_path":
		f.LucidLink.FilePath = str()
	case "transcoding_job_id":
		f.Transcoding.JobID = str()
	case "transcoding_status":
		f.Transcoding.Status = str()
	case "transcoding_error":
		f.Transcoding.Error = str()
	case "transcoding_completed_at":
		if ts, ok := a.Value.(time.Time); ok {
			f.Transcoding.CompletedAt = &ts
		}
	default:
		return fmt.Errorf("column %q is not patchable", a.Column)
	}
	return nil
}

func (r *fakeFileRepo) SetStatus(ctx context.Context, id string, to models.FileStatus, from ...models.FileStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return false, nil
	}
	if len(from) > 0 {
		allowed := false
		for _, s := range from {
			if f.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil
		}
	}
	f.Status = to
	f.Version++
	return true, nil
}

func (r *fakeFileRepo) AddProxy(ctx context.Context, fileID string, proxy models.Proxy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileID]
	if !ok {
		return common.ErrorNotFound
	}
	for i, p := range f.Proxies {
		if p.Quality == proxy.Quality {
			f.Proxies[i] = proxy
			return nil
		}
	}
	f.Proxies = append(f.Proxies, proxy)
	return nil
}

func (r *fakeFileRepo) ClaimTranscode(ctx context.Context, fileID string, qualities []string, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileID]
	if !ok {
		return false, nil
	}
	if f.Transcoding.Status != "" && f.Transcoding.Status != models.TranscodeFailed {
		return false, nil
	}
	f.Transcoding = models.Transcoding{
		Status:    models.TranscodeProcessing,
		Qualities: append([]string(nil), qualities...),
		StartedAt: &startedAt,
	}
	f.Version++
	return true, nil
}

func (r *fakeFileRepo) SetTranscodeJob(ctx context.Context, fileID string, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileID]
	if !ok {
		return common.ErrorNotFound
	}
	f.Transcoding.JobID = jobID
	f.Version++
	return nil
}

func (r *fakeFileRepo) ReleaseTranscode(ctx context.Context, fileID string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileID]
	if !ok {
		return nil
	}
	if f.Transcoding.Status == models.TranscodeProcessing {
		f.Transcoding.Status = models.TranscodeFailed
		f.Transcoding.Error = message
		f.Version++
	}
	return nil
}

// fakeSessionRepo is an in-memory sessions.Repository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.MultipartSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*models.MultipartSession{}}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.MultipartSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.UploadID]; ok {
		return common.ErrorAlreadyExists
	}
	cp := *session
	r.sessions[session.UploadID] = &cp
	return nil
}

func (r *fakeSessionRepo) Get(ctx context.Context, uploadID string) (*models.MultipartSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) SetStatus(ctx context.Context, uploadID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return common.ErrorNotFound
	}
	s.Status = status
	return nil
}

func (r *fakeSessionRepo) SelectStale(ctx context.Context, cutoff time.Time) ([]*models.MultipartSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MultipartSession
	for _, s := range r.sessions {
		if s.Status == models.SessionOpen && s.CreatedAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeRepoManager hands out the in-memory repos regardless of the DBTX.
type fakeRepoManager struct {
	linkRepo    *fakeLinkRepo
	fileRepo    *fakeFileRepo
	sessionRepo *fakeSessionRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		linkRepo:    newFakeLinkRepo(),
		fileRepo:    newFakeFileRepo(),
		sessionRepo: newFakeSessionRepo(),
	}
}

func (m *fakeRepoManager) Links(db dbx.DBTX) links.Repository           { return m.linkRepo }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository           { return m.fileRepo }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository     { return m.sessionRepo }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

// fakeStore is a scriptable ObjectStore.
type fakeStore struct {
	mu sync.Mutex

	putErr      error
	failPutKeys map[string]bool
	partErr     map[int32]error
	createErr   error
	completeErr error
	abortErr    error

	putKeys   []string
	aborted   []string // "key/uploadID"
	completed []string
	lastParts []models.Part
}

func newFakeStore() *fakeStore {
	return &fakeStore{failPutKeys: map[string]bool{}, partErr: map[int32]error{}}
}

func (s *fakeStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	if s.failPutKeys[key] {
		return "", fmt.Errorf("presign refused for %s", key)
	}
	s.putKeys = append(s.putKeys, key)
	return "https://signed/put/" + key, nil
}

func (s *fakeStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	return "https://signed/get/" + key, nil
}

func (s *fakeStore) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	return "upload-" + key, nil
}

func (s *fakeStore) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.partErr[partNumber]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://signed/part/%s/%d", key, partNumber), nil
}

func (s *fakeStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.Part) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return "", s.completeErr
	}
	s.completed = append(s.completed, key+"/"+uploadID)
	s.lastParts = append([]models.Part(nil), parts...)
	return "https://bucket/" + key, nil
}

func (s *fakeStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortErr != nil {
		return s.abortErr
	}
	s.aborted = append(s.aborted, key+"/"+uploadID)
	return nil
}

func (s *fakeStore) abortedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}

// fakeTranscoder records job submissions.
type fakeTranscoder struct {
	mu       sync.Mutex
	err      error
	jobID    string
	started  int
	lastFile string
	lastURL  string
	lastQs   []string
	lastHook string
}

func (t *fakeTranscoder) StartJob(ctx context.Context, fileID, sourceURL string, qualities []string, webhookURL string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.started++
	t.lastFile, t.lastURL, t.lastHook = fileID, sourceURL, webhookURL
	t.lastQs = append([]string(nil), qualities...)
	if t.jobID == "" {
		return "job-1", nil
	}
	return t.jobID, nil
}

// fakeNotifier signals deliveries on a channel so tests can wait for the
// fire-and-forget goroutine.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 16)}
}

func (n *fakeNotifier) UploadCompleted(ctx context.Context, file *models.File) {
	n.mu.Lock()
	n.calls = append(n.calls, file.ID)
	n.mu.Unlock()
	n.done <- struct{}{}
}

func (n *fakeNotifier) wait(timeout time.Duration) bool {
	select {
	case <-n.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
