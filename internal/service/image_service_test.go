package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"picmark/gallery/internal/apperr"
	"picmark/gallery/internal/domain"
	"picmark/gallery/internal/naming"
	"picmark/gallery/internal/repository"
	"picmark/gallery/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memImages is an in-memory ImageRepository.
type memImages struct {
	mu        sync.Mutex
	byID      map[primitive.ObjectID]domain.Image
	deleteErr error
	lastList  domain.ImageFilter
}

func newMemImages() *memImages {
	return &memImages{byID: map[primitive.ObjectID]domain.Image{}}
}

func (m *memImages) Create(_ context.Context, img *domain.Image) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Key == img.Key {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
	}
	img.ID = primitive.NewObjectID()
	img.CreatedAt = time.Now()
	img.UpdatedAt = img.CreatedAt
	m.byID[img.ID] = *img
	return img.ID, nil
}

func (m *memImages) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &img, nil
}

func (m *memImages) List(_ context.Context, f domain.ImageFilter) ([]domain.Image, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = f
	var out []domain.Image
	for _, img := range m.byID {
		out = append(out, img)
	}
	return out, int64(len(out)), nil
}

func (m *memImages) DeleteByID(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// objectStore stands in for the remote bucket: uploads land here when the
// credential verifies, and the deleter removes from it.
type objectStore struct {
	mu      sync.Mutex
	objects map[string]int64
	outcome *domain.DeletionOutcome // forced outcome, nil means delete normally
	calls   []string
}

func (o *objectStore) put(key string, size int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.objects == nil {
		o.objects = map[string]int64{}
	}
	o.objects[key] = size
}

func (o *objectStore) has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}

func (o *objectStore) Delete(ctx context.Context, key string) domain.DeletionOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, key)
	if _, ok := ctx.Deadline(); !ok {
		return domain.DeletionOutcome{Kind: domain.OutcomeFailed, Reason: "no deadline"}
	}
	if err := ctx.Err(); err != nil {
		return domain.DeletionOutcome{Kind: domain.OutcomeFailed, Reason: err.Error(), Cause: err}
	}
	if o.outcome != nil {
		return *o.outcome
	}
	delete(o.objects, key)
	return domain.DeletionOutcome{Kind: domain.OutcomeDeleted, Region: "z2"}
}

var fixedNow = time.Date(2025, 3, 7, 14, 5, 9, 42*int(time.Millisecond), time.UTC)

type fixture struct {
	svc    ImageService
	issuer *storage.CredentialIssuer
	images *memImages
	store  *objectStore
}

func newFixture(t *testing.T, s domain.UploadSettings) *fixture {
	t.Helper()
	settings := staticSettings{s: s}
	issuer := storage.NewCredentialIssuer("gallery", "AK", "signing-secret", time.Hour)
	f := &fixture{
		issuer: issuer,
		images: newMemImages(),
		store:  &objectStore{},
	}
	f.svc = NewImageService(
		naming.NewWithClock(func() time.Time { return fixedNow }),
		issuer,
		NewUploadPolicy(settings),
		settings,
		f.store,
		f.images,
		ImageServiceConfig{Domain: "https://cdn.example.com/", DeleteTimeout: time.Second},
		nil,
		nil,
	)
	return f
}

// upload plays the client's part: send bytes straight to the bucket with the credential.
func (f *fixture) upload(t *testing.T, cred *CredentialResponse, size int64) {
	t.Helper()
	if _, err := f.issuer.Verify(cred.Token, cred.Key); err != nil {
		t.Fatalf("store rejected credential: %v", err)
	}
	f.store.put(cred.Key, size)
}

func owner() domain.Actor {
	return domain.Actor{UserID: primitive.NewObjectID(), Role: domain.RoleUser}
}

func TestRequestCredential(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{NamingStrategy: domain.NamingTimestamp})

	resp, err := f.svc.RequestCredential(context.Background(), CredentialRequest{Filename: "cat.jpg"})
	if err != nil {
		t.Fatalf("RequestCredential: %v", err)
	}
	if resp.Key != "20250307/20250307_140509_042.jpg" {
		t.Fatalf("key = %q", resp.Key)
	}
	if resp.Filename != "20250307_140509_042.jpg" {
		t.Fatalf("filename = %q", resp.Filename)
	}
	if resp.Domain != "https://cdn.example.com" {
		t.Fatalf("domain = %q", resp.Domain)
	}
	policy, err := f.issuer.Verify(resp.Token, resp.Key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if policy.Scope != "gallery:"+resp.Key {
		t.Fatalf("scope = %q", policy.Scope)
	}
}

func TestRequestCredentialAppliesConversion(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{NamingStrategy: domain.NamingOriginal})

	resp, err := f.svc.RequestCredential(context.Background(), CredentialRequest{Filename: "cat.png", Format: "webp"})
	if err != nil {
		t.Fatalf("RequestCredential: %v", err)
	}
	if resp.Filename != "cat.webp" {
		t.Fatalf("filename = %q", resp.Filename)
	}
	if resp.Key != "20250307/1741356309042_cat.webp" {
		t.Fatalf("key = %q", resp.Key)
	}
}

func TestRequestCredentialNeedsFilename(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	_, err := f.svc.RequestCredential(context.Background(), CredentialRequest{Filename: "  "})
	if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequestCredentialMisconfiguredIssuer(t *testing.T) {
	settings := staticSettings{}
	svc := NewImageService(naming.New(), storage.NewCredentialIssuer("gallery", "AK", "", 0),
		NewUploadPolicy(settings), settings, &objectStore{}, newMemImages(), ImageServiceConfig{}, nil, nil)

	_, err := svc.RequestCredential(context.Background(), CredentialRequest{Filename: "a.png"})
	if !apperr.IsCode(err, apperr.CodeConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestOversizedUploadIsRejectedAfterTransfer(t *testing.T) {
	const mb = 1024 * 1024
	f := newFixture(t, domain.UploadSettings{MaxSizeMB: 10, NamingStrategy: domain.NamingTimestamp})
	ctx := context.Background()
	actor := owner()

	cred, err := f.svc.RequestCredential(ctx, CredentialRequest{Filename: "cat.jpg"})
	if err != nil {
		t.Fatalf("RequestCredential: %v", err)
	}
	f.upload(t, cred, 11*mb)

	_, err = f.svc.FinalizeUpload(ctx, actor, FinalizeRequest{Key: cred.Key, FileSize: 11 * mb, Format: "jpeg"})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !f.store.has(cred.Key) {
		t.Fatal("rejected upload should stay in the bucket")
	}
	if len(f.images.byID) != 0 {
		t.Fatal("rejected upload must not be persisted")
	}
}

func TestFinalizeUpload(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{AllowedMimeTypes: []string{"image/jpeg"}})
	actor := owner()

	img, err := f.svc.FinalizeUpload(context.Background(), actor, FinalizeRequest{
		Key:      "20250307/20250307_140509_042.jpg",
		FileSize: 2048,
		Format:   "JPEG",
		Width:    640,
		Height:   480,
	})
	if err != nil {
		t.Fatalf("FinalizeUpload: %v", err)
	}
	if img.OwnerID != actor.UserID || !img.IsPublic || img.Format != "jpeg" {
		t.Fatalf("img = %+v", img)
	}
	if img.URL != "https://cdn.example.com/20250307/20250307_140509_042.jpg" {
		t.Fatalf("url = %q", img.URL)
	}
	if img.Title != "20250307_140509_042.jpg" {
		t.Fatalf("title = %q", img.Title)
	}

	_, err = f.svc.FinalizeUpload(context.Background(), actor, FinalizeRequest{Key: img.Key, FileSize: 1, Format: "jpeg"})
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("second finalize err = %v, want conflict", err)
	}
}

func TestFinalizeUploadRejections(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{AllowedMimeTypes: []string{"image/png"}})
	ctx := context.Background()

	if _, err := f.svc.FinalizeUpload(ctx, domain.Actor{}, FinalizeRequest{Key: "a.png"}); !apperr.IsCode(err, apperr.CodeUnauthorized) {
		t.Fatalf("anonymous: %v", err)
	}
	for _, key := range []string{"", "../a.png", "a.png", "avatars/a.png", "20250307/../../a.png", "20250307/sub/a.png"} {
		_, err := f.svc.FinalizeUpload(ctx, owner(), FinalizeRequest{Key: key, FileSize: 1, Format: "png"})
		if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
			t.Fatalf("key %q: %v", key, err)
		}
	}
	if len(f.images.byID) != 0 {
		t.Fatal("malformed keys must not be persisted")
	}
	_, err := f.svc.FinalizeUpload(ctx, owner(), FinalizeRequest{Key: "20250307/a.gif", FileSize: 1, Format: "gif"})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("type: %v", err)
	}
	if msg := apperr.Message(err, ""); msg != "file type not allowed; allowed types: image/png" {
		t.Fatalf("message = %q", msg)
	}
}

func seed(t *testing.T, f *fixture, img domain.Image) domain.Image {
	t.Helper()
	if _, err := f.images.Create(context.Background(), &img); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.store.put(img.Key, img.FileSize)
	return img
}

func TestGetImageVisibility(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	ctx := context.Background()
	actor := owner()
	private := seed(t, f, domain.Image{Key: "p.png", OwnerID: actor.UserID})
	public := seed(t, f, domain.Image{Key: "q.png", OwnerID: actor.UserID, IsPublic: true})

	if _, err := f.svc.GetImage(ctx, owner(), private.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("stranger on private: %v", err)
	}
	if _, err := f.svc.GetImage(ctx, actor, private.ID); err != nil {
		t.Fatalf("owner on private: %v", err)
	}
	if _, err := f.svc.GetImage(ctx, domain.Actor{Role: domain.RoleAdmin, UserID: primitive.NewObjectID()}, private.ID); err != nil {
		t.Fatalf("admin on private: %v", err)
	}
	if _, err := f.svc.GetImage(ctx, domain.Actor{}, public.ID); err != nil {
		t.Fatalf("anonymous on public: %v", err)
	}
	if _, err := f.svc.GetImage(ctx, actor, primitive.NewObjectID()); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestListImagesScopesByRole(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	ctx := context.Background()
	actor := owner()

	page, err := f.svc.ListImages(ctx, actor, ListRequest{Page: 3, Limit: 500})
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if page.Limit != maxPageSize || f.images.lastList.Skip != 2*maxPageSize {
		t.Fatalf("paging = %+v, filter = %+v", page, f.images.lastList)
	}
	if v := f.images.lastList.VisibleTo; v == nil || *v != actor.UserID {
		t.Fatalf("user listing not scoped: %+v", f.images.lastList)
	}

	if _, err := f.svc.ListImages(ctx, domain.Actor{Role: domain.RoleAdmin}, ListRequest{}); err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if f.images.lastList.VisibleTo != nil || f.images.lastList.Limit != defaultPageSize {
		t.Fatalf("admin listing = %+v", f.images.lastList)
	}

	if _, err := f.svc.ListImages(ctx, actor, ListRequest{Mine: true}); err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if o := f.images.lastList.OwnerID; o == nil || *o != actor.UserID {
		t.Fatalf("mine listing = %+v", f.images.lastList)
	}
	if _, err := f.svc.ListImages(ctx, domain.Actor{}, ListRequest{Mine: true}); !apperr.IsCode(err, apperr.CodeUnauthorized) {
		t.Fatalf("anonymous mine: %v", err)
	}
}

func TestDeleteImageComplete(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	actor := owner()
	img := seed(t, f, domain.Image{Key: "20250307/a.png", OwnerID: actor.UserID})

	report, err := f.svc.DeleteImage(context.Background(), actor, img.ID)
	if err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if report.Status != domain.DeletionComplete || !report.MetadataRemoved || report.Remote.Kind != domain.OutcomeDeleted {
		t.Fatalf("report = %+v", report)
	}
	if f.store.has(img.Key) {
		t.Fatal("object still in bucket")
	}
}

func TestDeleteImageOutlivesCancelledRequest(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	actor := owner()
	img := seed(t, f, domain.Image{Key: "20250307/a.png", OwnerID: actor.UserID})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.svc.DeleteImage(ctx, actor, img.ID)
	if err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if report.Status != domain.DeletionComplete || f.store.has(img.Key) {
		t.Fatalf("report = %+v, object present = %v", report, f.store.has(img.Key))
	}
}

func TestDeleteImageAfterRegionFailover(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	actor := owner()
	img := seed(t, f, domain.Image{Key: "a.png", OwnerID: actor.UserID})
	f.store.outcome = &domain.DeletionOutcome{Kind: domain.OutcomeRegionMismatchRetried, Region: "z0", Hint: "bucket lives in z0"}

	report, err := f.svc.DeleteImage(context.Background(), actor, img.ID)
	if err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if report.Status != domain.DeletionComplete || report.Message != "bucket lives in z0" {
		t.Fatalf("report = %+v", report)
	}
}

func TestDeleteImagePartial(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	actor := owner()
	img := seed(t, f, domain.Image{Key: "a.png", OwnerID: actor.UserID})
	cause := errors.New("exhausted all regions")
	f.store.outcome = &domain.DeletionOutcome{Kind: domain.OutcomeFailed, Reason: cause.Error(), Cause: cause}

	report, err := f.svc.DeleteImage(context.Background(), actor, img.ID)
	if !apperr.IsCode(err, apperr.CodePartialFailure) {
		t.Fatalf("err = %v, want partial failure", err)
	}
	if report == nil || report.Status != domain.DeletionPartial || !report.MetadataRemoved {
		t.Fatalf("report = %+v", report)
	}
	if _, err := f.images.GetByID(context.Background(), img.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatal("metadata should be gone")
	}
	if !errors.Is(err, cause) {
		t.Fatal("partial failure should wrap the remote cause")
	}
}

func TestDeleteImageMetadataFailureSkipsRemote(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	actor := owner()
	img := seed(t, f, domain.Image{Key: "a.png", OwnerID: actor.UserID})
	f.images.deleteErr = errors.New("write concern timeout")

	report, err := f.svc.DeleteImage(context.Background(), actor, img.ID)
	if report != nil || !apperr.IsCode(err, apperr.CodeInternal) {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
	if len(f.store.calls) != 0 || !f.store.has(img.Key) {
		t.Fatal("remote delete must not run when metadata delete fails")
	}
}

func TestDeleteImagePermissions(t *testing.T) {
	f := newFixture(t, domain.UploadSettings{})
	img := seed(t, f, domain.Image{Key: "a.png", OwnerID: primitive.NewObjectID()})

	if _, err := f.svc.DeleteImage(context.Background(), owner(), img.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("stranger: %v", err)
	}
	admin := domain.Actor{UserID: primitive.NewObjectID(), Role: domain.RoleAdmin}
	if _, err := f.svc.DeleteImage(context.Background(), admin, img.ID); err != nil {
		t.Fatalf("admin: %v", err)
	}
}
