package settings

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"picmark/gallery/internal/domain"
)

type memRepo struct {
	s     domain.UploadSettings
	reads int
	err   error
}

func (m *memRepo) GetUploadSettings(context.Context) (domain.UploadSettings, error) {
	m.reads++
	return m.s, m.err
}

func (m *memRepo) SaveUploadSettings(_ context.Context, s domain.UploadSettings) error {
	m.s = s
	return m.err
}

type memCache struct {
	data map[string][]byte
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func TestDefaultsWhenUnset(t *testing.T) {
	p := NewProvider(&memRepo{}, nil, 0, nil)
	s, err := p.UploadSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.MaxSizeMB != domain.DefaultMaxSizeMB || s.NamingStrategy != domain.NamingTimestamp || len(s.AllowedMimeTypes) != 0 {
		t.Fatalf("settings = %+v", s)
	}
}

func TestReadsLiveWithoutCache(t *testing.T) {
	repo := &memRepo{s: domain.UploadSettings{MaxSizeMB: 5}}
	p := NewProvider(repo, nil, 0, nil)
	_, _ = p.UploadSettings(context.Background())
	repo.s.MaxSizeMB = 7
	s, _ := p.UploadSettings(context.Background())
	if s.MaxSizeMB != 7 || repo.reads != 2 {
		t.Fatalf("settings = %+v reads = %d", s, repo.reads)
	}
}

func TestCacheHitAndInvalidation(t *testing.T) {
	repo := &memRepo{s: domain.UploadSettings{MaxSizeMB: 5, NamingStrategy: domain.NamingUUID}}
	c := &memCache{data: map[string][]byte{}}
	p := NewProvider(repo, c, time.Minute, nil)

	for i := 0; i < 3; i++ {
		s, err := p.UploadSettings(context.Background())
		if err != nil || s.MaxSizeMB != 5 {
			t.Fatalf("settings = %+v err = %v", s, err)
		}
	}
	if repo.reads != 1 {
		t.Fatalf("repo reads = %d, want 1", repo.reads)
	}

	if _, err := p.Save(context.Background(), domain.UploadSettings{MaxSizeMB: 20}); err != nil {
		t.Fatal(err)
	}
	s, _ := p.UploadSettings(context.Background())
	if s.MaxSizeMB != 20 || repo.reads != 2 {
		t.Fatalf("after save settings = %+v reads = %d", s, repo.reads)
	}
}

func TestRepoErrorPropagates(t *testing.T) {
	p := NewProvider(&memRepo{err: errors.New("db down")}, nil, 0, nil)
	if _, err := p.UploadSettings(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(domain.UploadSettings{
		AllowedMimeTypes: []string{" Image/PNG", "image/png", "", "image/webp"},
		NamingStrategy:   "bogus",
	})
	if !reflect.DeepEqual(got.AllowedMimeTypes, []string{"image/png", "image/webp"}) {
		t.Fatalf("types = %v", got.AllowedMimeTypes)
	}
	if got.NamingStrategy != domain.NamingTimestamp || got.MaxSizeMB != domain.DefaultMaxSizeMB {
		t.Fatalf("normalized = %+v", got)
	}
}
