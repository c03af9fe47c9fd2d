package service

import (
	"context"
	"errors"
	"testing"

	"picmark/gallery/internal/domain"
)

type staticSettings struct {
	s   domain.UploadSettings
	err error
}

func (s staticSettings) UploadSettings(context.Context) (domain.UploadSettings, error) {
	return s.s, s.err
}

func TestValidate(t *testing.T) {
	const mb = 1024 * 1024
	cases := []struct {
		name     string
		settings domain.UploadSettings
		size     int64
		mime     string
		want     domain.Verdict
	}{
		{"oversize", domain.UploadSettings{MaxSizeMB: 10}, 11 * mb, "image/png", domain.RejectedSize},
		{"exactly at limit", domain.UploadSettings{MaxSizeMB: 10}, 10 * mb, "image/png", domain.Accepted},
		{"default limit", domain.UploadSettings{}, 10*mb + 1, "image/png", domain.RejectedSize},
		{"empty allow-list", domain.UploadSettings{AllowedMimeTypes: []string{}}, 1024, "image/png", domain.Accepted},
		{"listed type", domain.UploadSettings{AllowedMimeTypes: []string{"image/png"}}, 1024, "IMAGE/PNG", domain.Accepted},
		{"unlisted type", domain.UploadSettings{AllowedMimeTypes: []string{"image/jpeg"}}, 1024, "image/png", domain.RejectedType},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := NewUploadPolicy(staticSettings{s: c.settings})
			got, err := p.Validate(context.Background(), c.size, c.mime)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got.Verdict != c.want {
				t.Fatalf("verdict = %s, want %s", got.Verdict, c.want)
			}
		})
	}
}

func TestValidateCarriesLimits(t *testing.T) {
	p := NewUploadPolicy(staticSettings{s: domain.UploadSettings{MaxSizeMB: 2, AllowedMimeTypes: []string{"image/webp"}}})

	got, _ := p.Validate(context.Background(), 3*1024*1024, "image/webp")
	if got.LimitBytes != 2*1024*1024 {
		t.Fatalf("limit = %d", got.LimitBytes)
	}
	got, _ = p.Validate(context.Background(), 1, "image/gif")
	if len(got.Allowed) != 1 || got.Allowed[0] != "image/webp" {
		t.Fatalf("allowed = %v", got.Allowed)
	}
}

func TestValidateSettingsError(t *testing.T) {
	p := NewUploadPolicy(staticSettings{err: errors.New("db down")})
	if _, err := p.Validate(context.Background(), 1, "image/png"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMimeFromFormat(t *testing.T) {
	for in, want := range map[string]string{"PNG": "image/png", " jpeg ": "image/jpeg", "image/WebP": "image/webp"} {
		if got := MimeFromFormat(in); got != want {
			t.Errorf("MimeFromFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
