package library

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"musicbox/core/access"
	"musicbox/core/naming"
	"musicbox/db"
	"musicbox/model"
	"musicbox/repository"
	"musicbox/storage"

	"github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	svc    *Service
	tracks repository.TrackRepository
	fs     afero.Fs
	alice  access.Actor
	bob    access.Actor
}

func newFixture(t *testing.T, fs afero.Fs) *fixture {
	t.Helper()
	gdb, err := db.OpenDialector(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), gormlogger.Silent)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })

	users := repository.NewUserRepository(gdb)
	ctx := context.Background()
	alice := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	bob := &model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"}
	for _, u := range []*model.User{alice, bob} {
		if err := users.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	disk, err := storage.NewDisk(fs, "/music")
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	tracks := repository.NewTrackRepository(gdb)
	return &fixture{
		svc:    NewService(tracks, disk, naming.NewPolicy([]string{"mp3", "wav", "flac", "m4a", "ogg"})),
		tracks: tracks,
		fs:     fs,
		alice:  access.Actor{ID: alice.ID, Username: alice.Username},
		bob:    access.Actor{ID: bob.ID, Username: bob.Username},
	}
}

func (f *fixture) upload(t *testing.T, actor access.Actor, title, filename string, body []byte) *model.Track {
	t.Helper()
	track, err := f.svc.Upload(context.Background(), actor, UploadRequest{
		Title:    title,
		Filename: filename,
		Body:     bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Upload(%s): %v", filename, err)
	}
	return track
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := afero.ReadDir(f.fs, "/music")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte("ID3 fake mp3 payload")

	track := f.upload(t, f.alice, "  Demo  ", "song.mp3", body)

	if track.ID == 0 {
		t.Fatal("expected a track ID")
	}
	if track.Title != "Demo" {
		t.Errorf("expected trimmed title, got %q", track.Title)
	}
	if track.OriginalFilename != "song.mp3" {
		t.Errorf("expected original filename song.mp3, got %q", track.OriginalFilename)
	}
	if !naming.IsStorageName(track.Filename) || !strings.HasSuffix(track.Filename, ".mp3") {
		t.Errorf("unexpected storage name %q", track.Filename)
	}
	if track.FileSize != int64(len(body)) {
		t.Errorf("expected size %d, got %d", len(body), track.FileSize)
	}
	if track.UserID != f.alice.ID {
		t.Errorf("expected owner %d, got %d", f.alice.ID, track.UserID)
	}

	info, err := f.fs.Stat("/music/" + track.Filename)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if info.Size() != track.FileSize {
		t.Errorf("file size %d does not match recorded size %d", info.Size(), track.FileSize)
	}
}

func TestUploadStorageNamesAreUnique(t *testing.T) {
	f := newFixture(t, nil)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		// same title and same original name every time
		track := f.upload(t, f.alice, "Same", "same.mp3", []byte("x"))
		if seen[track.Filename] {
			t.Fatalf("storage name %s reused", track.Filename)
		}
		seen[track.Filename] = true
	}
	if got := len(f.files(t)); got != 20 {
		t.Errorf("expected 20 stored files, got %d", got)
	}
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(f *fixture) access.Actor
		req     UploadRequest
		wantErr error
	}{
		{"anonymous", func(*fixture) access.Actor { return access.Anonymous },
			UploadRequest{Title: "t", Filename: "a.mp3", Body: strings.NewReader("x")}, ErrUnauthorized},
		{"blank title", func(f *fixture) access.Actor { return f.alice },
			UploadRequest{Title: "   ", Filename: "a.mp3", Body: strings.NewReader("x")}, ErrMissingField},
		{"title too long", func(f *fixture) access.Actor { return f.alice },
			UploadRequest{Title: strings.Repeat("t", 101), Filename: "a.mp3", Body: strings.NewReader("x")}, ErrInvalidField},
		{"no file part", func(f *fixture) access.Actor { return f.alice },
			UploadRequest{Title: "t"}, ErrMissingField},
		{"empty filename", func(f *fixture) access.Actor { return f.alice },
			UploadRequest{Title: "t", Filename: "", Body: strings.NewReader("x")}, ErrMissingField},
		{"exe", func(f *fixture) access.Actor { return f.alice },
			UploadRequest{Title: "t", Filename: "payload.exe", Body: strings.NewReader("MZ")}, ErrUnsupportedFormat},
		{"no extension", func(f *fixture) access.Actor { return f.alice },
			UploadRequest{Title: "t", Filename: "README", Body: strings.NewReader("x")}, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.Upload(context.Background(), tt.actor(f), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if StateOf(err) != StateRejected {
				t.Errorf("expected rejected state, got %q", StateOf(err))
			}
			if files := f.files(t); len(files) != 0 {
				t.Errorf("expected no files written, found %v", files)
			}
			tracks, _ := f.tracks.ListTracks(context.Background(), "")
			if len(tracks) != 0 {
				t.Errorf("expected no rows, found %d", len(tracks))
			}
		})
	}
}

// fullFs fails every file creation like a full disk.
type fullFs struct {
	afero.Fs
}

func (fs fullFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.ENOSPC}
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

func TestUploadStorageWriteFailed(t *testing.T) {
	f := newFixture(t, fullFs{afero.NewMemMapFs()})

	_, err := f.svc.Upload(context.Background(), f.alice, UploadRequest{
		Title: "Demo", Filename: "song.mp3", Body: strings.NewReader("data"),
	})
	if !errors.Is(err, ErrStorageWriteFailed) {
		t.Fatalf("expected ErrStorageWriteFailed, got %v", err)
	}
	if StateOf(err) != StateFailed {
		t.Errorf("expected failed state, got %q", StateOf(err))
	}
	tracks, _ := f.tracks.ListTracks(context.Background(), "")
	if len(tracks) != 0 {
		t.Errorf("no row may be committed after a write failure, found %d", len(tracks))
	}
}

// brokenTracks fails every insert, simulating a commit failure.
type brokenTracks struct {
	repository.TrackRepository
}

func (brokenTracks) CreateTrack(context.Context, *model.Track) error {
	return errors.New("connection lost")
}

func TestUploadRecordingFailedLeavesOrphan(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.tracks = brokenTracks{f.tracks}

	_, err := f.svc.Upload(context.Background(), f.alice, UploadRequest{
		Title: "Demo", Filename: "song.ogg", Body: strings.NewReader("oggdata"),
	})
	if !errors.Is(err, ErrRecordingFailed) {
		t.Fatalf("expected ErrRecordingFailed, got %v", err)
	}
	if StateOf(err) != StateFailed {
		t.Errorf("expected failed state, got %q", StateOf(err))
	}

	files := f.files(t)
	if len(files) != 1 || !strings.HasSuffix(files[0], ".ogg") {
		t.Fatalf("expected the written file to remain as an orphan, found %v", files)
	}
	orphans, err := f.svc.Orphans(context.Background())
	if err != nil {
		t.Fatalf("Orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != files[0] {
		t.Errorf("expected orphan %s, got %v", files[0], orphans)
	}
}

func TestDeleteByOwner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	track := f.upload(t, f.alice, "Demo", "song.mp3", []byte("abc"))

	deleted, err := f.svc.Delete(ctx, f.alice, track.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.Filename != track.Filename {
		t.Errorf("unexpected deleted track %+v", deleted)
	}
	if got, _ := f.tracks.GetTrackByID(ctx, track.ID); got != nil {
		t.Error("row should be gone")
	}
	if files := f.files(t); len(files) != 0 {
		t.Errorf("file should be gone, found %v", files)
	}
	if _, err := f.svc.Delete(ctx, f.alice, track.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteDenied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	track := f.upload(t, f.alice, "Demo", "song.mp3", []byte("abc"))

	if _, err := f.svc.Delete(ctx, f.bob, track.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for bob, got %v", err)
	}
	if _, err := f.svc.Delete(ctx, access.Anonymous, track.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous, got %v", err)
	}
	if got, _ := f.tracks.GetTrackByID(ctx, track.ID); got == nil {
		t.Error("denied delete must keep the row")
	}
	if files := f.files(t); len(files) != 1 {
		t.Errorf("denied delete must keep the file, found %v", files)
	}
}

func TestDeleteWithMissingFile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	track := f.upload(t, f.alice, "Demo", "song.mp3", []byte("abc"))
	if err := f.fs.Remove("/music/" + track.Filename); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Delete(ctx, f.alice, track.ID); err != nil {
		t.Fatalf("delete should tolerate an already missing file: %v", err)
	}
}

func TestListSearch(t *testing.T) {
	f := newFixture(t, nil)
	f.upload(t, f.alice, "Morning xyz", "a.mp3", []byte("a"))
	f.upload(t, f.bob, "Evening", "b.mp3", []byte("b"))
	f.upload(t, f.alice, "XYZ live", "c.flac", []byte("c"))

	got, err := f.svc.List(context.Background(), " xYz ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Title != "XYZ live" || got[1].Title != "Morning xyz" {
		titles := make([]string, 0, len(got))
		for _, tr := range got {
			titles = append(titles, tr.Title)
		}
		t.Errorf("unexpected search result %v", titles)
	}

	all, _ := f.svc.List(context.Background(), "")
	if len(all) != 3 {
		t.Errorf("expected 3 tracks, got %d", len(all))
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t, nil)
	track := f.upload(t, f.alice, "Demo", "song.flac", []byte("fLaC data"))

	st, err := f.svc.Stream(track.Filename)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer st.Close()
	if st.ContentType != "audio/flac" {
		t.Errorf("expected audio/flac, got %s", st.ContentType)
	}
	if st.Size != track.FileSize {
		t.Errorf("expected size %d, got %d", track.FileSize, st.Size)
	}
	data, _ := io.ReadAll(st)
	if string(data) != "fLaC data" {
		t.Errorf("unexpected stream body %q", data)
	}

	if _, err := f.svc.Stream("0123456789abcdef0123456789abcdef.mp3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Stream("../test.db"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}

	// files in the upload root that are not tracks are never served
	strays := map[string]string{
		track.Filename + ".part": "half-written",
		"notes.txt":              "not a track",
	}
	for name, body := range strays {
		if err := afero.WriteFile(f.fs, "/music/"+name, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.Stream(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Stream(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}
