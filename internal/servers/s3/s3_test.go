package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/minio/minio-go/v7"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/servertest"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

var created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	failAll error
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: map[string]map[string][]byte{}}
}

func (f *fakeStore) put(bucket, key, body string) {
	if f.buckets[bucket] == nil {
		f.buckets[bucket] = map[string][]byte{}
	}
	f.buckets[bucket][key] = []byte(body)
}

func (f *fakeStore) ListBuckets(context.Context) ([]minio.BucketInfo, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	var out []minio.BucketInfo
	for name := range f.buckets {
		out = append(out, minio.BucketInfo{Name: name, CreationDate: created})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	if f.failAll != nil {
		return false, f.failAll
	}
	_, ok := f.buckets[bucket]
	return ok, nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string) error {
	f.buckets[bucket] = map[string][]byte{}
	return nil
}

func (f *fakeStore) RemoveBucket(_ context.Context, bucket string) error {
	if len(f.buckets[bucket]) > 0 {
		return errors.New("BucketNotEmpty")
	}
	delete(f.buckets, bucket)
	return nil
}

func (f *fakeStore) ListObjects(_ context.Context, bucket, prefix string, _ bool) ([]minio.ObjectInfo, error) {
	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, errors.New("NoSuchBucket")
	}
	var out []minio.ObjectInfo
	for key, body := range objs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, minio.ObjectInfo{Key: key, Size: int64(len(body)), LastModified: created})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) StatObject(_ context.Context, bucket, object string) (minio.ObjectInfo, error) {
	body, ok := f.buckets[bucket][object]
	if !ok {
		return minio.ObjectInfo{}, errors.New("NoSuchKey")
	}
	return minio.ObjectInfo{Key: object, Size: int64(len(body))}, nil
}

func (f *fakeStore) RemoveObject(_ context.Context, bucket, object string) error {
	delete(f.buckets[bucket], object)
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, bucket, object, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.buckets[bucket][object] = b
	return nil
}

func (f *fakeStore) FGetObject(_ context.Context, bucket, object, path string) error {
	return os.WriteFile(path, f.buckets[bucket][object], 0o600)
}

func (f *fakeStore) ReadObject(_ context.Context, bucket, object string) ([]byte, error) {
	body, ok := f.buckets[bucket][object]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSuchObject, bucket, object)
	}
	return body, nil
}

func newServer(f *fakeStore) mcpservice.ServerCapabilities {
	return New(Deps{Connect: func(context.Context) (ObjectStore, error) { return f, nil }})
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("decode %s: %v", text, err)
	}
	return v
}

func TestListBucketsAndReadBucket(t *testing.T) {
	f := newFakeStore()
	f.put("photos", "a.jpg", "12345")
	f.put("docs", "readme.md", "hi")
	srv := newServer(f)

	got := decode[[]bucketEntry](t, servertest.OK(t, srv, "list_buckets", nil))
	want := []bucketEntry{
		{Name: "docs", CreationDate: "2024-01-02T03:04:05Z"},
		{Name: "photos", CreationDate: "2024-01-02T03:04:05Z"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("buckets mismatch (-want +got):\n%s", diff)
	}

	objects := decode[[]objectEntry](t, servertest.OK(t, srv, "read_bucket", map[string]any{"bucket_name": "photos"}))
	if diff := cmp.Diff([]objectEntry{{ObjectName: "a.jpg", Size: 5}}, objects); diff != "" {
		t.Fatalf("objects mismatch (-want +got):\n%s", diff)
	}
}

func TestBucketSize(t *testing.T) {
	f := newFakeStore()
	f.put("b", "x", strings.Repeat("a", 1536*1024))
	f.put("b", "y", strings.Repeat("a", 512*1024))
	srv := newServer(f)

	got := decode[bucketSizeReport](t, servertest.OK(t, srv, "bucket_size", map[string]any{"bucket_name": "b"}))
	want := bucketSizeReport{
		BucketName:     "b",
		TotalObjects:   2,
		TotalSizeBytes: 2 * 1024 * 1024,
		TotalSizeMB:    2,
		TotalSizeHuman: "2.1 MB",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestMakeBucket(t *testing.T) {
	f := newFakeStore()
	srv := newServer(f)

	got := decode[status](t, servertest.OK(t, srv, "make_bucket", map[string]any{"bucket_name": "new"}))
	if got.Status != "success" || got.Message != "Bucket 'new' created successfully." {
		t.Fatalf("unexpected status %+v", got)
	}
	f.put("new", "keep", "me")

	conflict := decode[status](t, servertest.Fail(t, srv, "make_bucket", map[string]any{"bucket_name": "new"}))
	if conflict.Status != "error" || conflict.Message != "Bucket 'new' already exists." {
		t.Fatalf("unexpected status %+v", conflict)
	}
	if string(f.buckets["new"]["keep"]) != "me" {
		t.Fatalf("existing bucket was modified")
	}
}

func TestRemoveBucketIsRecursive(t *testing.T) {
	f := newFakeStore()
	f.put("b", "a/1", "x")
	f.put("b", "a/2", "y")
	srv := newServer(f)

	got := decode[status](t, servertest.OK(t, srv, "remove_bucket", map[string]any{"bucket_name": "b"}))
	if got.Message != "Bucket 'b' and all its contents removed successfully." {
		t.Fatalf("unexpected status %+v", got)
	}
	if _, ok := f.buckets["b"]; ok {
		t.Fatalf("bucket still present")
	}

	missing := decode[status](t, servertest.Fail(t, srv, "remove_bucket", map[string]any{"bucket_name": "b"}))
	if missing.Message != "Bucket 'b' does not exist." {
		t.Fatalf("unexpected status %+v", missing)
	}
}

func TestListObjects(t *testing.T) {
	f := newFakeStore()
	f.put("b", "docs/", "")
	f.put("b", "docs/a.txt", "abc")
	f.put("b", "img.png", "p")
	srv := newServer(f)

	root := decode[objectListing](t, servertest.OK(t, srv, "list_objects", map[string]any{"bucket_name": "b"}))
	if root.Prefix != "root" || root.TotalObjects != 3 {
		t.Fatalf("unexpected listing %+v", root)
	}
	if !root.Objects[0].IsDir || root.Objects[1].IsDir {
		t.Fatalf("directory placeholders not flagged: %+v", root.Objects)
	}
	if root.Objects[1].LastModified == nil || *root.Objects[1].LastModified != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected last_modified %+v", root.Objects[1])
	}

	docs := decode[objectListing](t, servertest.OK(t, srv, "list_objects", map[string]any{"bucket_name": "b", "prefix": "docs/"}))
	if docs.Prefix != "docs/" || docs.TotalObjects != 2 {
		t.Fatalf("unexpected listing %+v", docs)
	}
}

func TestObjectKey(t *testing.T) {
	cases := []struct{ prefix, name, want string }{
		{"", "a.txt", "a.txt"},
		{"data/documents", "a.txt", "data/documents/a.txt"},
		{"data/documents/", "a.txt", "data/documents/a.txt"},
		{"/data//", "a.txt", "data/a.txt"},
		{"/", "a.txt", "a.txt"},
	}
	for _, tc := range cases {
		if got := ObjectKey(tc.prefix, tc.name); got != tc.want {
			t.Fatalf("ObjectKey(%q, %q) = %q, want %q", tc.prefix, tc.name, got, tc.want)
		}
	}
}

type uploadStatus struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Details transferDetails `json:"details"`
}

func TestFPutObject(t *testing.T) {
	f := newFakeStore()
	f.buckets["b"] = map[string][]byte{}
	srv := newServer(f)
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("pdfdata"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := decode[uploadStatus](t, servertest.OK(t, srv, "fput_object", map[string]any{"bucket_name": "b", "file_path": path}))
	want := transferDetails{BucketName: "b", ObjectName: "report.pdf", LocalFilePath: path, FileSizeBytes: 7}
	if diff := cmp.Diff(want, got.Details); diff != "" {
		t.Fatalf("details mismatch (-want +got):\n%s", diff)
	}

	got = decode[uploadStatus](t, servertest.OK(t, srv, "fput_object", map[string]any{
		"bucket_name": "b", "file_path": path, "object_name": "q3.pdf", "prefix": "reports/",
	}))
	if got.Details.ObjectName != "reports/q3.pdf" || string(f.buckets["b"]["reports/q3.pdf"]) != "pdfdata" {
		t.Fatalf("unexpected upload %+v", got)
	}

	missing := decode[status](t, servertest.Fail(t, srv, "fput_object", map[string]any{"bucket_name": "b", "file_path": path + ".nope"}))
	if missing.Message != "Local file '"+path+".nope' does not exist." {
		t.Fatalf("unexpected status %+v", missing)
	}
}

type mirrorStatus struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Details mirrorDetails `json:"details"`
}

type progressRecorder struct {
	mu     sync.Mutex
	events [][2]float64
}

func (p *progressRecorder) Report(_ context.Context, progress, total float64) error {
	p.mu.Lock()
	p.events = append(p.events, [2]float64{progress, total})
	p.mu.Unlock()
	return nil
}

func TestFGetObjectPrefixMirror(t *testing.T) {
	f := newFakeStore()
	f.put("b", "data/", "")
	f.put("b", "data/a.txt", "A")
	f.put("b", "data/sub/b.txt", "BB")
	f.put("b", "other.txt", "O")
	srv := newServer(f)
	dest := filepath.Join(t.TempDir(), "out")

	rec := &progressRecorder{}
	ctx := mcpservice.WithProgressReporter(context.Background(), rec)
	res := servertest.CallContext(ctx, t, srv, "fget_object", map[string]any{"bucket_name": "b", "file_path": dest, "prefix": "data/"})
	if res.IsError {
		t.Fatalf("unexpected error %s", servertest.Text(t, res))
	}
	got := decode[mirrorStatus](t, servertest.Text(t, res))
	if got.Message != "Downloaded 2 files from prefix 'data/' in bucket 'b'." {
		t.Fatalf("unexpected message %q", got.Message)
	}
	for rel, want := range map[string]string{"a.txt": "A", "sub/b.txt": "BB"} {
		b, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil || string(b) != want {
			t.Fatalf("%s: got %q, %v", rel, b, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "other.txt")); err == nil {
		t.Fatalf("object outside the prefix was downloaded")
	}
	if diff := cmp.Diff([][2]float64{{1, 2}, {2, 2}}, rec.events); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestFGetObjectSingleAndBucket(t *testing.T) {
	f := newFakeStore()
	f.put("b", "x/y.txt", "hello")
	srv := newServer(f)
	dir := t.TempDir()

	single := filepath.Join(dir, "y.txt")
	got := decode[uploadStatus](t, servertest.OK(t, srv, "fget_object", map[string]any{"bucket_name": "b", "file_path": single, "object_name": "x/y.txt"}))
	if got.Details.FileSizeBytes != 5 || got.Message != "File downloaded successfully from bucket 'b'." {
		t.Fatalf("unexpected status %+v", got)
	}

	missing := decode[status](t, servertest.Fail(t, srv, "fget_object", map[string]any{"bucket_name": "b", "file_path": single, "object_name": "nope"}))
	if missing.Message != "Object 'nope' does not exist in bucket 'b'." {
		t.Fatalf("unexpected status %+v", missing)
	}

	all := decode[mirrorStatus](t, servertest.OK(t, srv, "fget_object", map[string]any{"bucket_name": "b", "file_path": filepath.Join(dir, "all")}))
	if all.Message != "Downloaded 1 files from bucket 'b'." || all.Details.DownloadedFiles[0].LocalPath != filepath.Join(dir, "all", "x", "y.txt") {
		t.Fatalf("unexpected status %+v", all)
	}

	f.buckets["empty"] = map[string][]byte{}
	empty := decode[status](t, servertest.Fail(t, srv, "fget_object", map[string]any{"bucket_name": "empty", "file_path": filepath.Join(dir, "e")}))
	if empty.Message != "No objects found in bucket 'empty'." {
		t.Fatalf("unexpected status %+v", empty)
	}
}

func TestLocalPathRejectsEscapes(t *testing.T) {
	if _, err := localPath("/tmp/out", "../etc/passwd"); err == nil {
		t.Fatalf("expected escape to be rejected")
	}
	if got, err := localPath("/tmp/out", "a/b"); err != nil || got != filepath.Join("/tmp/out", "a", "b") {
		t.Fatalf("localPath = %q, %v", got, err)
	}
}

func TestUpstreamFailure(t *testing.T) {
	f := newFakeStore()
	f.failAll = errors.New("connection refused")
	srv := newServer(f)

	got := decode[status](t, servertest.Fail(t, srv, "list_buckets", nil))
	if got.Message != "Failed to list buckets: connection refused" {
		t.Fatalf("unexpected status %+v", got)
	}
	if res := servertest.Resources(t, srv); len(res) != 0 {
		t.Fatalf("expected degraded empty listing, got %+v", res)
	}
}

type staticMinIO struct {
	cfg config.MinIO
	err error
}

func (s staticMinIO) MinIO() (config.MinIO, error) { return s.cfg, s.err }

func TestConfigError(t *testing.T) {
	srv := New(Deps{Connect: Dial(staticMinIO{err: errors.New("Missing required MinIO configuration: secretKey")})})
	got := servertest.Fail(t, srv, "list_buckets", nil)
	if got != "Configuration error: Missing required MinIO configuration: secretKey" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestDialReusesClient(t *testing.T) {
	src := &staticMinIO{cfg: config.MinIO{ServerURL: "localhost:9000", AccessKey: "a", SecretKey: "s"}}
	connect := Dial(src)
	a, err := connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	b, _ := connect(context.Background())
	if a != b {
		t.Fatalf("expected the client to be reused")
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in       string
		secure   bool
		endpoint string
		wantTLS  bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://minio:9000", true, "minio:9000", true},
	}
	for _, tc := range cases {
		endpoint, tls := splitEndpoint(tc.in, tc.secure)
		if endpoint != tc.endpoint || tls != tc.wantTLS {
			t.Fatalf("splitEndpoint(%q) = %q, %v", tc.in, endpoint, tls)
		}
	}
}

func TestResources(t *testing.T) {
	f := newFakeStore()
	f.put("b", "dir/", "")
	f.put("b", "dir/note.txt", "hello")
	srv := newServer(f)

	res := servertest.Resources(t, srv)
	want := []mcp.Resource{{URI: "minio://b/dir/note.txt", Name: "dir/note.txt", Description: "Object size: 5 bytes"}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("resources mismatch (-want +got):\n%s", diff)
	}

	contents, err := servertest.Read(t, srv, "minio://b/dir/note.txt")
	if err != nil || contents[0].Text != "hello" {
		t.Fatalf("Read = %+v, %v", contents, err)
	}
	f.put("b", "blob.bin", "\xff\xfe")
	if _, err := servertest.Read(t, srv, "minio://b/blob.bin"); err == nil || !strings.Contains(err.Error(), "not valid UTF-8") {
		t.Fatalf("expected a UTF-8 error, got %v", err)
	}
	_, err = servertest.Read(t, srv, "minio://b/missing")
	var nf *mcpservice.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestPrompts(t *testing.T) {
	srv := newServer(newFakeStore())
	got := servertest.PromptText(t, srv, "object_details", map[string]string{"bucket_name": "b", "object_name": "o"})
	if got != "Provide detailed information about the object named 'o' in the MinIO bucket 'b'." {
		t.Fatalf("unexpected prompt %q", got)
	}
	got = servertest.PromptText(t, srv, "bucket_summary", map[string]string{"bucket_name": "b"})
	if got != "Provide a comprehensive summary of the contents in the MinIO bucket named 'b'." {
		t.Fatalf("unexpected prompt %q", got)
	}
}
