// Package s3 implements the minIO server: bucket and object management on
// a MinIO (or any S3 compatible) endpoint. Every tool answers an indented
// JSON document.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

const (
	serverName    = "minIO"
	serverVersion = "0.3.0"
)

// Deps are the collaborators of the minIO server.
type Deps struct {
	Connect      Connector
	Log          *slog.Logger
	LoggingLevel *slog.LevelVar
}

type server struct {
	connect Connector
	log     *slog.Logger
}

// New builds the minIO server.
func New(deps Deps) mcpservice.ServerCapabilities {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := &server{connect: deps.Connect, log: log}

	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("list_buckets", s.listBuckets,
			mcpservice.WithToolDescription("List all buckets in the MinIO server.")),
		mcpservice.NewTool("read_bucket", s.readBucket,
			mcpservice.WithToolDescription("Read the contents of a specific bucket.")),
		mcpservice.NewTool("bucket_size", s.bucketSize,
			mcpservice.WithToolDescription("Calculate total size of a bucket.")),
		mcpservice.NewTool("make_bucket", s.makeBucket,
			mcpservice.WithToolDescription("Create a new bucket in MinIO.")),
		mcpservice.NewTool("remove_bucket", s.removeBucket,
			mcpservice.WithToolDescription("Remove a bucket from MinIO.")),
		mcpservice.NewTool("list_objects", s.listObjects,
			mcpservice.WithToolDescription("List all objects in a bucket, including those in nested folders.")),
		mcpservice.NewTool("fput_object", s.fputObject,
			mcpservice.WithToolDescription("Upload a file to a MinIO bucket, with intelligent filename handling.")),
		mcpservice.NewTool("fget_object", s.fgetObject,
			mcpservice.WithToolDescription("Download object(s) from a MinIO bucket, with flexible download options.")),
	)
	prompts := mcpservice.NewStaticPrompts(
		mcpservice.StaticPrompt{
			Descriptor: mcp.Prompt{
				Name:        "bucket_summary",
				Description: "Summarize the contents of a bucket.",
				Arguments: []mcp.PromptArgument{
					{Name: "bucket_name", Description: "Name of the MinIO bucket to summarize.", Required: true},
				},
			},
			Handler: func(_ context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
				b := req.Arguments["bucket_name"]
				return mcpservice.UserText(
					fmt.Sprintf("Summarize the contents of bucket '%s'.", b),
					fmt.Sprintf("Provide a comprehensive summary of the contents in the MinIO bucket named '%s'.", b),
				), nil
			},
		},
		mcpservice.StaticPrompt{
			Descriptor: mcp.Prompt{
				Name:        "object_details",
				Description: "Get detailed information about an object in a bucket.",
				Arguments: []mcp.PromptArgument{
					{Name: "bucket_name", Description: "Name of the MinIO bucket.", Required: true},
					{Name: "object_name", Description: "Name of the object to get details for.", Required: true},
				},
			},
			Handler: func(_ context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
				b, o := req.Arguments["bucket_name"], req.Arguments["object_name"]
				return mcpservice.UserText(
					fmt.Sprintf("Get details for object '%s' in bucket '%s'.", o, b),
					fmt.Sprintf("Provide detailed information about the object named '%s' in the MinIO bucket '%s'.", o, b),
				), nil
			},
		},
	)
	resources := mcpservice.NewResourcesContainer(log)
	resources.Handle("minio", mcpservice.SchemeFuncs{List: s.listResources, Read: s.readResource})

	opts := []mcpservice.ServerOption{
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: serverVersion}),
		mcpservice.WithToolsCapability(tools),
		mcpservice.WithPromptsCapability(prompts),
		mcpservice.WithResourcesCapability(resources),
	}
	if deps.LoggingLevel != nil {
		opts = append(opts, mcpservice.WithLoggingCapability(mcpservice.NewSlogLevelVarLogging(deps.LoggingLevel)))
	}
	return mcpservice.NewServer(opts...)
}

func (s *server) store(ctx context.Context) (ObjectStore, error) {
	if s.connect == nil {
		return nil, mcpservice.NewConfigError("no MinIO connection configured")
	}
	return s.connect(ctx)
}

// status is the answer of the mutating tools and of every failure.
type status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w mcpservice.ToolResponseWriter, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return w.AppendText(string(b))
}

func success(w mcpservice.ToolResponseWriter, details any, format string, a ...any) error {
	return writeJSON(w, status{Status: "success", Message: fmt.Sprintf(format, a...), Details: details})
}

func failure(w mcpservice.ToolResponseWriter, format string, a ...any) error {
	w.SetError(true)
	return writeJSON(w, status{Status: "error", Message: fmt.Sprintf(format, a...)})
}

// upstream renders a collaborator failure. Cancellation is returned as is so
// the dispatcher reports it on the error channel.
func upstream(ctx context.Context, w mcpservice.ToolResponseWriter, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return failure(w, "Failed to %s: %v", what, err)
}

type noArgs struct{}

type bucketArgs struct {
	BucketName string `json:"bucket_name" jsonschema:"description=Name of the bucket."`
}

type bucketEntry struct {
	Name         string `json:"name"`
	CreationDate string `json:"creation_date"`
}

func (s *server) listBuckets(ctx context.Context, w mcpservice.ToolResponseWriter, _ *mcpservice.ToolRequest[noArgs]) error {
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	buckets, err := st.ListBuckets(ctx)
	if err != nil {
		return upstream(ctx, w, "list buckets", err)
	}
	out := make([]bucketEntry, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketEntry{Name: b.Name, CreationDate: b.CreationDate.UTC().Format(time.RFC3339)})
	}
	return writeJSON(w, out)
}

type objectEntry struct {
	ObjectName string `json:"object_name"`
	Size       int64  `json:"size"`
}

func (s *server) readBucket(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[bucketArgs]) error {
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	objects, err := st.ListObjects(ctx, r.Args().BucketName, "", false)
	if err != nil {
		return upstream(ctx, w, "read bucket", err)
	}
	out := make([]objectEntry, 0, len(objects))
	for _, o := range objects {
		out = append(out, objectEntry{ObjectName: o.Key, Size: o.Size})
	}
	return writeJSON(w, out)
}

type bucketSizeReport struct {
	BucketName     string  `json:"bucket_name"`
	TotalObjects   int     `json:"total_objects"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	TotalSizeHuman string  `json:"total_size_human"`
}

func (s *server) bucketSize(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[bucketArgs]) error {
	bucket := r.Args().BucketName
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	objects, err := st.ListObjects(ctx, bucket, "", true)
	if err != nil {
		return upstream(ctx, w, "calculate bucket size", err)
	}
	var total int64
	for _, o := range objects {
		total += o.Size
	}
	return writeJSON(w, bucketSizeReport{
		BucketName:     bucket,
		TotalObjects:   len(objects),
		TotalSizeBytes: total,
		TotalSizeMB:    math.Round(float64(total)/(1024*1024)*100) / 100,
		TotalSizeHuman: humanize.Bytes(uint64(total)),
	})
}

func (s *server) makeBucket(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[bucketArgs]) error {
	bucket := r.Args().BucketName
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	exists, err := st.BucketExists(ctx, bucket)
	if err != nil {
		return upstream(ctx, w, "create bucket", err)
	}
	if exists {
		return failure(w, "Bucket '%s' already exists.", bucket)
	}
	if err := st.MakeBucket(ctx, bucket); err != nil {
		return upstream(ctx, w, "create bucket", err)
	}
	s.log.InfoContext(ctx, "s3.bucket.created", slog.String("bucket", bucket))
	return success(w, nil, "Bucket '%s' created successfully.", bucket)
}

func (s *server) removeBucket(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[bucketArgs]) error {
	bucket := r.Args().BucketName
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	exists, err := st.BucketExists(ctx, bucket)
	if err != nil {
		return upstream(ctx, w, "remove bucket", err)
	}
	if !exists {
		return failure(w, "Bucket '%s' does not exist.", bucket)
	}
	objects, err := st.ListObjects(ctx, bucket, "", true)
	if err != nil {
		return upstream(ctx, w, "remove bucket", err)
	}
	for _, o := range objects {
		if err := st.RemoveObject(ctx, bucket, o.Key); err != nil {
			return upstream(ctx, w, "remove bucket", err)
		}
	}
	if err := st.RemoveBucket(ctx, bucket); err != nil {
		return upstream(ctx, w, "remove bucket", err)
	}
	s.log.InfoContext(ctx, "s3.bucket.removed", slog.String("bucket", bucket), slog.Int("objects", len(objects)))
	return success(w, nil, "Bucket '%s' and all its contents removed successfully.", bucket)
}

type listObjectsArgs struct {
	BucketName string `json:"bucket_name" jsonschema:"description=Name of the bucket."`
	Prefix     string `json:"prefix,omitempty" jsonschema:"description=Optional prefix to filter objects (e.g. a specific folder)."`
}

type listedObject struct {
	ObjectName   string  `json:"object_name"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified"`
	IsDir        bool    `json:"is_dir"`
}

type objectListing struct {
	BucketName   string         `json:"bucket_name"`
	Prefix       string         `json:"prefix"`
	TotalObjects int            `json:"total_objects"`
	Objects      []listedObject `json:"objects"`
}

func (s *server) listObjects(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[listObjectsArgs]) error {
	a := r.Args()
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	exists, err := st.BucketExists(ctx, a.BucketName)
	if err != nil {
		return upstream(ctx, w, "list objects", err)
	}
	if !exists {
		return failure(w, "Bucket '%s' does not exist.", a.BucketName)
	}
	objects, err := st.ListObjects(ctx, a.BucketName, a.Prefix, true)
	if err != nil {
		return upstream(ctx, w, "list objects", err)
	}
	listing := objectListing{
		BucketName:   a.BucketName,
		Prefix:       a.Prefix,
		TotalObjects: len(objects),
		Objects:      make([]listedObject, 0, len(objects)),
	}
	if listing.Prefix == "" {
		listing.Prefix = "root"
	}
	for _, o := range objects {
		entry := listedObject{ObjectName: o.Key, Size: o.Size, IsDir: strings.HasSuffix(o.Key, "/")}
		if !o.LastModified.IsZero() {
			ts := o.LastModified.UTC().Format(time.RFC3339)
			entry.LastModified = &ts
		}
		listing.Objects = append(listing.Objects, entry)
	}
	return writeJSON(w, listing)
}

type transferArgs struct {
	BucketName string `json:"bucket_name" jsonschema:"description=Name of the bucket."`
	FilePath   string `json:"file_path" jsonschema:"description=Local file path or directory."`
	ObjectName string `json:"object_name,omitempty" jsonschema:"description=Optional object name."`
	Prefix     string `json:"prefix,omitempty" jsonschema:"description=Optional prefix/folder path within the bucket (e.g. 'data/documents')."`
}

type transferDetails struct {
	BucketName    string `json:"bucket_name"`
	ObjectName    string `json:"object_name"`
	LocalFilePath string `json:"local_file_path"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// ObjectKey joins prefix and name the way uploads are stored: the prefix
// loses its trailing slashes and the result its leading ones.
func ObjectKey(prefix, name string) string {
	return strings.TrimLeft(strings.TrimRight(prefix, "/")+"/"+name, "/")
}

func (s *server) fputObject(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[transferArgs]) error {
	a := r.Args()
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	exists, err := st.BucketExists(ctx, a.BucketName)
	if err != nil {
		return upstream(ctx, w, "upload file", err)
	}
	if !exists {
		return failure(w, "Bucket '%s' does not exist.", a.BucketName)
	}
	if _, err := os.Stat(a.FilePath); err != nil {
		return failure(w, "Local file '%s' does not exist.", a.FilePath)
	}

	name := a.ObjectName
	if name == "" {
		name = filepath.Base(a.FilePath)
	}
	key := ObjectKey(a.Prefix, name)
	if err := st.FPutObject(ctx, a.BucketName, key, a.FilePath); err != nil {
		return upstream(ctx, w, "upload file", err)
	}
	fi, err := os.Stat(a.FilePath)
	if err != nil {
		return upstream(ctx, w, "upload file", err)
	}
	return success(w, transferDetails{
		BucketName:    a.BucketName,
		ObjectName:    key,
		LocalFilePath: a.FilePath,
		FileSizeBytes: fi.Size(),
	}, "File uploaded successfully to bucket '%s'.", a.BucketName)
}

type downloadedFile struct {
	ObjectName string `json:"object_name"`
	LocalPath  string `json:"local_path"`
	Size       int64  `json:"size"`
}

type mirrorDetails struct {
	BucketName       string           `json:"bucket_name"`
	Prefix           string           `json:"prefix,omitempty"`
	LocalDestination string           `json:"local_destination"`
	DownloadedFiles  []downloadedFile `json:"downloaded_files"`
}

func (s *server) fgetObject(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[transferArgs]) error {
	a := r.Args()
	st, err := s.store(ctx)
	if err != nil {
		return err
	}
	exists, err := st.BucketExists(ctx, a.BucketName)
	if err != nil {
		return upstream(ctx, w, "download file(s)", err)
	}
	if !exists {
		return failure(w, "Bucket '%s' does not exist.", a.BucketName)
	}

	if a.ObjectName != "" {
		if _, err := st.StatObject(ctx, a.BucketName, a.ObjectName); err != nil {
			return failure(w, "Object '%s' does not exist in bucket '%s'.", a.ObjectName, a.BucketName)
		}
		if err := st.FGetObject(ctx, a.BucketName, a.ObjectName, a.FilePath); err != nil {
			return upstream(ctx, w, "download file(s)", err)
		}
		fi, err := os.Stat(a.FilePath)
		if err != nil {
			return upstream(ctx, w, "download file(s)", err)
		}
		return success(w, transferDetails{
			BucketName:    a.BucketName,
			ObjectName:    a.ObjectName,
			LocalFilePath: a.FilePath,
			FileSizeBytes: fi.Size(),
		}, "File downloaded successfully from bucket '%s'.", a.BucketName)
	}

	objects, err := st.ListObjects(ctx, a.BucketName, a.Prefix, true)
	if err != nil {
		return upstream(ctx, w, "download file(s)", err)
	}
	if len(objects) == 0 {
		if a.Prefix != "" {
			return failure(w, "No objects found with prefix '%s' in bucket '%s'.", a.Prefix, a.BucketName)
		}
		return failure(w, "No objects found in bucket '%s'.", a.BucketName)
	}
	if err := os.MkdirAll(a.FilePath, 0o755); err != nil {
		return upstream(ctx, w, "download file(s)", err)
	}

	total := 0
	for _, o := range objects {
		if !strings.HasSuffix(o.Key, "/") {
			total++
		}
	}

	var files []downloadedFile
	for _, o := range objects {
		if strings.HasSuffix(o.Key, "/") {
			continue
		}
		rel := strings.TrimLeft(strings.TrimPrefix(o.Key, a.Prefix), "/")
		dest, err := localPath(a.FilePath, rel)
		if err != nil {
			return upstream(ctx, w, "download file(s)", err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return upstream(ctx, w, "download file(s)", err)
		}
		if err := st.FGetObject(ctx, a.BucketName, o.Key, dest); err != nil {
			return upstream(ctx, w, "download file(s)", err)
		}
		files = append(files, downloadedFile{ObjectName: o.Key, LocalPath: dest, Size: o.Size})
		if err := w.SendProgress(float64(len(files)), float64(total)); err != nil {
			return err
		}
	}

	details := mirrorDetails{
		BucketName:       a.BucketName,
		Prefix:           a.Prefix,
		LocalDestination: a.FilePath,
		DownloadedFiles:  files,
	}
	if a.Prefix != "" {
		return success(w, details, "Downloaded %d files from prefix '%s' in bucket '%s'.", len(files), a.Prefix, a.BucketName)
	}
	return success(w, details, "Downloaded %d files from bucket '%s'.", len(files), a.BucketName)
}

// localPath joins rel below root and refuses keys that would escape it.
func localPath(root, rel string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, dest)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes %s", rel, root)
	}
	return dest, nil
}

func (s *server) listResources(ctx context.Context) ([]mcp.Resource, error) {
	st, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	buckets, err := st.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	var out []mcp.Resource
	for _, b := range buckets {
		objects, err := st.ListObjects(ctx, b.Name, "", true)
		if err != nil {
			s.log.WarnContext(ctx, "s3.resources.list.degraded", slog.String("bucket", b.Name), slog.String("err", err.Error()))
			continue
		}
		for _, o := range objects {
			if strings.HasSuffix(o.Key, "/") {
				continue
			}
			out = append(out, mcp.Resource{
				URI:         objectURI(b.Name, o.Key),
				Name:        o.Key,
				Description: fmt.Sprintf("Object size: %d bytes", o.Size),
			})
		}
	}
	return out, nil
}

func (s *server) readResource(ctx context.Context, uri *url.URL) ([]mcp.ResourceContents, error) {
	bucket, key := uri.Host, strings.TrimPrefix(uri.Path, "/")
	if bucket == "" || key == "" {
		return nil, &mcpservice.NotFoundError{Kind: "resource", Name: uri.String()}
	}
	st, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	body, err := st.ReadObject(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrNoSuchObject) {
			return nil, &mcpservice.NotFoundError{Kind: "object", Name: bucket + "/" + key}
		}
		s.log.ErrorContext(ctx, "s3.resources.read.fail", slog.String("uri", uri.String()), slog.String("err", err.Error()))
		return nil, err
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("object %s/%s is not valid UTF-8 text", bucket, key)
	}
	return []mcp.ResourceContents{{URI: uri.String(), Text: string(body)}}, nil
}

func objectURI(bucket, key string) string {
	u := url.URL{Scheme: "minio", Host: bucket, Path: "/" + key}
	return u.String()
}
