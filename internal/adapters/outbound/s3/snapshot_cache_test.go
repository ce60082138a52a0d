package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mockS3API is an in-memory bucket. Keys are listed in lexical order like S3.
type mockS3API struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput

	listErr error
	getErr  error
	putErr  error
}

func newMockS3API() *mockS3API {
	return &mockS3API{objects: make(map[string][]byte)}
}

func (m *mockS3API) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(m.objects[k])))})
	}
	return out, nil
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = data
	m.puts = append(m.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3API) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gzWriter.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func newTestCache(t *testing.T, mock *mockS3API, cfg Config) *SnapshotCache {
	t.Helper()
	if cfg.Bucket == "" {
		cfg.Bucket = "test-bucket"
	}
	c, err := newSnapshotCache(mock, cfg, nil)
	if err != nil {
		t.Fatalf("newSnapshotCache: %v", err)
	}
	return c
}

func TestNewSnapshotCache(t *testing.T) {
	c, err := NewSnapshotCache(aws.Config{}, Config{Bucket: "b", Root: "/cache/"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.client == nil {
		t.Error("expected non-nil client")
	}
	if c.logger == nil {
		t.Error("expected default logger when nil is passed")
	}
	if c.root != "cache" {
		t.Errorf("root = %q, want cache", c.root)
	}

	if _, err := NewSnapshotCache(aws.Config{}, Config{}, nil); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"with root", Config{Root: "cache"}, "cache/rates/14000000-14000999/rates_14000123_16400000.json"},
		{"bucket root", Config{}, "rates/14000000-14000999/rates_14000123_16400000.json"},
		{"compressed", Config{Root: "cache", Compress: true}, "cache/rates/14000000-14000999/rates_14000123_16400000.json.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, newMockS3API(), tt.cfg)
			if got := c.objectKey("rates", 14000123, 16400000); got != tt.want {
				t.Errorf("objectKey = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFind(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		objects   map[string][]byte
		wantNil   bool
		wantStart int64
		wantEnd   int64
		want      string
	}{
		{
			name:    "empty bucket",
			objects: map[string][]byte{},
			wantNil: true,
		},
		{
			name: "plain entry",
			objects: map[string][]byte{
				"cache/rates/100-199/rates_100_200.json": []byte(`{"a":"1"}`),
			},
			wantStart: 100, wantEnd: 200, want: `{"a":"1"}`,
		},
		{
			name:      "gzipped entry",
			objects:   map[string][]byte{"cache/rates/0-999/rates_5_9.json.gz": gzipBytes(t, `{"z":true}`)},
			wantStart: 5, wantEnd: 9, want: `{"z":true}`,
		},
		{
			name: "skips names outside the grammar",
			objects: map[string][]byte{
				"cache/rates/":                               {},
				"cache/rates/0-999/rates_1.json":             []byte(`{}`),
				"cache/rates/0-999/rates_1_2.txt":            []byte(`{}`),
				"cache/rates/0-999/other_1_2.json":           []byte(`{}`),
				"cache/ratesx/0-999/ratesx_1_2.json":         []byte(`{}`),
				"cache/rates/2000-2999/rates_2000_3000.json": []byte(`{"ok":1}`),
			},
			wantStart: 2000, wantEnd: 3000, want: `{"ok":1}`,
		},
		{
			name: "first key wins",
			objects: map[string][]byte{
				"cache/rates/1000-1999/rates_1000_2000.json": []byte(`{"n":2}`),
				"cache/rates/0-999/rates_10_20.json":         []byte(`{"n":1}`),
			},
			wantStart: 10, wantEnd: 20, want: `{"n":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockS3API()
			mock.objects = tt.objects
			c := newTestCache(t, mock, Config{Root: "cache"})

			entry, err := c.Find(ctx, "rates")
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if tt.wantNil {
				if entry != nil {
					t.Errorf("entry = %+v, want nil", entry)
				}
				return
			}
			if entry == nil {
				t.Fatal("entry = nil, want hit")
			}
			if entry.Start != tt.wantStart || entry.End != tt.wantEnd || string(entry.Content) != tt.want {
				t.Errorf("entry = {%d %d %s}, want {%d %d %s}", entry.Start, entry.End, entry.Content, tt.wantStart, tt.wantEnd, tt.want)
			}
		})
	}
}

func TestFind_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid JSON", func(t *testing.T) {
		mock := newMockS3API()
		mock.objects["rates/0-999/rates_1_2.json"] = []byte(`{not json`)
		c := newTestCache(t, mock, Config{})
		if _, err := c.Find(ctx, "rates"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("list failure", func(t *testing.T) {
		mock := newMockS3API()
		mock.listErr = errors.New("access denied")
		c := newTestCache(t, mock, Config{})
		if _, err := c.Find(ctx, "rates"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("object vanished", func(t *testing.T) {
		mock := newMockS3API()
		mock.objects["rates/0-999/rates_1_2.json"] = []byte(`{}`)
		mock.getErr = &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
		c := newTestCache(t, mock, Config{})
		entry, err := c.Find(ctx, "rates")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if entry != nil {
			t.Errorf("entry = %+v, want nil", entry)
		}
	})

	t.Run("invalid prefix", func(t *testing.T) {
		c := newTestCache(t, newMockS3API(), Config{})
		if _, err := c.Find(ctx, "supply_rates"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			mock := newMockS3API()
			mock.objects["cache/other/0-999/other_1_2.json"] = []byte(`{}`)
			c := newTestCache(t, mock, Config{Root: "cache", Compress: compress})

			if err := c.Store(ctx, "rates", 1, 2, json.RawMessage(`{"v":1}`)); err != nil {
				t.Fatalf("Store: %v", err)
			}
			if err := c.Store(ctx, "rates", 5000, 6000, json.RawMessage(`{"v":2}`)); err != nil {
				t.Fatalf("Store: %v", err)
			}

			entry, err := c.Find(ctx, "rates")
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if entry == nil || entry.Start != 5000 || entry.End != 6000 || string(entry.Content) != `{"v":2}` {
				t.Errorf("entry = %+v, want the second store", entry)
			}

			if _, ok := mock.objects[c.objectKey("rates", 1, 2)]; ok {
				t.Error("stale entry still present")
			}
			if _, ok := mock.objects["cache/other/0-999/other_1_2.json"]; !ok {
				t.Error("entry for another prefix was removed")
			}

			last := mock.puts[len(mock.puts)-1]
			if aws.ToString(last.ContentType) != "application/json" {
				t.Errorf("ContentType = %s", aws.ToString(last.ContentType))
			}
			if compress != (aws.ToString(last.ContentEncoding) == "gzip") {
				t.Errorf("ContentEncoding = %q with compress=%v", aws.ToString(last.ContentEncoding), compress)
			}
		})
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prefix  string
		content string
		putErr  error
	}{
		{"empty prefix", "", `{}`, nil},
		{"underscore in prefix", "supply_rates", `{}`, nil},
		{"invalid JSON", "rates", `{`, nil},
		{"put failure", "rates", `{}`, errors.New("throttled")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockS3API()
			mock.putErr = tt.putErr
			c := newTestCache(t, mock, Config{})
			if err := c.Store(ctx, tt.prefix, 1, 2, json.RawMessage(tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{&types.NoSuchKey{}, true},
		{&types.NotFound{}, true},
		{&smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
