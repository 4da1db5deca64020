package adserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoface/adloader/internal/config"
)

const listResult = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>ads</Name><Prefix>waterfalls/</Prefix><KeyCount>3</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>
  <Contents><Key>waterfalls/unit-2.json</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><ETag>"b"</ETag><Size>2</Size><StorageClass>STANDARD</StorageClass></Contents>
  <Contents><Key>waterfalls/readme.txt</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><ETag>"c"</ETag><Size>2</Size><StorageClass>STANDARD</StorageClass></Contents>
  <Contents><Key>waterfalls/unit-1.json</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><ETag>"a"</ETag><Size>2</Size><StorageClass>STANDARD</StorageClass></Contents>
</ListBucketResult>`

// fakeS3 serves path-style GETs for a handful of objects.
func fakeS3(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list-type") == "2" {
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(listResult))
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/ads/")
		body, ok := objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", time.Unix(1700000000, 0).UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"etag"`)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	}))
}

func newS3Store(t *testing.T, srv *httptest.Server) *S3Store {
	t.Helper()
	s, err := NewS3Store(config.S3Config{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "ads",
		Prefix:          "/waterfalls/",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	return s
}

func TestS3Store_Waterfall(t *testing.T) {
	srv := fakeS3(t, map[string]string{
		"waterfalls/unit-1.json": `{"ad_unit_id":"unit-1","format":"banner","entries":[{"metadata":{"x-adtype":"html"}}]}`,
		"waterfalls/unit-2.json": `{"entries":[]}`,
		"waterfalls/other.json":  `{"ad_unit_id":"unit-1"}`,
	})
	defer srv.Close()
	s := newS3Store(t, srv)
	ctx := context.Background()

	assert.Equal(t, "waterfalls/unit-1.json", s.objectKey("unit-1"))

	wf, err := s.Waterfall(ctx, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, "banner", wf.Format)
	require.Len(t, wf.Entries, 1)
	assert.Equal(t, "html", wf.Entries[0].Metadata.AdType)

	wf, err = s.Waterfall(ctx, "unit-2")
	require.NoError(t, err)
	assert.Equal(t, "unit-2", wf.AdUnitID)

	_, err = s.Waterfall(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Waterfall(ctx, "other")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestS3Store_AdUnits(t *testing.T) {
	srv := fakeS3(t, nil)
	defer srv.Close()

	ids, err := newS3Store(t, srv).AdUnits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"unit-1", "unit-2"}, ids)
}
