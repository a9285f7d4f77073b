package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReport = `{"offset":0,"response":{"CertificatePem":"-----BEGIN CERTIFICATE-----\nAAA\n-----END CERTIFICATE-----\n","ResourceArns":{"certificate":"arn:aws:iot:us-west-2:123456789012:cert/a","thing":"arn:aws:iot:us-west-2:123456789012:thing/ss-1"}}}
{"offset":1,"response":{"CertificatePem":"-----BEGIN CERTIFICATE-----\nBBB\n-----END CERTIFICATE-----\n","ResourceArns":{"certificate":"arn:aws:iot:us-west-2:123456789012:cert/b","thing":"arn:aws:iot:us-west-2:123456789012:thing/ss-2"}}}
`

func TestParseResults(t *testing.T) {
	results, err := ParseResults(strings.NewReader(testReport))
	require.NoError(t, err)
	require.Len(t, results, 2)

	name, err := results[1].ThingName()
	require.NoError(t, err)
	assert.Equal(t, "ss-2", name)
	assert.Equal(t, 1, results[1].Offset)
	assert.Contains(t, results[0].Response.CertificatePem, "AAA")
}

func TestParseResultsErrors(t *testing.T) {
	results, err := ParseResults(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = ParseResults(strings.NewReader(`{"offset":0,"errorCode":"ResourceAlreadyExistsException","errorMessage":"thing exists"}` + "\n\n"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err(), interfaces.ErrRegistrationFailed)

	_, err = ParseResults(strings.NewReader("{\"offset\":0}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReportDownloaderFetchResults(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// first request fails transiently
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/results/task-1", r.URL.Path)
		_, _ = w.Write([]byte(testReport))
	}))
	defer server.Close()

	downloader := NewReportDownloader(3, newTestLogger()).
		WithHTTPClient(server.Client(), time.Millisecond, 5*time.Millisecond)

	results, err := downloader.FetchResults(context.Background(), server.URL+"/results/task-1")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), requests.Load())
}

func TestReportDownloaderNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "NoSuchKey", http.StatusNotFound)
	}))
	defer server.Close()

	downloader := NewReportDownloader(1, newTestLogger()).
		WithHTTPClient(server.Client(), time.Millisecond, time.Millisecond)

	_, err := downloader.FetchResults(context.Background(), server.URL+"/results/task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "NoSuchKey")
}
