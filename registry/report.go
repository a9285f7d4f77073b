package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
)

// maxReportLine bounds a single report record; each carries one PEM certificate.
const maxReportLine = 1 << 20

// ReportDownloader implements interfaces.ReportFetcher over HTTPS.
type ReportDownloader struct {
	client *retryablehttp.Client
	log    *slog.Logger
}

// NewReportDownloader creates a downloader that retries transient failures
// up to retryMax times.
func NewReportDownloader(retryMax int, log *slog.Logger) *ReportDownloader {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.Logger = log
	return &ReportDownloader{client: client, log: log}
}

// WithHTTPClient replaces the underlying HTTP client and the retry wait bounds.
func (d *ReportDownloader) WithHTTPClient(httpClient *http.Client, waitMin, waitMax time.Duration) *ReportDownloader {
	d.client.HTTPClient = httpClient
	d.client.RetryWaitMin = waitMin
	d.client.RetryWaitMax = waitMax
	return d
}

// FetchResults implements interfaces.ReportFetcher.
func (d *ReportDownloader) FetchResults(ctx context.Context, link string) ([]interfaces.RegistrationResult, error) {
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid report link: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not download report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return nil, fmt.Errorf("report download returned non-200 response: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("report download returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	results, err := ParseResults(resp.Body)
	if err != nil {
		return nil, err
	}

	d.log.Info("Downloaded registration report",
		slog.Int("records", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// ParseResults decodes newline-delimited JSON report records. Blank lines,
// including the trailing one, are skipped.
func ParseResults(r io.Reader) ([]interfaces.RegistrationResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReportLine)

	var results []interfaces.RegistrationResult
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var result interfaces.RegistrationResult
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, fmt.Errorf("could not parse report line %d: %w", lineNo, err)
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read report: %w", err)
	}

	return results, nil
}
