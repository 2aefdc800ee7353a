package reputation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ahrav/scanguard/internal/domain/verdict"
)

// scanResponse is the body returned by the upload endpoint.
type scanResponse struct {
	ResponseCode int    `json:"response_code"`
	Resource     string `json:"resource"`
	ScanID       string `json:"scan_id"`
	VerboseMsg   string `json:"verbose_msg"`
}

// reportResponse is the body returned by the report endpoint.
type reportResponse struct {
	ResponseCode int         `json:"response_code"`
	VerboseMsg   string      `json:"verbose_msg"`
	Resource     string      `json:"resource"`
	SHA256       string      `json:"sha256"`
	Permalink    string      `json:"permalink"`
	ScanDate     string      `json:"scan_date"`
	Positives    int         `json:"positives"`
	Total        int         `json:"total"`
	Scans        engineScans `json:"scans"`
}

type engineScan struct {
	Detected bool   `json:"detected"`
	Result   string `json:"result"`
	Version  string `json:"version"`
	Update   string `json:"update"`
}

// engineScans decodes the per-engine object while keeping the order engines
// appear in the document.
type engineScans []verdict.EngineResult

func (s *engineScans) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("scans: expected object, got %v", tok)
	}

	out := make(engineScans, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		engine, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("scans: expected engine name, got %v", keyTok)
		}

		var es engineScan
		if err := dec.Decode(&es); err != nil {
			return fmt.Errorf("scans: engine %s: %w", engine, err)
		}
		out = append(out, verdict.EngineResult{
			Engine:   engine,
			Detected: es.Detected,
			Result:   es.Result,
			Version:  es.Version,
			Update:   es.Update,
		})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}

// parseReport converts a report body into the typed domain report.
func parseReport(body []byte) (*verdict.Report, error) {
	var rr reportResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, err
	}
	return &verdict.Report{
		ResponseCode: verdict.ResponseCode(rr.ResponseCode),
		VerboseMsg:   rr.VerboseMsg,
		Resource:     rr.Resource,
		SHA256:       rr.SHA256,
		Permalink:    rr.Permalink,
		ScanDate:     rr.ScanDate,
		Positives:    rr.Positives,
		Total:        rr.Total,
		Scans:        rr.Scans,
	}, nil
}
