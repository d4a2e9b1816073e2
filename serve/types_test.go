package serve

import (
	"encoding/json"
	"testing"
)

func TestFileHashFromJSON(t *testing.T) {
	raw := `{
		"file_path": "/input/invoice.pdf",
		"file_name": "invoice.pdf",
		"source_connection_type": "FILESYSTEM",
		"file_hash": "e3b0c442",
		"file_size": 2048,
		"provider_file_uuid": null,
		"mime_type": "application/pdf",
		"fs_metadata": {"etag": "1"},
		"file_destination": ["manualreview", "50"],
		"is_executed": false
	}`

	var asMap map[string]any
	if err := json.Unmarshal([]byte(raw), &asMap); err != nil {
		t.Fatal(err)
	}

	for name, input := range map[string]any{
		"string": raw,
		"bytes":  []byte(raw),
		"map":    asMap,
	} {
		t.Run(name, func(t *testing.T) {
			fh, err := FileHashFromJSON(input)
			if err != nil {
				t.Fatalf("FileHashFromJSON() error = %v", err)
			}
			if fh.FileHash != "e3b0c442" || fh.FileSize != 2048 || fh.MimeType != "application/pdf" {
				t.Errorf("FileHashFromJSON() = %+v", fh)
			}
			if fh.ProviderFileUUID != "" {
				t.Errorf("ProviderFileUUID = %q, want empty for null", fh.ProviderFileUUID)
			}
			if len(fh.FileDestination) != 2 || fh.FSMetadata["etag"] != "1" {
				t.Errorf("FileHashFromJSON() = %+v", fh)
			}
		})
	}
}

func TestFileHashFromJSONInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"not json", "{oops"},
		{"unknown field", `{"file_path":"a","file_name":"a","source_connection_type":"API","colour":"red"}`},
		{"missing name", `{"file_path":"a","source_connection_type":"API"}`},
		{"wrong type", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FileHashFromJSON(tt.input); err == nil {
				t.Error("FileHashFromJSON() should fail")
			}
		})
	}
}
