package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Verify valid JSON
	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	err := Output(data, OutputOptions{
		Format: FormatYAML,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "name: test") {
		t.Errorf("Output should contain 'name: test', got: %s", output)
	}
}

func TestOutput_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}

	// Empty format should default to YAML
	err := Output(data, OutputOptions{
		Format: "",
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "key: value") {
		t.Errorf("Default format should be YAML, got: %s", output)
	}
}

func TestOutput_Raw_Bytes(t *testing.T) {
	var buf bytes.Buffer

	data := []byte("raw binary data")

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if buf.String() != "raw binary data" {
		t.Errorf("Output = %q, want %q", buf.String(), "raw binary data")
	}
}

func TestOutput_Raw_Other(t *testing.T) {
	var buf bytes.Buffer

	// Non-string/bytes should fall back to YAML
	data := map[string]int{"count": 42}

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if !strings.Contains(buf.String(), "count: 42") {
		t.Errorf("Output should contain YAML, got: %s", buf.String())
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer

	err := Output("data", OutputOptions{
		Format: "invalid",
		Writer: &buf,
	})
	if err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_Query(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"call_id": "CA123",
		"caller":  map[string]any{"number": "+12125550100"},
	}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Query:  ".caller.number",
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if got := strings.TrimSpace(buf.String()); got != `"+12125550100"` {
		t.Errorf("Output = %q, want %q", got, `"+12125550100"`)
	}
}

func TestOutput_Query_MultipleResults(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{"items": []int{1, 2, 3}}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Query:  ".items[]",
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	want := "1\n2\n3\n"
	if buf.String() != want {
		t.Errorf("Output = %q, want %q", buf.String(), want)
	}
}

func TestOutput_Query_RawStrings(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{"ids": []string{"CA1", "CA2"}}

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
		Query:  ".ids[]",
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	want := "CA1\nCA2\n"
	if buf.String() != want {
		t.Errorf("Output = %q, want %q", buf.String(), want)
	}
}

func TestOutput_Query_YAMLSeparatesDocuments(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{"items": []map[string]string{
		{"id": "a"},
		{"id": "b"},
	}}

	err := Output(data, OutputOptions{
		Writer: &buf,
		Query:  ".items[]",
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if !strings.Contains(buf.String(), "---") {
		t.Errorf("multiple YAML documents should be separated, got: %s", buf.String())
	}
}

func TestOutput_Query_Invalid(t *testing.T) {
	var buf bytes.Buffer

	err := Output(map[string]string{}, OutputOptions{
		Writer: &buf,
		Query:  ".[",
	})
	if err == nil {
		t.Error("Output should fail for invalid jq expression")
	}
}

func TestOutput_ToFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "output.json")

	data := map[string]string{"key": "value"}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		File:   filePath,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Read and verify file
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Invalid JSON in file: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}

func TestOutputBytes(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "data.bin")

	data := []byte{0x00, 0x01, 0x02, 0x03}

	err := OutputBytes(data, filePath)
	if err != nil {
		t.Fatalf("OutputBytes error: %v", err)
	}

	// Read and verify
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}

	if !bytes.Equal(content, data) {
		t.Errorf("File content = %v, want %v", content, data)
	}
}

func TestOutputBytes_EmptyPath(t *testing.T) {
	err := OutputBytes([]byte{1, 2, 3}, "")
	if err == nil {
		t.Error("OutputBytes should fail for empty path")
	}
}
