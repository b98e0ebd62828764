package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Result metadata stamped on every transform.
const (
	ProcessorVersion = "1.0"
	ProcessorName    = "job_pipeline"
)

// MsgPayloadNotObject is the validation error stored on jobs with a non-object payload.
const MsgPayloadNotObject = "Payload must be a JSON object"

// TransformResult is the document delivered to the webhook and stored as the job result.
type TransformResult struct {
	OriginalData       json.RawMessage    `json:"original_data"`
	JobID              string             `json:"job_id"`
	DataHash           string             `json:"data_hash"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
}

// ProcessingMetadata identifies the processor that produced a result.
type ProcessingMetadata struct {
	Version   string `json:"version"`
	Processor string `json:"processor"`
}

// Validate checks that payload is a JSON object.
func Validate(payload json.RawMessage) StepOutcome {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return failed(FailureValidation, MsgPayloadNotObject)
	}
	return StepOutcome{}
}

// Transform derives the result document. It depends only on jobID and payload.
func Transform(jobID string, payload json.RawMessage) (json.RawMessage, StepOutcome) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return nil, failed(FailureTransform, fmt.Sprintf("Transform failed: %v", err))
	}

	out, err := json.Marshal(TransformResult{
		OriginalData: canonical,
		JobID:        jobID,
		DataHash:     DataHash(canonical),
		ProcessingMetadata: ProcessingMetadata{
			Version:   ProcessorVersion,
			Processor: ProcessorName,
		},
	})
	if err != nil {
		return nil, failed(FailureTransform, fmt.Sprintf("Transform failed: %v", err))
	}
	return out, StepOutcome{}
}

// CanonicalJSON re-encodes raw compactly with object keys sorted at every level.
// Number literals are preserved as written.
func CanonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DataHash is the first 16 hex characters of the SHA-256 of canonical JSON.
func DataHash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}
