package job

import "encoding/json"

// CompletionEvent announces a new model on the bus.
type CompletionEvent struct {
	Bucket      string      `json:"bucket"`
	BucketFiles BucketFiles `json:"bucket_files"`
}

// BucketFiles names the uploaded objects within the bucket.
type BucketFiles struct {
	ModelFile string `json:"model_file"`
	VocabFile string `json:"vocab_file"`
}

// NewCompletionEvent builds the event for artifacts uploaded to bucket.
func NewCompletionEvent(bucket string) CompletionEvent {
	return CompletionEvent{
		Bucket: bucket,
		BucketFiles: BucketFiles{
			ModelFile: ModelFile,
			VocabFile: VocabFile,
		},
	}
}

// Marshal encodes the event as UTF-8 JSON.
func (e CompletionEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
