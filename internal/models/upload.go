package models

// UploadResult is the outcome of storing one evidence file.
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
	Path    string `json:"path,omitempty"`
}

// SuccessfulURLs returns the URLs of the uploads that succeeded, in order.
func SuccessfulURLs(results []UploadResult) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success && r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}
