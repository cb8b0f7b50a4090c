package zenodo

// Metadata is the free-form metadata document of a deposition
// (title, version, publication_date, creators, ...).
type Metadata map[string]any

// Clone returns a deep copy of m. Nested maps and slices are copied so the
// result shares no mutable state with m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Metadata:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// FileDescriptor describes a file attached to a deposition.
// Checksum is the MD5 of the content as reported by the service.
type FileDescriptor struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Checksum string `json:"checksum"`
}

// PublishResult identifies a freshly published version.
type PublishResult struct {
	ID   int64  `json:"id"`
	DOI  string `json:"doi"`
	HTML string `json:"html"`
}

// deposition is the subset of the deposition resource the client reads.
type deposition struct {
	ID       int64            `json:"id"`
	Links    depositionLinks  `json:"links"`
	Metadata Metadata         `json:"metadata"`
	Files    []FileDescriptor `json:"files"`
}

type depositionLinks struct {
	Bucket      string `json:"bucket"`
	LatestDraft string `json:"latest_draft"`
	DOI         string `json:"doi"`
	LatestHTML  string `json:"latest_html"`
}
