package scan

import "time"

// State is the full wizard state owned by the workflow machine.
type State struct {
	Status      Status             `json:"status"`
	Location    *Location          `json:"location,omitempty"`
	Parent      *ParentItem        `json:"parent,omitempty"`
	Images      []CapturedImage    `json:"images,omitempty"`
	Detected    []CandidateItem    `json:"detected,omitempty"`
	ReviewIndex int                `json:"review_index"`
	Confirmed   []ConfirmedItem    `json:"confirmed,omitempty"`
	Submission  []SubmissionRecord `json:"submission,omitempty"`
	Progress    *Progress          `json:"progress,omitempty"`
	Result      *Outcome           `json:"result,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Clone returns a deep copy of the state. File bytes are shared; they are
// never mutated after capture.
func (s State) Clone() State {
	out := s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	if s.Parent != nil {
		parent := *s.Parent
		out.Parent = &parent
	}
	out.Images = append([]CapturedImage(nil), s.Images...)
	out.Detected = nil
	for _, item := range s.Detected {
		out.Detected = append(out.Detected, item.Clone())
	}
	out.Confirmed = nil
	for _, item := range s.Confirmed {
		out.Confirmed = append(out.Confirmed, item.Clone())
	}
	out.Submission = nil
	for _, record := range s.Submission {
		out.Submission = append(out.Submission, record.Clone())
	}
	if s.Progress != nil {
		progress := *s.Progress
		out.Progress = &progress
	}
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return out
}

// VisitFiles calls fn for every file referenced by the state, in a stable
// order. The same file may be visited more than once when several
// candidates come from one photo.
func (s *State) VisitFiles(fn func(*File)) {
	for i := range s.Images {
		fn(&s.Images[i].File)
	}
	for i := range s.Detected {
		if s.Detected[i].SourceFile != nil {
			fn(s.Detected[i].SourceFile)
		}
	}
	for i := range s.Confirmed {
		item := &s.Confirmed[i]
		if item.OriginalFile != nil {
			fn(item.OriginalFile)
		}
		for j := range item.AdditionalImages {
			fn(&item.AdditionalImages[j])
		}
		if item.CustomThumbnail != nil {
			fn(item.CustomThumbnail)
		}
	}
}

// Files returns the distinct files referenced by the state.
func (s State) Files() []File {
	seen := make(map[string]struct{})
	var out []File
	s.VisitFiles(func(f *File) {
		if _, ok := seen[f.ID]; ok {
			return
		}
		seen[f.ID] = struct{}{}
		out = append(out, *f)
	})
	return out
}
