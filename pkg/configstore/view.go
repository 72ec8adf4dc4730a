package configstore

import "encoding/json"

// View is the serialized form of a revision. JSON content is embedded as
// JSON, anything else as a string.
type View struct {
	Revision
	Content any `json:"content,omitempty"`
}

// NewView renders r, including its content when withContent is set.
func NewView(r Revision, withContent bool) View {
	v := View{Revision: r}
	if !withContent {
		return v
	}
	if r.IsJSON() && json.Valid(r.Content) {
		v.Content = json.RawMessage(r.Content)
	} else {
		v.Content = string(r.Content)
	}
	return v
}

// NewViews renders a list of revisions.
func NewViews(revs []Revision, withContent bool) []View {
	out := make([]View, len(revs))
	for i, r := range revs {
		out[i] = NewView(r, withContent)
	}
	return out
}

// StoreResultView is the serialized form of a StoreResult.
type StoreResultView struct {
	Revision View `json:"revision"`
	Created  bool `json:"created"`
}

// NewStoreResultView renders res without its content.
func NewStoreResultView(res StoreResult) StoreResultView {
	return StoreResultView{Revision: NewView(res.Revision, false), Created: res.Created}
}
