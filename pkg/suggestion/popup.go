package suggestion

import "github.com/atinylittleshell/quill/pkg/caret"

// MaxItems is the most synonyms a popup ever lists.
const MaxItems = 3

// Popup is what the suggestion overlay shows. The zero value is hidden.
type Popup struct {
	Visible     bool
	Items       []string
	Selected    int
	Anchor      caret.Point
	Explanation string
}

func (p *Popup) show(items []string, explanation string, anchor caret.Point, limit int) {
	if limit <= 0 || limit > MaxItems {
		limit = MaxItems
	}
	if len(items) > limit {
		items = items[:limit]
	}
	p.Visible = true
	p.Items = append([]string(nil), items...)
	p.Selected = 0
	p.Anchor = anchor
	p.Explanation = explanation
}

func (p *Popup) hide() {
	*p = Popup{}
}

// move shifts the selection by delta, wrapping around the list.
func (p *Popup) move(delta int) {
	if !p.Visible || len(p.Items) == 0 {
		return
	}
	n := len(p.Items)
	p.Selected = ((p.Selected+delta)%n + n) % n
}

// Current returns the selected item.
func (p Popup) Current() (string, bool) {
	return p.Item(p.Selected)
}

func (p Popup) Item(i int) (string, bool) {
	if !p.Visible || i < 0 || i >= len(p.Items) {
		return "", false
	}
	return p.Items[i], true
}
