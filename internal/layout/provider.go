// Package layout supplies the seat map and base prices of a showing.  The
// catalog owns this data; the booking core only reads it through Provider.
package layout

import (
	"context"
	"sync"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// Provider returns the layout of a showing or an error wrapping
// apperr.ErrNotFound when the showing does not exist.
type Provider interface {
	Layout(ctx context.Context, showingID uint64) (model.Layout, error)
}

// StaticProvider serves layouts registered in memory.  It is used by the
// memory storage mode and by tests.
type StaticProvider struct {
	mu      sync.RWMutex
	layouts map[uint64]model.Layout
}

func NewStaticProvider(layouts ...model.Layout) *StaticProvider {
	p := &StaticProvider{layouts: make(map[uint64]model.Layout, len(layouts))}
	for _, l := range layouts {
		p.layouts[l.ShowingID] = l
	}
	return p
}

// Put adds or replaces a layout.
func (p *StaticProvider) Put(l model.Layout) {
	p.mu.Lock()
	p.layouts[l.ShowingID] = l
	p.mu.Unlock()
}

func (p *StaticProvider) Layout(_ context.Context, showingID uint64) (model.Layout, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.layouts[showingID]
	if !ok {
		return model.Layout{}, apperr.ErrNotFound
	}
	return l, nil
}

// Grid builds a rows x cols layout of STANDARD seats numbered from
// firstID, rows labelled A, B, C...  Handy for development data.
func Grid(showingID, firstID uint64, rows, cols int, format string, basePrice int64) model.Layout {
	l := model.Layout{ShowingID: showingID, Format: format, BasePriceCents: basePrice}
	id := firstID
	for r := 0; r < rows; r++ {
		label := string(rune('A' + r%26))
		for c := 1; c <= cols; c++ {
			l.Seats = append(l.Seats, model.LayoutSeat{
				SeatID:     id,
				RowLabel:   label,
				SeatNumber: uint32(c),
				SeatType:   "STANDARD",
			})
			id++
		}
	}
	return l
}
