// Package notifier turns account mutations into per-subscriber view rows.
//
// A single feed consumes every mutation once and multicasts derived rows to
// all live subscriptions, replacing the one-change-stream-per-connection
// pattern. Subscriptions are cancellable independently and cancellation is
// prompt: no delivery is attempted after Cancel returns.
package notifier

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/refnet/refnet_backend/models"
)

// ViewRow is the projection of an anchor-and-one-leg pair pushed to a
// subscriber. LegUsername and PurchaseAmount are null on the row emitted
// for an anchor with no legs.
type ViewRow struct {
	Username       string   `json:"username"`
	LegUsername    *string  `json:"legUsername"`
	PurchaseAmount *float64 `json:"purchaseAmount"`
	TotalProfit    float64  `json:"totalProfit"`
}

// AccountReader is the read-side the notifier needs from the store.
type AccountReader interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// Subscription is one observer's live view of an anchor account.
type Subscription struct {
	ID       string
	AnchorID primitive.ObjectID

	mu     sync.Mutex
	rows   chan ViewRow
	closed bool

	remove func()
}

// Rows is the channel view rows arrive on. It is closed on Cancel.
func (s *Subscription) Rows() <-chan ViewRow {
	return s.rows
}

// Cancel detaches the subscription. Safe to call more than once; no row is
// delivered after it returns and other subscriptions are unaffected.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.rows)
	s.mu.Unlock()

	s.remove()
}

// deliver hands a row to the subscriber without ever blocking the feed. A
// subscriber whose buffer is full loses the row; the transport layer owns
// redelivery concerns.
func (s *Subscription) deliver(row ViewRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.rows <- row:
	default:
	}
}

const (
	changeBuffer     = 256
	subscriberBuffer = 16
	lookupTimeout    = 10 * time.Second
)

// Notifier is the single internal change feed.
type Notifier struct {
	store   AccountReader
	changes chan primitive.ObjectID

	mu   sync.RWMutex
	subs map[string]*Subscription

	logger *log.Logger
}

func New(store AccountReader) *Notifier {
	return &Notifier{
		store:   store,
		changes: make(chan primitive.ObjectID, changeBuffer),
		subs:    make(map[string]*Subscription),
		logger:  log.New(os.Stdout, "[NOTIFIER] ", log.LstdFlags),
	}
}

// AccountChanged feeds mutated account ids into the notifier. Implements
// services.ChangeFeed.
func (n *Notifier) AccountChanged(ids ...primitive.ObjectID) {
	for _, id := range ids {
		n.changes <- id
	}
}

// Subscribe registers an observer anchored at the given account.
func (n *Notifier) Subscribe(anchorID primitive.ObjectID) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		AnchorID: anchorID,
		rows:     make(chan ViewRow, subscriberBuffer),
	}
	sub.remove = func() {
		n.mu.Lock()
		delete(n.subs, sub.ID)
		n.mu.Unlock()
	}

	n.mu.Lock()
	n.subs[sub.ID] = sub
	n.mu.Unlock()
	return sub
}

// Run consumes the change feed until ctx is done. Pending changes are
// drained into one batch so rapid mutations of the same accounts collapse
// into a single dedup window per subscriber.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-n.changes:
			batch := map[primitive.ObjectID]struct{}{id: {}}
		drain:
			for {
				select {
				case next := <-n.changes:
					batch[next] = struct{}{}
				default:
					break drain
				}
			}
			n.dispatch(ctx, batch)
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, batch map[primitive.ObjectID]struct{}) {
	n.mu.RLock()
	subs := make([]*Subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		rows, err := n.rowsFor(ctx, sub.AnchorID, batch)
		if err != nil {
			n.logger.Printf("skipping notification for anchor %s: %v", sub.AnchorID.Hex(), err)
			continue
		}
		for _, row := range rows {
			sub.deliver(row)
		}
	}
}

// rowsFor derives the batch's view rows from one anchor's perspective. Per
// batch at most one row per distinct leg username is emitted, first
// occurrence wins.
func (n *Notifier) rowsFor(ctx context.Context, anchorID primitive.ObjectID, batch map[primitive.ObjectID]struct{}) ([]ViewRow, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	anchor, err := n.store.FindByID(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	if len(anchor.Leg) == 0 {
		if _, ok := batch[anchor.ID]; !ok {
			return nil, nil
		}
		return []ViewRow{{Username: anchor.Username, TotalProfit: anchor.TotalProfit}}, nil
	}

	// Leg order decides which occurrence of a username is "first".
	changed := make([]primitive.ObjectID, 0, len(anchor.Leg))
	for _, legID := range anchor.Leg {
		if _, ok := batch[legID]; ok {
			changed = append(changed, legID)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	legs, err := n.store.FindByIDs(ctx, changed)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(legs))
	rows := make([]ViewRow, 0, len(legs))
	for i := range legs {
		leg := legs[i]
		if _, dup := seen[leg.Username]; dup {
			continue
		}
		seen[leg.Username] = struct{}{}
		amount := leg.TotalPurchases
		name := leg.Username
		rows = append(rows, ViewRow{
			Username:       anchor.Username,
			LegUsername:    &name,
			PurchaseAmount: &amount,
			TotalProfit:    anchor.TotalProfit,
		})
	}
	return rows, nil
}
