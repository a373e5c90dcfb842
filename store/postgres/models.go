package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/location"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/stock"
	"github.com/xraph/allot/transfer"
	"github.com/xraph/allot/types"
)

// ==================== Location models ====================

type locationModel struct {
	grove.BaseModel `grove:"table:allot_locations"`

	ID           string            `grove:"id,pk"`
	Name         string            `grove:"name"`
	Type         string            `grove:"type"`
	Capabilities json.RawMessage   `grove:"capabilities,type:jsonb"`
	Priority     int               `grove:"priority"`
	Active       bool              `grove:"active"`
	Lat          *float64          `grove:"lat"`
	Lng          *float64          `grove:"lng"`
	Metadata     map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt    time.Time         `grove:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"`
}

func toLocationModel(l *location.Location) (*locationModel, error) {
	caps, err := json.Marshal(l.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	meta := l.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	m := &locationModel{
		ID:           l.ID.String(),
		Name:         l.Name,
		Type:         string(l.Type),
		Capabilities: caps,
		Priority:     l.Priority,
		Active:       l.Active,
		Metadata:     meta,
		CreatedAt:    l.CreatedAt.UTC(),
		UpdatedAt:    l.UpdatedAt.UTC(),
	}
	if l.Coordinates != nil {
		lat, lng := l.Coordinates.Lat, l.Coordinates.Lng
		m.Lat, m.Lng = &lat, &lng
	}
	return m, nil
}

func fromLocationModel(m *locationModel) (*location.Location, error) {
	locID, err := parseID(m.ID)
	if err != nil {
		return nil, err
	}
	l := &location.Location{
		Entity:   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:       locID,
		Name:     m.Name,
		Type:     location.Type(m.Type),
		Priority: m.Priority,
		Active:   m.Active,
	}
	if len(m.Capabilities) > 0 {
		if err := json.Unmarshal(m.Capabilities, &l.Capabilities); err != nil {
			return nil, fmt.Errorf("capabilities: %w", err)
		}
	}
	if len(m.Metadata) > 0 {
		l.Metadata = m.Metadata
	}
	if m.Lat != nil && m.Lng != nil {
		l.Coordinates = &types.Coordinates{Lat: *m.Lat, Lng: *m.Lng}
	}
	return l, nil
}

type storeLinkModel struct {
	grove.BaseModel `grove:"table:allot_store_links"`

	StoreID        string     `grove:"store_id,pk"`
	LocationID     string     `grove:"location_id,pk"`
	IsPrimary      bool       `grove:"is_primary"`
	Priority       int        `grove:"priority"`
	Active         bool       `grove:"active"`
	AvailableFrom  *time.Time `grove:"available_from"`
	AvailableUntil *time.Time `grove:"available_until"`
}

func toStoreLinkModel(link *location.StoreLink) *storeLinkModel {
	return &storeLinkModel{
		StoreID:        link.StoreID,
		LocationID:     link.LocationID.String(),
		IsPrimary:      link.IsPrimary,
		Priority:       link.Priority,
		Active:         link.Active,
		AvailableFrom:  utcPtr(link.AvailableFrom),
		AvailableUntil: utcPtr(link.AvailableUntil),
	}
}

func fromStoreLinkModel(m *storeLinkModel) (*location.StoreLink, error) {
	locID, err := parseID(m.LocationID)
	if err != nil {
		return nil, err
	}
	return &location.StoreLink{
		StoreID:        m.StoreID,
		LocationID:     locID,
		IsPrimary:      m.IsPrimary,
		Priority:       m.Priority,
		Active:         m.Active,
		AvailableFrom:  utcPtr(m.AvailableFrom),
		AvailableUntil: utcPtr(m.AvailableUntil),
	}, nil
}

// ==================== Stock models ====================

type stockRecordModel struct {
	grove.BaseModel `grove:"table:allot_stock_records"`

	VariantID     string           `grove:"variant_id,pk"`
	LocationID    string           `grove:"location_id,pk"`
	OnHand        int64            `grove:"on_hand"`
	Reservations  map[string]int64 `grove:"reservations,type:jsonb"`
	Backorderable bool             `grove:"backorderable"`
	Version       int64            `grove:"version"`
	CreatedAt     time.Time        `grove:"created_at"`
	UpdatedAt     time.Time        `grove:"updated_at"`
}

func toStockRecordModel(r *stock.Record) *stockRecordModel {
	res := r.Reservations
	if res == nil {
		res = map[string]int64{}
	}
	return &stockRecordModel{
		VariantID:     r.VariantID,
		LocationID:    r.LocationID.String(),
		OnHand:        r.OnHand,
		Reservations:  res,
		Backorderable: r.Backorderable,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func fromStockRecordModel(m *stockRecordModel) (*stock.Record, error) {
	locID, err := parseID(m.LocationID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]int64, len(m.Reservations))
	for k, v := range m.Reservations {
		res[k] = v
	}
	return &stock.Record{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		VariantID:     m.VariantID,
		LocationID:    locID,
		OnHand:        m.OnHand,
		Reservations:  res,
		Backorderable: m.Backorderable,
		Version:       m.Version,
	}, nil
}

type movementModel struct {
	grove.BaseModel `grove:"table:allot_movements"`

	Seq           int64     `grove:"seq,pk,autoincrement"`
	ID            string    `grove:"id,unique"`
	VariantID     string    `grove:"variant_id"`
	LocationID    string    `grove:"location_id"`
	Kind          string    `grove:"kind"`
	DemandID      string    `grove:"demand_id"`
	Quantity      int64     `grove:"quantity"`
	Reason        string    `grove:"reason"`
	OnHandAfter   int64     `grove:"on_hand_after"`
	ReservedAfter int64     `grove:"reserved_after"`
	At            time.Time `grove:"at"`
}

func toMovementModel(mv *stock.Movement) *movementModel {
	return &movementModel{
		ID:            mv.ID.String(),
		VariantID:     mv.VariantID,
		LocationID:    mv.LocationID.String(),
		Kind:          string(mv.Kind),
		DemandID:      mv.DemandID,
		Quantity:      mv.Quantity,
		Reason:        mv.Reason,
		OnHandAfter:   mv.OnHandAfter,
		ReservedAfter: mv.ReservedAfter,
		At:            mv.At.UTC(),
	}
}

func fromMovementModel(m *movementModel) (*stock.Movement, error) {
	mvID, err := parseID(m.ID)
	if err != nil {
		return nil, err
	}
	locID, err := parseID(m.LocationID)
	if err != nil {
		return nil, err
	}
	return &stock.Movement{
		ID:            mvID,
		VariantID:     m.VariantID,
		LocationID:    locID,
		Kind:          stock.MovementKind(m.Kind),
		DemandID:      m.DemandID,
		Quantity:      m.Quantity,
		Reason:        m.Reason,
		OnHandAfter:   m.OnHandAfter,
		ReservedAfter: m.ReservedAfter,
		At:            m.At.UTC(),
	}, nil
}

// ==================== Pickup models ====================

type pickupModel struct {
	grove.BaseModel `grove:"table:allot_pickups"`

	ID           string          `grove:"id,pk"`
	OrderID      string          `grove:"order_id"`
	LocationID   string          `grove:"location_id"`
	State        string          `grove:"state"`
	Code         string          `grove:"code,unique"`
	Lines        json.RawMessage `grove:"lines,type:jsonb"`
	ReadyAt      *time.Time      `grove:"ready_at"`
	PickedUpAt   *time.Time      `grove:"picked_up_at"`
	CancelledAt  *time.Time      `grove:"cancelled_at"`
	CancelReason string          `grove:"cancel_reason"`
	Version      int64           `grove:"version"`
	CreatedAt    time.Time       `grove:"created_at"`
	UpdatedAt    time.Time       `grove:"updated_at"`
}

func toPickupModel(t *pickup.Ticket) (*pickupModel, error) {
	lines, err := marshalLines(t.Lines)
	if err != nil {
		return nil, err
	}
	return &pickupModel{
		ID:           t.ID.String(),
		OrderID:      t.OrderID,
		LocationID:   t.LocationID.String(),
		State:        string(t.State),
		Code:         t.Code,
		Lines:        lines,
		ReadyAt:      utcPtr(t.ReadyAt),
		PickedUpAt:   utcPtr(t.PickedUpAt),
		CancelledAt:  utcPtr(t.CancelledAt),
		CancelReason: t.CancelReason,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}, nil
}

func fromPickupModel(m *pickupModel) (*pickup.Ticket, error) {
	ticketID, err := parseID(m.ID)
	if err != nil {
		return nil, err
	}
	locID, err := parseID(m.LocationID)
	if err != nil {
		return nil, err
	}
	t := &pickup.Ticket{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:           ticketID,
		OrderID:      m.OrderID,
		LocationID:   locID,
		State:        pickup.State(m.State),
		Code:         m.Code,
		ReadyAt:      utcPtr(m.ReadyAt),
		PickedUpAt:   utcPtr(m.PickedUpAt),
		CancelledAt:  utcPtr(m.CancelledAt),
		CancelReason: m.CancelReason,
		Version:      m.Version,
	}
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &t.Lines); err != nil {
			return nil, fmt.Errorf("lines: %w", err)
		}
	}
	return t, nil
}

// ==================== Transfer models ====================

type transferModel struct {
	grove.BaseModel `grove:"table:allot_transfers"`

	ID                 string          `grove:"id,pk"`
	SourceID           string          `grove:"source_id"`
	DestinationID      string          `grove:"destination_id"`
	Lines              json.RawMessage `grove:"lines,type:jsonb"`
	State              string          `grove:"state"`
	RequestedReceiveBy *time.Time      `grove:"requested_receive_by"`
	InitiatedAt        *time.Time      `grove:"initiated_at"`
	ReceivedAt         *time.Time      `grove:"received_at"`
	CancelledAt        *time.Time      `grove:"cancelled_at"`
	Version            int64           `grove:"version"`
	CreatedAt          time.Time       `grove:"created_at"`
	UpdatedAt          time.Time       `grove:"updated_at"`
}

func toTransferModel(o *transfer.Order) (*transferModel, error) {
	lines, err := marshalLines(o.Lines)
	if err != nil {
		return nil, err
	}
	return &transferModel{
		ID:                 o.ID.String(),
		SourceID:           o.SourceID.String(),
		DestinationID:      o.DestinationID.String(),
		Lines:              lines,
		State:              string(o.State),
		RequestedReceiveBy: utcPtr(o.RequestedReceiveBy),
		InitiatedAt:        utcPtr(o.InitiatedAt),
		ReceivedAt:         utcPtr(o.ReceivedAt),
		CancelledAt:        utcPtr(o.CancelledAt),
		Version:            o.Version,
		CreatedAt:          o.CreatedAt.UTC(),
		UpdatedAt:          o.UpdatedAt.UTC(),
	}, nil
}

func fromTransferModel(m *transferModel) (*transfer.Order, error) {
	orderID, err := parseID(m.ID)
	if err != nil {
		return nil, err
	}
	srcID, err := parseID(m.SourceID)
	if err != nil {
		return nil, err
	}
	dstID, err := parseID(m.DestinationID)
	if err != nil {
		return nil, err
	}
	o := &transfer.Order{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                 orderID,
		SourceID:           srcID,
		DestinationID:      dstID,
		State:              transfer.State(m.State),
		RequestedReceiveBy: utcPtr(m.RequestedReceiveBy),
		InitiatedAt:        utcPtr(m.InitiatedAt),
		ReceivedAt:         utcPtr(m.ReceivedAt),
		CancelledAt:        utcPtr(m.CancelledAt),
		Version:            m.Version,
	}
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &o.Lines); err != nil {
			return nil, fmt.Errorf("lines: %w", err)
		}
	}
	return o, nil
}

// ==================== Helpers ====================

// marshalLines encodes a line slice, writing an empty array for nil.
func marshalLines[T any](lines []T) (json.RawMessage, error) {
	if lines == nil {
		lines = []T{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}
	return b, nil
}

func parseID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.Parse(s)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
