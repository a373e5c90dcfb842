package sqlite

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

// Timestamps are stored as RFC 3339 text in UTC and JSON documents as text.

// ==================== Location models ====================

type locationModel struct {
	grove.BaseModel `grove:"table:allot_locations"`

	ID           string   `grove:"id,pk"`
	Name         string   `grove:"name"`
	Type         string   `grove:"type"`
	Capabilities string   `grove:"capabilities"`
	Priority     int      `grove:"priority"`
	Active       bool     `grove:"active"`
	Lat          *float64 `grove:"lat"`
	Lng          *float64 `grove:"lng"`
	Metadata     string   `grove:"metadata"`
	CreatedAt    string   `grove:"created_at"`
	UpdatedAt    string   `grove:"updated_at"`
}

func toLocationModel(l *location.Location) (*locationModel, error) {
	caps, err := toJSON(l.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	meta := "{}"
	if len(l.Metadata) > 0 {
		if meta, err = toJSON(l.Metadata); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
	}
	m := &locationModel{
		ID:           l.ID.String(),
		Name:         l.Name,
		Type:         string(l.Type),
		Capabilities: caps,
		Priority:     l.Priority,
		Active:       l.Active,
		Metadata:     meta,
		CreatedAt:    formatTime(l.CreatedAt),
		UpdatedAt:    formatTime(l.UpdatedAt),
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
		ID:       locID,
		Name:     m.Name,
		Type:     location.Type(m.Type),
		Priority: m.Priority,
		Active:   m.Active,
	}
	if err := fromJSON(m.Capabilities, &l.Capabilities); err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	if err := fromJSON(m.Metadata, &l.Metadata); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if len(l.Metadata) == 0 {
		l.Metadata = nil
	}
	if m.Lat != nil && m.Lng != nil {
		l.Coordinates = &types.Coordinates{Lat: *m.Lat, Lng: *m.Lng}
	}
	if err := parseEntity(&l.Entity, m.CreatedAt, m.UpdatedAt); err != nil {
		return nil, err
	}
	return l, nil
}

type storeLinkModel struct {
	grove.BaseModel `grove:"table:allot_store_links"`

	StoreID        string  `grove:"store_id,pk"`
	LocationID     string  `grove:"location_id,pk"`
	IsPrimary      bool    `grove:"is_primary"`
	Priority       int     `grove:"priority"`
	Active         bool    `grove:"active"`
	AvailableFrom  *string `grove:"available_from"`
	AvailableUntil *string `grove:"available_until"`
}

func toStoreLinkModel(link *location.StoreLink) *storeLinkModel {
	return &storeLinkModel{
		StoreID:        link.StoreID,
		LocationID:     link.LocationID.String(),
		IsPrimary:      link.IsPrimary,
		Priority:       link.Priority,
		Active:         link.Active,
		AvailableFrom:  formatTimePtr(link.AvailableFrom),
		AvailableUntil: formatTimePtr(link.AvailableUntil),
	}
}

func fromStoreLinkModel(m *storeLinkModel) (*location.StoreLink, error) {
	locID, err := parseID(m.LocationID)
	if err != nil {
		return nil, err
	}
	link := &location.StoreLink{
		StoreID:    m.StoreID,
		LocationID: locID,
		IsPrimary:  m.IsPrimary,
		Priority:   m.Priority,
		Active:     m.Active,
	}
	if link.AvailableFrom, err = parseTimePtr(m.AvailableFrom); err != nil {
		return nil, err
	}
	if link.AvailableUntil, err = parseTimePtr(m.AvailableUntil); err != nil {
		return nil, err
	}
	return link, nil
}

// ==================== Stock models ====================

type stockRecordModel struct {
	grove.BaseModel `grove:"table:allot_stock_records"`

	VariantID     string `grove:"variant_id,pk"`
	LocationID    string `grove:"location_id,pk"`
	OnHand        int64  `grove:"on_hand"`
	Reservations  string `grove:"reservations"`
	Backorderable bool   `grove:"backorderable"`
	Version       int64  `grove:"version"`
	CreatedAt     string `grove:"created_at"`
	UpdatedAt     string `grove:"updated_at"`
}

func toStockRecordModel(r *stock.Record) (*stockRecordModel, error) {
	res := r.Reservations
	if res == nil {
		res = map[string]int64{}
	}
	raw, err := toJSON(res)
	if err != nil {
		return nil, fmt.Errorf("reservations: %w", err)
	}
	return &stockRecordModel{
		VariantID:     r.VariantID,
		LocationID:    r.LocationID.String(),
		OnHand:        r.OnHand,
		Reservations:  raw,
		Backorderable: r.Backorderable,
		Version:       r.Version,
		CreatedAt:     formatTime(r.CreatedAt),
		UpdatedAt:     formatTime(r.UpdatedAt),
	}, nil
}

func fromStockRecordModel(m *stockRecordModel) (*stock.Record, error) {
	locID, err := parseID(m.LocationID)
	if err != nil {
		return nil, err
	}
	r := &stock.Record{
		VariantID:     m.VariantID,
		LocationID:    locID,
		OnHand:        m.OnHand,
		Reservations:  make(map[string]int64),
		Backorderable: m.Backorderable,
		Version:       m.Version,
	}
	if err := fromJSON(m.Reservations, &r.Reservations); err != nil {
		return nil, fmt.Errorf("reservations: %w", err)
	}
	if err := parseEntity(&r.Entity, m.CreatedAt, m.UpdatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

type movementModel struct {
	grove.BaseModel `grove:"table:allot_movements"`

	Seq           int64  `grove:"seq,pk,autoincrement"`
	ID            string `grove:"id,unique"`
	VariantID     string `grove:"variant_id"`
	LocationID    string `grove:"location_id"`
	Kind          string `grove:"kind"`
	DemandID      string `grove:"demand_id"`
	Quantity      int64  `grove:"quantity"`
	Reason        string `grove:"reason"`
	OnHandAfter   int64  `grove:"on_hand_after"`
	ReservedAfter int64  `grove:"reserved_after"`
	At            string `grove:"at"`
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
		At:            formatTime(mv.At),
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
	at, err := parseTime(m.At)
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
		At:            at,
	}, nil
}

// ==================== Pickup models ====================

type pickupModel struct {
	grove.BaseModel `grove:"table:allot_pickups"`

	ID           string  `grove:"id,pk"`
	OrderID      string  `grove:"order_id"`
	LocationID   string  `grove:"location_id"`
	State        string  `grove:"state"`
	Code         string  `grove:"code,unique"`
	Lines        string  `grove:"lines"`
	ReadyAt      *string `grove:"ready_at"`
	PickedUpAt   *string `grove:"picked_up_at"`
	CancelledAt  *string `grove:"cancelled_at"`
	CancelReason string  `grove:"cancel_reason"`
	Version      int64   `grove:"version"`
	CreatedAt    string  `grove:"created_at"`
	UpdatedAt    string  `grove:"updated_at"`
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
		ReadyAt:      formatTimePtr(t.ReadyAt),
		PickedUpAt:   formatTimePtr(t.PickedUpAt),
		CancelledAt:  formatTimePtr(t.CancelledAt),
		CancelReason: t.CancelReason,
		Version:      t.Version,
		CreatedAt:    formatTime(t.CreatedAt),
		UpdatedAt:    formatTime(t.UpdatedAt),
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
		ID:           ticketID,
		OrderID:      m.OrderID,
		LocationID:   locID,
		State:        pickup.State(m.State),
		Code:         m.Code,
		CancelReason: m.CancelReason,
		Version:      m.Version,
	}
	if err := fromJSON(m.Lines, &t.Lines); err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}
	if t.ReadyAt, err = parseTimePtr(m.ReadyAt); err != nil {
		return nil, err
	}
	if t.PickedUpAt, err = parseTimePtr(m.PickedUpAt); err != nil {
		return nil, err
	}
	if t.CancelledAt, err = parseTimePtr(m.CancelledAt); err != nil {
		return nil, err
	}
	if err := parseEntity(&t.Entity, m.CreatedAt, m.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// ==================== Transfer models ====================

type transferModel struct {
	grove.BaseModel `grove:"table:allot_transfers"`

	ID                 string  `grove:"id,pk"`
	SourceID           string  `grove:"source_id"`
	DestinationID      string  `grove:"destination_id"`
	Lines              string  `grove:"lines"`
	State              string  `grove:"state"`
	RequestedReceiveBy *string `grove:"requested_receive_by"`
	InitiatedAt        *string `grove:"initiated_at"`
	ReceivedAt         *string `grove:"received_at"`
	CancelledAt        *string `grove:"cancelled_at"`
	Version            int64   `grove:"version"`
	CreatedAt          string  `grove:"created_at"`
	UpdatedAt          string  `grove:"updated_at"`
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
		RequestedReceiveBy: formatTimePtr(o.RequestedReceiveBy),
		InitiatedAt:        formatTimePtr(o.InitiatedAt),
		ReceivedAt:         formatTimePtr(o.ReceivedAt),
		CancelledAt:        formatTimePtr(o.CancelledAt),
		Version:            o.Version,
		CreatedAt:          formatTime(o.CreatedAt),
		UpdatedAt:          formatTime(o.UpdatedAt),
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
		ID:            orderID,
		SourceID:      srcID,
		DestinationID: dstID,
		State:         transfer.State(m.State),
		Version:       m.Version,
	}
	if err := fromJSON(m.Lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}
	if o.RequestedReceiveBy, err = parseTimePtr(m.RequestedReceiveBy); err != nil {
		return nil, err
	}
	if o.InitiatedAt, err = parseTimePtr(m.InitiatedAt); err != nil {
		return nil, err
	}
	if o.ReceivedAt, err = parseTimePtr(m.ReceivedAt); err != nil {
		return nil, err
	}
	if o.CancelledAt, err = parseTimePtr(m.CancelledAt); err != nil {
		return nil, err
	}
	if err := parseEntity(&o.Entity, m.CreatedAt, m.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

// ==================== Helpers ====================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// formatTimePtr returns nil for a nil time so the column stores NULL.
func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil //nolint:nilnil // NULL column
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseEntity(e *types.Entity, created, updated string) error {
	var err error
	if e.CreatedAt, err = parseTime(created); err != nil {
		return err
	}
	e.UpdatedAt, err = parseTime(updated)
	return err
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fromJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// marshalLines encodes a line slice, writing an empty array for nil.
func marshalLines[T any](lines []T) (string, error) {
	if lines == nil {
		lines = []T{}
	}
	s, err := toJSON(lines)
	if err != nil {
		return "", fmt.Errorf("lines: %w", err)
	}
	return s, nil
}

func parseID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.Parse(s)
}
