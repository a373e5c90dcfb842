package mongo

import (
	"fmt"
	"slices"
	"strings"
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

	ID           string            `grove:"id,pk"        bson:"_id"`
	Name         string            `grove:"name"         bson:"name"`
	Type         string            `grove:"type"         bson:"type"`
	Capabilities capabilitiesModel `grove:"capabilities" bson:"capabilities"`
	Priority     int               `grove:"priority"     bson:"priority"`
	Active       bool              `grove:"active"       bson:"active"`
	Coordinates  *coordinatesModel `grove:"coordinates"  bson:"coordinates,omitempty"`
	Metadata     map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"   bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"   bson:"updated_at"`
}

type capabilitiesModel struct {
	CanFulfillOnline    bool     `bson:"can_fulfill_online"`
	CanFulfillInStore   bool     `bson:"can_fulfill_in_store"`
	CanReceiveShipments bool     `bson:"can_receive_shipments"`
	CanProcessReturns   bool     `bson:"can_process_returns"`
	MaxDailyOrders      int      `bson:"max_daily_orders"`
	SupportedServices   []string `bson:"supported_services,omitempty"`
}

type coordinatesModel struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

func toLocationModel(l *location.Location) *locationModel {
	m := &locationModel{
		ID:       l.ID.String(),
		Name:     l.Name,
		Type:     string(l.Type),
		Priority: l.Priority,
		Active:   l.Active,
		Capabilities: capabilitiesModel{
			CanFulfillOnline:    l.Capabilities.CanFulfillOnline,
			CanFulfillInStore:   l.Capabilities.CanFulfillInStore,
			CanReceiveShipments: l.Capabilities.CanReceiveShipments,
			CanProcessReturns:   l.Capabilities.CanProcessReturns,
			MaxDailyOrders:      l.Capabilities.MaxDailyOrders,
			SupportedServices:   l.Capabilities.SupportedServices,
		},
		Metadata:  l.Metadata,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	if l.Coordinates != nil {
		m.Coordinates = &coordinatesModel{Lat: l.Coordinates.Lat, Lng: l.Coordinates.Lng}
	}
	return m
}

func fromLocationModel(m *locationModel) (*location.Location, error) {
	locID, err := id.ParseLocationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse location id: %w", err)
	}
	l := &location.Location{
		Entity:   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:       locID,
		Name:     m.Name,
		Type:     location.Type(m.Type),
		Priority: m.Priority,
		Active:   m.Active,
		Capabilities: location.Capabilities{
			CanFulfillOnline:    m.Capabilities.CanFulfillOnline,
			CanFulfillInStore:   m.Capabilities.CanFulfillInStore,
			CanReceiveShipments: m.Capabilities.CanReceiveShipments,
			CanProcessReturns:   m.Capabilities.CanProcessReturns,
			MaxDailyOrders:      m.Capabilities.MaxDailyOrders,
			SupportedServices:   m.Capabilities.SupportedServices,
		},
		Metadata: m.Metadata,
	}
	if m.Coordinates != nil {
		l.Coordinates = &types.Coordinates{Lat: m.Coordinates.Lat, Lng: m.Coordinates.Lng}
	}
	return l, nil
}

type storeLinkModel struct {
	grove.BaseModel `grove:"table:allot_store_links"`

	ID             string     `grove:"id,pk"           bson:"_id"` // store_id|location_id
	StoreID        string     `grove:"store_id"        bson:"store_id"`
	LocationID     string     `grove:"location_id"     bson:"location_id"`
	IsPrimary      bool       `grove:"is_primary"      bson:"is_primary"`
	Priority       int        `grove:"priority"        bson:"priority"`
	Active         bool       `grove:"active"          bson:"active"`
	AvailableFrom  *time.Time `grove:"available_from"  bson:"available_from,omitempty"`
	AvailableUntil *time.Time `grove:"available_until" bson:"available_until,omitempty"`
}

func linkKey(storeID string, locationID id.LocationID) string {
	return storeID + "|" + locationID.String()
}

func toStoreLinkModel(link *location.StoreLink) *storeLinkModel {
	return &storeLinkModel{
		ID:             linkKey(link.StoreID, link.LocationID),
		StoreID:        link.StoreID,
		LocationID:     link.LocationID.String(),
		IsPrimary:      link.IsPrimary,
		Priority:       link.Priority,
		Active:         link.Active,
		AvailableFrom:  link.AvailableFrom,
		AvailableUntil: link.AvailableUntil,
	}
}

func fromStoreLinkModel(m *storeLinkModel) (*location.StoreLink, error) {
	locID, err := id.ParseLocationID(m.LocationID)
	if err != nil {
		return nil, fmt.Errorf("parse location id: %w", err)
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

// stockRecordModel keeps reservations as an array so demand ids never
// become field names.
type stockRecordModel struct {
	grove.BaseModel `grove:"table:allot_stock_records"`

	ID            string             `grove:"id,pk"         bson:"_id"` // stock.Key.String()
	VariantID     string             `grove:"variant_id"    bson:"variant_id"`
	LocationID    string             `grove:"location_id"   bson:"location_id"`
	OnHand        int64              `grove:"on_hand"       bson:"on_hand"`
	Reservations  []reservationModel `grove:"reservations"  bson:"reservations"`
	Backorderable bool               `grove:"backorderable" bson:"backorderable"`
	Version       int64              `grove:"version"       bson:"version"`
	CreatedAt     time.Time          `grove:"created_at"    bson:"created_at"`
	UpdatedAt     time.Time          `grove:"updated_at"    bson:"updated_at"`
}

type reservationModel struct {
	DemandID string `bson:"demand_id"`
	Quantity int64  `bson:"quantity"`
}

func toStockRecordModel(r *stock.Record) *stockRecordModel {
	res := make([]reservationModel, 0, len(r.Reservations))
	for d, q := range r.Reservations {
		res = append(res, reservationModel{DemandID: d, Quantity: q})
	}
	slices.SortFunc(res, func(a, b reservationModel) int { return strings.Compare(a.DemandID, b.DemandID) })
	return &stockRecordModel{
		ID:            r.Key().String(),
		VariantID:     r.VariantID,
		LocationID:    r.LocationID.String(),
		OnHand:        r.OnHand,
		Reservations:  res,
		Backorderable: r.Backorderable,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromStockRecordModel(m *stockRecordModel) (*stock.Record, error) {
	locID, err := id.ParseLocationID(m.LocationID)
	if err != nil {
		return nil, fmt.Errorf("parse location id: %w", err)
	}
	r := &stock.Record{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		VariantID:     m.VariantID,
		LocationID:    locID,
		OnHand:        m.OnHand,
		Reservations:  make(map[string]int64, len(m.Reservations)),
		Backorderable: m.Backorderable,
		Version:       m.Version,
	}
	for _, res := range m.Reservations {
		r.Reservations[res.DemandID] = res.Quantity
	}
	return r, nil
}

// movementModel carries the record version it produced, which orders a
// record's history.
type movementModel struct {
	grove.BaseModel `grove:"table:allot_movements"`

	ID            string    `grove:"id,pk"          bson:"_id"`
	RecordID      string    `grove:"record_id"      bson:"record_id"`
	RecordVersion int64     `grove:"record_version" bson:"record_version"`
	VariantID     string    `grove:"variant_id"     bson:"variant_id"`
	LocationID    string    `grove:"location_id"    bson:"location_id"`
	Kind          string    `grove:"kind"           bson:"kind"`
	DemandID      string    `grove:"demand_id"      bson:"demand_id,omitempty"`
	Quantity      int64     `grove:"quantity"       bson:"quantity"`
	Reason        string    `grove:"reason"         bson:"reason,omitempty"`
	OnHandAfter   int64     `grove:"on_hand_after"  bson:"on_hand_after"`
	ReservedAfter int64     `grove:"reserved_after" bson:"reserved_after"`
	At            time.Time `grove:"at"             bson:"at"`
}

func toMovementModel(m *stock.Movement, version int64) *movementModel {
	return &movementModel{
		ID:            m.ID.String(),
		RecordID:      stock.Key{VariantID: m.VariantID, LocationID: m.LocationID}.String(),
		RecordVersion: version,
		VariantID:     m.VariantID,
		LocationID:    m.LocationID.String(),
		Kind:          string(m.Kind),
		DemandID:      m.DemandID,
		Quantity:      m.Quantity,
		Reason:        m.Reason,
		OnHandAfter:   m.OnHandAfter,
		ReservedAfter: m.ReservedAfter,
		At:            m.At,
	}
}

func fromMovementModel(m *movementModel) (*stock.Movement, error) {
	movID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse movement id: %w", err)
	}
	locID, err := id.ParseLocationID(m.LocationID)
	if err != nil {
		return nil, fmt.Errorf("parse location id: %w", err)
	}
	return &stock.Movement{
		ID:            movID,
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

	ID           string       `grove:"id,pk"         bson:"_id"`
	OrderID      string       `grove:"order_id"      bson:"order_id"`
	LocationID   string       `grove:"location_id"   bson:"location_id"`
	State        string       `grove:"state"         bson:"state"`
	Code         string       `grove:"code"          bson:"code"`
	Lines        []pickupLine `grove:"lines"         bson:"lines"`
	ReadyAt      *time.Time   `grove:"ready_at"      bson:"ready_at,omitempty"`
	PickedUpAt   *time.Time   `grove:"picked_up_at"  bson:"picked_up_at,omitempty"`
	CancelledAt  *time.Time   `grove:"cancelled_at"  bson:"cancelled_at,omitempty"`
	CancelReason string       `grove:"cancel_reason" bson:"cancel_reason,omitempty"`
	Version      int64        `grove:"version"       bson:"version"`
	CreatedAt    time.Time    `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time    `grove:"updated_at"    bson:"updated_at"`
}

type pickupLine struct {
	VariantID string `bson:"variant_id"`
	Quantity  int64  `bson:"quantity"`
}

func toPickupModel(t *pickup.Ticket) *pickupModel {
	lines := make([]pickupLine, len(t.Lines))
	for i, l := range t.Lines {
		lines[i] = pickupLine{VariantID: l.VariantID, Quantity: l.Quantity}
	}
	return &pickupModel{
		ID:           t.ID.String(),
		OrderID:      t.OrderID,
		LocationID:   t.LocationID.String(),
		State:        string(t.State),
		Code:         t.Code,
		Lines:        lines,
		ReadyAt:      t.ReadyAt,
		PickedUpAt:   t.PickedUpAt,
		CancelledAt:  t.CancelledAt,
		CancelReason: t.CancelReason,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromPickupModel(m *pickupModel) (*pickup.Ticket, error) {
	ticketID, err := id.ParsePickupID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse pickup id: %w", err)
	}
	locID, err := id.ParseLocationID(m.LocationID)
	if err != nil {
		return nil, fmt.Errorf("parse location id: %w", err)
	}
	lines := make([]pickup.Line, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = pickup.Line{VariantID: l.VariantID, Quantity: l.Quantity}
	}
	return &pickup.Ticket{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:           ticketID,
		OrderID:      m.OrderID,
		LocationID:   locID,
		State:        pickup.State(m.State),
		Code:         m.Code,
		Lines:        lines,
		ReadyAt:      utcPtr(m.ReadyAt),
		PickedUpAt:   utcPtr(m.PickedUpAt),
		CancelledAt:  utcPtr(m.CancelledAt),
		CancelReason: m.CancelReason,
		Version:      m.Version,
	}, nil
}

// ==================== Transfer models ====================

type transferModel struct {
	grove.BaseModel `grove:"table:allot_transfers"`

	ID                 string         `grove:"id,pk"                bson:"_id"`
	SourceID           string         `grove:"source_id"            bson:"source_id"`
	DestinationID      string         `grove:"destination_id"       bson:"destination_id"`
	Lines              []transferLine `grove:"lines"                bson:"lines"`
	State              string         `grove:"state"                bson:"state"`
	RequestedReceiveBy *time.Time     `grove:"requested_receive_by" bson:"requested_receive_by,omitempty"`
	InitiatedAt        *time.Time     `grove:"initiated_at"         bson:"initiated_at,omitempty"`
	ReceivedAt         *time.Time     `grove:"received_at"          bson:"received_at,omitempty"`
	CancelledAt        *time.Time     `grove:"cancelled_at"         bson:"cancelled_at,omitempty"`
	Version            int64          `grove:"version"              bson:"version"`
	CreatedAt          time.Time      `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time      `grove:"updated_at"           bson:"updated_at"`
}

type transferLine struct {
	VariantID string `bson:"variant_id"`
	Quantity  int64  `bson:"quantity"`
	Received  int64  `bson:"received"`
}

func toTransferModel(o *transfer.Order) *transferModel {
	lines := make([]transferLine, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = transferLine{VariantID: l.VariantID, Quantity: l.Quantity, Received: l.Received}
	}
	return &transferModel{
		ID:                 o.ID.String(),
		SourceID:           o.SourceID.String(),
		DestinationID:      o.DestinationID.String(),
		Lines:              lines,
		State:              string(o.State),
		RequestedReceiveBy: o.RequestedReceiveBy,
		InitiatedAt:        o.InitiatedAt,
		ReceivedAt:         o.ReceivedAt,
		CancelledAt:        o.CancelledAt,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func fromTransferModel(m *transferModel) (*transfer.Order, error) {
	orderID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer id: %w", err)
	}
	src, err := id.ParseLocationID(m.SourceID)
	if err != nil {
		return nil, fmt.Errorf("parse source id: %w", err)
	}
	dst, err := id.ParseLocationID(m.DestinationID)
	if err != nil {
		return nil, fmt.Errorf("parse destination id: %w", err)
	}
	lines := make([]transfer.Line, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = transfer.Line{VariantID: l.VariantID, Quantity: l.Quantity, Received: l.Received}
	}
	return &transfer.Order{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                 orderID,
		SourceID:           src,
		DestinationID:      dst,
		Lines:              lines,
		State:              transfer.State(m.State),
		RequestedReceiveBy: utcPtr(m.RequestedReceiveBy),
		InitiatedAt:        utcPtr(m.InitiatedAt),
		ReceivedAt:         utcPtr(m.ReceivedAt),
		CancelledAt:        utcPtr(m.CancelledAt),
		Version:            m.Version,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
