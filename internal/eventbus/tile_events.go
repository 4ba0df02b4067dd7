package eventbus

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ErrMalformedPayload полезная нагрузка не является событием клетки.
var ErrMalformedPayload = errors.New("eventbus: malformed tile event payload")

// TileEvent полезная нагрузка событий TileChanged и RedrawRequested.
type TileEvent struct {
	Map       string
	X, Y      int
	Layer     int
	Tile      uint16
	Previous  uint16
	Index     int // -1 для пустой клетки
	Redraws   int // Число клеток в пакете перерисовки
	Timestamp time.Time
}

// EncodeTileEvent сериализует событие в protobuf Struct.
func EncodeTileEvent(ev TileEvent) ([]byte, error) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		"map":      ev.Map,
		"x":        ev.X,
		"y":        ev.Y,
		"layer":    ev.Layer,
		"tile":     uint32(ev.Tile),
		"previous": uint32(ev.Previous),
		"index":    ev.Index,
		"redraws":  ev.Redraws,
		"ts":       timestamppb.New(ts).AsTime().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode tile event: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeTileEvent разбирает полезную нагрузку, созданную EncodeTileEvent.
func DecodeTileEvent(data []byte) (TileEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return TileEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	fields := s.GetFields()
	name, ok := fields["map"]
	if !ok {
		return TileEvent{}, ErrMalformedPayload
	}

	num := func(key string) int {
		return int(fields[key].GetNumberValue())
	}
	ev := TileEvent{
		Map:      name.GetStringValue(),
		X:        num("x"),
		Y:        num("y"),
		Layer:    num("layer"),
		Tile:     uint16(num("tile")),
		Previous: uint16(num("previous")),
		Index:    num("index"),
		Redraws:  num("redraws"),
	}
	if raw := fields["ts"].GetStringValue(); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return TileEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		ev.Timestamp = ts
	}
	return ev, nil
}
