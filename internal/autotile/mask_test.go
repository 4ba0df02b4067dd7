package autotile

import "testing"

func TestMaskWeights(t *testing.T) {
	want := map[Direction]Mask{
		NorthWest: 1, North: 2, NorthEast: 4, West: 8,
		East: 16, SouthWest: 32, South: 64, SouthEast: 128,
	}
	for d, w := range want {
		if d.Bit() != w {
			t.Errorf("Вес %s: ожидался %d, получен %d", d, w, d.Bit())
		}
	}
	if MaskNW != 1 || MaskN != 2 || MaskNE != 4 || MaskW != 8 || MaskE != 16 || MaskSW != 32 || MaskS != 64 || MaskSE != 128 {
		t.Error("Константы масок не совпадают с весами")
	}
}

func TestDirectionOffsets(t *testing.T) {
	cases := map[Direction][2]int{
		North: {0, 1}, South: {0, -1}, West: {-1, 0}, East: {1, 0},
		NorthWest: {-1, 1}, NorthEast: {1, 1}, SouthWest: {-1, -1}, SouthEast: {1, -1},
	}
	for d, xy := range cases {
		off := d.Offset()
		if off.X != xy[0] || off.Y != xy[1] || off.Z != 0 {
			t.Errorf("Смещение %s: ожидалось %v, получено %v", d, xy, off)
		}
		if d.Diagonal() != (xy[0] != 0 && xy[1] != 0) {
			t.Errorf("Diagonal(%s) неверно", d)
		}
	}
}

func TestMaskString(t *testing.T) {
	m := MaskN | MaskNE | MaskE
	if s := m.String(); s != ".xx/.ox/..." {
		t.Errorf("Неверная картинка маски: %q", s)
	}
	if s := m.Names(); s != "N+NE+E" {
		t.Errorf("Неверные имена: %q", s)
	}
	if s := Mask(0).Names(); s != "0" {
		t.Errorf("Пустая маска: %q", s)
	}
}

func TestReachable(t *testing.T) {
	if !Reachable(0) || !Reachable(255) || !Reachable(22) {
		t.Error("0, 22 и 255 достижимы")
	}
	if Reachable(MaskNW) || Reachable(MaskNE|MaskN) {
		t.Error("Угол без обоих рёбер недостижим")
	}
}
