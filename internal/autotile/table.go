package autotile

// SpriteSlots количество слотов в наборе спрайтов, которое покрывает все
// значения таблицы. Значение 47 (одиночная клетка) требует 48-й слот.
const SpriteSlots = 48

// IsolatedIndex индекс варианта для клетки без совпадающих соседей (маска 0).
const IsolatedIndex = 47

// bitmaskTable переводит маску соседей в индекс спрайта.
// Таблица бинарно совместима с существующими тайлсетами: менять нельзя.
// Ноль означает недостижимую конфигурацию (диагональ без обоих соседних рёбер).
var bitmaskTable = [256]uint8{
	// 0x00
	47, 0, 1, 0, 0, 0, 0, 0, 2, 0, 3, 4, 0, 0, 0, 0,
	// 0x10
	5, 0, 6, 0, 0, 0, 7, 0, 8, 0, 9, 10, 0, 0, 11, 12,
	// 0x20
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0x30
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0x40
	13, 0, 14, 0, 0, 0, 0, 0, 15, 0, 16, 17, 0, 0, 0, 0,
	// 0x50
	18, 0, 19, 0, 0, 0, 20, 0, 21, 0, 22, 23, 0, 0, 24, 25,
	// 0x60
	0, 0, 0, 0, 0, 0, 0, 0, 26, 0, 27, 28, 0, 0, 0, 0,
	// 0x70
	0, 0, 0, 0, 0, 0, 0, 0, 29, 0, 30, 31, 0, 0, 32, 33,
	// 0x80
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0x90
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0xA0
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0xB0
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0xC0
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0xD0
	34, 0, 35, 0, 0, 0, 36, 0, 37, 0, 38, 39, 0, 0, 40, 41,
	// 0xE0
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// 0xF0
	0, 0, 0, 0, 0, 0, 0, 0, 42, 0, 43, 44, 0, 0, 45, 46,
}

// SpriteIndex возвращает индекс спрайта для маски.
func SpriteIndex(m Mask) int {
	return int(bitmaskTable[m])
}

// LookupTable возвращает копию таблицы для инструментов и отладки.
func LookupTable() [256]uint8 {
	return bitmaskTable
}
