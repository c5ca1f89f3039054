package capability

import (
	"slices"

	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/mediafmt"
)

// NewEntry значение индекса для SetCapability, создающее новый
// дескриптор или новый набор альтернатив.
const NewEntry = -1

// Descriptor дескриптор возможностей: одновременно допустимые наборы
// альтернатив. Из каждого набора можно использовать одну возможность.
type Descriptor struct {
	Number       uint
	Simultaneous [][]uint
}

func (d Descriptor) clone() Descriptor {
	cp := Descriptor{Number: d.Number, Simultaneous: make([][]uint, len(d.Simultaneous))}
	for i, alt := range d.Simultaneous {
		cp.Simultaneous[i] = append([]uint(nil), alt...)
	}
	return cp
}

// Set таблица возможностей с дескрипторами. Не синхронизирована:
// владелец таблицы отвечает за блокировку.
type Set struct {
	table       []*Capability
	descriptors []Descriptor
}

// NewSet создает пустую таблицу.
func NewSet() *Set {
	return &Set{}
}

// FromFormats строит таблицу с одним дескриптором, в котором каждый тип
// медиа образует отдельный набор альтернатив в порядке первого появления.
func FromFormats(formats []mediafmt.Format, dir Direction) (*Set, error) {
	s := NewSet()
	sims := make(map[mediafmt.MediaType]int)
	desc := NewEntry
	for _, f := range formats {
		c, err := FromFormat(f, dir)
		if err != nil {
			return nil, err
		}
		sim, ok := sims[f.MediaType]
		if !ok {
			sim = NewEntry
		}
		desc, sim = s.SetCapability(desc, sim, c)
		sims[f.MediaType] = sim
	}
	return s, nil
}

// Len число записей таблицы.
func (s *Set) Len() int { return len(s.table) }

// IsEmpty пустая таблица без дескрипторов.
func (s *Set) IsEmpty() bool { return len(s.table) == 0 && len(s.descriptors) == 0 }

// Capabilities возвращает записи в порядке предпочтения.
func (s *Set) Capabilities() []*Capability {
	return append([]*Capability(nil), s.table...)
}

// Descriptors возвращает копию дескрипторов.
func (s *Set) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.descriptors))
	for i, d := range s.descriptors {
		out[i] = d.clone()
	}
	return out
}

// Formats возвращает форматы таблицы без повторов.
func (s *Set) Formats() []mediafmt.Format {
	var out []mediafmt.Format
	seen := make(map[string]bool)
	for _, c := range s.table {
		if !seen[c.format.Name] {
			seen[c.format.Name] = true
			out = append(out, c.format)
		}
	}
	return out
}

func (s *Set) nextNumber(preferred uint) uint {
	n := preferred
	if n == 0 {
		n = 1
	}
	for s.FindByNumber(n) != nil {
		n++
	}
	return n
}

// Add добавляет копию возможности в таблицу, не трогая дескрипторы.
// Если совпадающая возможность того же направления уже есть, возвращается она.
func (s *Set) Add(c *Capability) *Capability {
	for _, existing := range s.table {
		if existing.direction == c.direction && existing.format.Name == c.format.Name && existing.Matches(c) {
			return existing
		}
	}
	cp := c.Clone()
	cp.number = s.nextNumber(c.number)
	s.table = append(s.table, cp)
	return cp
}

// SetCapability добавляет возможность в таблицу и в набор альтернатив
// simNum дескриптора descNum. NewEntry в любом индексе создает новый
// элемент. Возвращает фактические индексы.
func (s *Set) SetCapability(descNum, simNum int, c *Capability) (int, int) {
	stored := s.Add(c)

	if descNum < 0 || descNum >= len(s.descriptors) {
		s.descriptors = append(s.descriptors, Descriptor{Number: s.nextDescriptorNumber()})
		descNum = len(s.descriptors) - 1
	}
	d := &s.descriptors[descNum]
	if simNum < 0 || simNum >= len(d.Simultaneous) {
		d.Simultaneous = append(d.Simultaneous, nil)
		simNum = len(d.Simultaneous) - 1
	}
	if !slices.Contains(d.Simultaneous[simNum], stored.number) {
		d.Simultaneous[simNum] = append(d.Simultaneous[simNum], stored.number)
	}
	return descNum, simNum
}

func (s *Set) nextDescriptorNumber() uint {
	var n uint
	for _, d := range s.descriptors {
		if d.Number >= n {
			n = d.Number + 1
		}
	}
	return n
}

// AddFormat добавляет формат как возможность в заданный набор.
func (s *Set) AddFormat(descNum, simNum int, f mediafmt.Format, dir Direction) (int, int, error) {
	c, err := FromFormat(f, dir)
	if err != nil {
		return descNum, simNum, err
	}
	d, sim := s.SetCapability(descNum, simNum, c)
	return d, sim, nil
}

// FindByNumber ищет запись по номеру.
func (s *Set) FindByNumber(n uint) *Capability {
	for _, c := range s.table {
		if c.number == n {
			return c
		}
	}
	return nil
}

// FindByWire ищет запись по основному типу, подтипу и упаковке записи протокола.
func (s *Set) FindByWire(e h245.CapabilityEntry) *Capability {
	for _, c := range s.table {
		if c.MatchesWire(e) {
			return c
		}
	}
	return nil
}

// FindByName ищет первую запись, имя формата которой подходит под шаблон.
// DirectionUnknown совпадает с любым направлением.
func (s *Set) FindByName(pattern string, dir Direction) *Capability {
	for _, c := range s.table {
		if dir != DirectionUnknown && c.direction != dir {
			continue
		}
		if mediafmt.MatchGlob(pattern, c.format.Name) {
			return c
		}
	}
	return nil
}

// FindMatching ищет запись, совпадающую с данной возможностью.
func (s *Set) FindMatching(c *Capability) *Capability {
	for _, t := range s.table {
		if t.Matches(c) {
			return t
		}
	}
	return nil
}

// FindByMainType возвращает записи данного основного типа в порядке таблицы.
func (s *Set) FindByMainType(mt MainType) []*Capability {
	var out []*Capability
	for _, c := range s.table {
		if c.mainType == mt {
			out = append(out, c)
		}
	}
	return out
}

// RemoveNumber удаляет запись и все ссылки на нее. Опустевшие наборы
// альтернатив и дескрипторы удаляются.
func (s *Set) RemoveNumber(n uint) bool {
	idx := slices.IndexFunc(s.table, func(c *Capability) bool { return c.number == n })
	if idx < 0 {
		return false
	}
	s.table = slices.Delete(s.table, idx, idx+1)
	s.pruneDescriptors()
	return true
}

// Remove удаляет запись, совпадающую по номеру с c.
func (s *Set) Remove(c *Capability) bool {
	if c == nil {
		return false
	}
	return s.RemoveNumber(c.number)
}

// RemoveByName удаляет все записи, имя формата которых подходит под шаблон.
func (s *Set) RemoveByName(pattern string) int {
	var removed int
	for _, c := range s.Capabilities() {
		if mediafmt.MatchGlob(pattern, c.format.Name) && s.RemoveNumber(c.number) {
			removed++
		}
	}
	return removed
}

// RemoveAll очищает таблицу и дескрипторы.
func (s *Set) RemoveAll() {
	s.table = nil
	s.descriptors = nil
}

// pruneDescriptors удаляет ссылки на отсутствующие номера.
func (s *Set) pruneDescriptors() {
	var descs []Descriptor
	for _, d := range s.descriptors {
		var sims [][]uint
		for _, alt := range d.Simultaneous {
			alt = slices.DeleteFunc(slices.Clone(alt), func(n uint) bool { return s.FindByNumber(n) == nil })
			if len(alt) > 0 {
				sims = append(sims, alt)
			}
		}
		if len(sims) > 0 {
			descs = append(descs, Descriptor{Number: d.Number, Simultaneous: sims})
		}
	}
	s.descriptors = descs
}

// Merge объединяет удаленный набор с таблицей: записи с совпадающими
// номерами заменяются, новые добавляются, дескрипторы с совпадающими
// номерами заменяются. Возвращает false, если таблица осталась пустой.
func (s *Set) Merge(other *Set) bool {
	for _, c := range other.table {
		if idx := slices.IndexFunc(s.table, func(t *Capability) bool { return t.number == c.number }); idx >= 0 {
			s.table[idx] = c.Clone()
			continue
		}
		s.table = append(s.table, c.Clone())
	}

	for _, d := range other.descriptors {
		if idx := slices.IndexFunc(s.descriptors, func(t Descriptor) bool { return t.Number == d.Number }); idx >= 0 {
			s.descriptors[idx] = d.clone()
			continue
		}
		s.descriptors = append(s.descriptors, d.clone())
	}

	s.pruneDescriptors()
	return len(s.table) > 0
}

// IsAllowed сообщает, могут ли две возможности использоваться
// одновременно: номера совпадают либо находятся в разных наборах
// альтернатив одного дескриптора.
func (s *Set) IsAllowed(a, b uint) bool {
	if a == b {
		return true
	}
	for _, d := range s.descriptors {
		for i, alt := range d.Simultaneous {
			if !slices.Contains(alt, a) {
				continue
			}
			for j, other := range d.Simultaneous {
				if i != j && slices.Contains(other, b) {
					return true
				}
			}
		}
	}
	return false
}

// IsAllowedAll проверяет попарную допустимость набора возможностей.
func (s *Set) IsAllowedAll(numbers ...uint) bool {
	for i := range numbers {
		for j := i + 1; j < len(numbers); j++ {
			if !s.IsAllowed(numbers[i], numbers[j]) {
				return false
			}
		}
	}
	return true
}

// Reorder устойчиво переупорядочивает таблицу по списку шаблонов имен:
// записи, подходящие под первый шаблон, идут первыми и так далее.
// Наборы альтернатив в дескрипторах следуют новому порядку.
func (s *Set) Reorder(patterns []string) {
	if len(patterns) == 0 {
		return
	}
	ordered := make([]*Capability, 0, len(s.table))
	used := make([]bool, len(s.table))
	for _, p := range patterns {
		for i, c := range s.table {
			if !used[i] && mediafmt.MatchGlob(p, c.format.Name) {
				used[i] = true
				ordered = append(ordered, c)
			}
		}
	}
	for i, c := range s.table {
		if !used[i] {
			ordered = append(ordered, c)
		}
	}
	s.table = ordered

	pos := make(map[uint]int, len(ordered))
	for i, c := range ordered {
		pos[c.number] = i
	}
	for _, d := range s.descriptors {
		for _, alt := range d.Simultaneous {
			slices.SortStableFunc(alt, func(x, y uint) int { return pos[x] - pos[y] })
		}
	}
}

// Clone возвращает глубокую копию таблицы.
func (s *Set) Clone() *Set {
	cp := &Set{
		table:       make([]*Capability, len(s.table)),
		descriptors: s.Descriptors(),
	}
	for i, c := range s.table {
		cp.table[i] = c.Clone()
	}
	return cp
}

// ToWire кодирует таблицу в представление протокола.
func (s *Set) ToWire() ([]h245.CapabilityEntry, []h245.CapabilityDescriptor) {
	entries := make([]h245.CapabilityEntry, 0, len(s.table))
	for _, c := range s.table {
		entries = append(entries, c.ToWire())
	}
	descs := make([]h245.CapabilityDescriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		cp := d.clone()
		descs = append(descs, h245.CapabilityDescriptor{Number: cp.Number, Simultaneous: cp.Simultaneous})
	}
	return entries, descs
}

// SetFromWire восстанавливает таблицу из представления протокола.
// Записи с неизвестными подтипами отбрасываются, их число возвращается.
func SetFromWire(r *mediafmt.Registry, entries []h245.CapabilityEntry, descs []h245.CapabilityDescriptor) (*Set, int) {
	s := NewSet()
	var dropped int
	for _, e := range entries {
		c, ok := FromWire(r, e)
		if !ok || c.number == 0 || s.FindByNumber(c.number) != nil {
			dropped++
			continue
		}
		s.table = append(s.table, c)
	}
	for _, d := range descs {
		sims := make([][]uint, len(d.Simultaneous))
		for i, alt := range d.Simultaneous {
			sims[i] = append([]uint(nil), alt...)
		}
		s.descriptors = append(s.descriptors, Descriptor{Number: d.Number, Simultaneous: sims})
	}
	s.pruneDescriptors()
	return s, dropped
}
