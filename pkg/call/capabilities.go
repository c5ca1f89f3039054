package call

import (
	"github.com/pkg/errors"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/mediafmt"
)

// BuildCapabilities строит локальную таблицу возможностей из имен
// форматов (допускаются шаблоны с '*'). Таблица содержит один дескриптор,
// в котором каждый тип медиа образует отдельный набор альтернатив.
// Аудио и видео возможности получают криптонаборы suites.
func BuildCapabilities(reg *mediafmt.Registry, names []string, suites []string) (*capability.Set, error) {
	if reg == nil {
		reg = mediafmt.DefaultRegistry()
	}
	set := capability.NewSet()
	sims := make(map[mediafmt.MediaType]int)
	desc := capability.NewEntry
	for _, name := range names {
		formats := reg.FindGlob(name)
		if len(formats) == 0 {
			return nil, errors.Errorf("неизвестный формат %q", name)
		}
		for _, f := range formats {
			c, err := capability.FromFormat(f, capability.DirectionReceive)
			if err != nil {
				return nil, errors.Wrap(err, "построение таблицы возможностей")
			}
			if len(suites) > 0 && (f.MediaType == mediafmt.MediaTypeAudio || f.MediaType == mediafmt.MediaTypeVideo) {
				c = c.WithCryptoSuites(suites...)
			}
			sim, ok := sims[f.MediaType]
			if !ok {
				sim = capability.NewEntry
			}
			desc, sim = set.SetCapability(desc, sim, c)
			sims[f.MediaType] = sim
		}
	}
	if set.Len() == 0 {
		return nil, errors.New("таблица возможностей пуста")
	}
	return set, nil
}
