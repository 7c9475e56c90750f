package voice

import "strings"

// Store 声音目录的只读访问接口。
type Store interface {
	List() []Voice
	FindByID(id string) (Voice, bool)
	// Resolve 将别名或 ID 规范化为供应商声音 ID；无法识别时原样返回。
	Resolve(alias string) string
}

type memoryStore struct {
	voices  []Voice
	byID    map[string]Voice
	byAlias map[string]string
}

// NewMemoryStore 构建进程内声音目录。
func NewMemoryStore(voices []Voice) Store {
	s := &memoryStore{
		voices:  voices,
		byID:    make(map[string]Voice, len(voices)),
		byAlias: make(map[string]string),
	}
	for _, v := range voices {
		s.byID[strings.ToLower(v.ID)] = v
		for _, alias := range v.Aliases {
			s.byAlias[strings.ToLower(alias)] = v.ID
		}
	}
	return s
}

func (s *memoryStore) List() []Voice {
	out := make([]Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

func (s *memoryStore) FindByID(id string) (Voice, bool) {
	v, ok := s.byID[strings.ToLower(strings.TrimSpace(id))]
	return v, ok
}

func (s *memoryStore) Resolve(alias string) string {
	key := strings.ToLower(strings.TrimSpace(alias))
	if key == "" {
		return ""
	}
	if id, ok := s.byAlias[key]; ok {
		return id
	}
	if v, ok := s.byID[key]; ok {
		return v.ID
	}
	return alias
}
