package dao

import (
	"fmt"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/serializer"
)

// Schema describes how entities of type T are stored.
// Key returns the unique key of an entity (the lookup key for a LookupDao, the id for a RelationalDao).
// SetKey receives keys generated by the backend and the row key on every decode. It may only be
// nil if entities are always saved with a key, an insert that needs a generated key fails otherwise.
type Schema[T any] struct {
	Table  string
	Key    func(*T) string
	SetKey func(*T, string)
	Codec  serializer.ISerializer // nil = json
}

// normalize validates the schema and returns a copy with defaults applied
func (s Schema[T]) normalize() (Schema[T], error) {
	if s.Table == "" {
		return s, newError(CodeConfiguration, nil, "schema without table")
	}
	if s.Key == nil {
		return s, newError(CodeConfiguration, nil, "schema %s has no key accessor", s.Table)
	}
	if s.Codec == nil {
		s.Codec = serializer.NewJSONSerializer()
	}
	return s, nil
}

func (s Schema[T]) encode(entity *T) (db.Row, error) {
	if entity == nil {
		return db.Row{}, fmt.Errorf("%s: nil entity", s.Table)
	}
	value, err := s.Codec.Serialize(entity)
	if err != nil {
		return db.Row{}, fmt.Errorf("%s: encoding entity: %w", s.Table, err)
	}
	return db.Row{Key: s.Key(entity), Value: value}, nil
}

func (s Schema[T]) decode(row db.Row) (*T, error) {
	entity := new(T)
	if err := s.Codec.Deserialize(row.Value, entity); err != nil {
		return nil, fmt.Errorf("%s/%s: decoding entity: %w", s.Table, row.Key, err)
	}
	if s.SetKey != nil {
		s.SetKey(entity, row.Key)
	}
	return entity, nil
}

func (s Schema[T]) decodeAll(rows []db.Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, err := s.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// Criteria selects entities of one table.
// Keys restricts the selection to the given keys, Where filters decoded entities.
// The zero value matches everything.
type Criteria[T any] struct {
	Keys  []string
	Where func(*T) bool
}

// Where returns a Criteria matching entities for which the predicate holds.
func Where[T any](predicate func(*T) bool) Criteria[T] {
	return Criteria[T]{Where: predicate}
}

// ByKeys returns a Criteria matching the given keys.
func ByKeys[T any](keys ...string) Criteria[T] {
	return Criteria[T]{Keys: keys}
}

// toDB translates the criteria into a backend criteria decoding candidate rows with the schema codec
func (c Criteria[T]) toDB(s Schema[T]) db.Criteria {
	criteria := db.Criteria{Keys: c.Keys}
	if c.Where == nil {
		return criteria
	}
	where := c.Where
	criteria.Match = func(row db.Row) (bool, error) {
		entity, err := s.decode(row)
		if err != nil {
			return false, err
		}
		return where(entity), nil
	}
	return criteria
}
