package hookstage

import (
	"errors"
	"strings"
)

type MutationType int

const (
	MutationAdd MutationType = iota
	MutationUpdate
	MutationDelete
)

var mutationTypes = map[MutationType]string{
	MutationAdd:    "add",
	MutationUpdate: "update",
	MutationDelete: "delete",
}

func (mt MutationType) String() string {
	if t, ok := mutationTypes[mt]; ok {
		return t
	}
	return "unknown"
}

type MutationFunc[T any] func(T) (T, error)

// Mutation is a change a hook wants to make to the stage payload.
type Mutation[T any] struct {
	mutType MutationType
	key     []string
	fn      MutationFunc[T]
}

func (m Mutation[T]) Key() string {
	return strings.Join(m.key, ".")
}

func (m Mutation[T]) Type() MutationType {
	return m.mutType
}

func (m Mutation[T]) Apply(p T) (T, error) {
	if m.fn == nil {
		return p, errors.New("mutation function is nil")
	}
	return m.fn(p)
}

// ChangeSet collects the mutations of one hook. They are applied in the order they were added.
type ChangeSet[T any] struct {
	muts []Mutation[T]
}

func (c *ChangeSet[T]) Mutations() []Mutation[T] {
	if c == nil {
		return nil
	}
	return c.muts
}

func (c *ChangeSet[T]) AddMutation(fn MutationFunc[T], t MutationType, key ...string) *ChangeSet[T] {
	c.muts = append(c.muts, Mutation[T]{fn: fn, mutType: t, key: key})
	return c
}
