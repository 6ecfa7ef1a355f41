package app

import (
	"github.com/spf13/pflag"

	"github.com/pranshuparmar/procfd/internal/filter"
	"github.com/pranshuparmar/procfd/pkg/model"
)

// enumValue is a pflag.Value that validates while the command line is parsed.
type enumValue[T any] struct {
	raw   string
	value *T
	parse func(string) (T, error)
	typ   string
}

var _ pflag.Value = (*enumValue[model.FDKind])(nil)

func newEnumValue[T any](typ string, parse func(string) (T, error)) *enumValue[T] {
	return &enumValue[T]{typ: typ, parse: parse}
}

func (e *enumValue[T]) String() string { return e.raw }
func (e *enumValue[T]) Type() string   { return e.typ }

func (e *enumValue[T]) Set(s string) error {
	v, err := e.parse(s)
	if err != nil {
		return err
	}
	e.raw, e.value = s, &v
	return nil
}

// Get returns the parsed value, or nil when the flag was not given.
func (e *enumValue[T]) Get() *T {
	return e.value
}

type flagValues struct {
	pid     int32
	user    string
	cmd     string
	fdType  *enumValue[model.FDKind]
	domain  *enumValue[[]model.SocketDomain]
	kind    *enumValue[model.SocketKind]
	state   string
	port    uint16
	srcPort uint16
	dstPort uint16
	host    string
	srcHost string
	dstHost string
	noDNS   bool
	json    bool
	pidOnly bool

	procRoot  string
	logLevel  string
	logFormat string
}

func newFlagValues() *flagValues {
	return &flagValues{
		fdType: newEnumValue("type", filter.ParseType),
		domain: newEnumValue("domain", filter.ParseDomain),
		kind:   newEnumValue("kind", filter.ParseKind),
	}
}
